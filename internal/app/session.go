package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbrowse/internal/imapwire"
	"github.com/nhle/mailbrowse/internal/mailclient"
	"github.com/nhle/mailbrowse/internal/model"
)

// Mailer is the part of *mailclient.Session the terminal UI uses.
type Mailer interface {
	ListMailboxes(ctx context.Context, fetchStatus bool) ([]model.MailboxSummary, error)
	GetMessages(ctx context.Context, mailbox string, limit, offset int) ([]model.MessageSummary, error)
	SearchMessages(ctx context.Context, mailbox, criterion string, limit, offset int) ([]model.MessageSummary, error)
	GetMessageBody(ctx context.Context, id, mailbox string) (*model.Message, error)
	MarkSeen(ctx context.Context, id, mailbox string) error
	MarkUnseen(ctx context.Context, id, mailbox string) error
	Delete(ctx context.Context, id, mailbox string) error
	Logout(ctx context.Context) error
}

// Connector logs in to account and returns the session.
type Connector func(ctx context.Context, account model.AccountConfig, password string) (Mailer, error)

// SessionOptions translates the configuration into session options.
func SessionOptions(cfg *model.AppConfig, log *zerolog.Logger) *mailclient.Options {
	opts := &mailclient.Options{
		Port:      cfg.Account.Port,
		Mechanism: cfg.Account.Mechanism,
		Timeouts: imapwire.Timeouts{
			Dial:    cfg.Session.DialTimeout(),
			Command: cfg.Session.CommandTimeout(),
			Literal: cfg.Session.LiteralTimeout(),
		},
		Logger: log,
	}
	if !cfg.Session.UseUID {
		opts.IDKind = mailclient.SequenceNumbers
	}
	return opts
}

// Connect returns a Connector that authenticates with mailclient using
// the session settings of cfg. The account passed to the Connector takes
// precedence over cfg.Account.
func Connect(cfg *model.AppConfig, log *zerolog.Logger) Connector {
	return func(ctx context.Context, account model.AccountConfig, password string) (Mailer, error) {
		c := *cfg
		c.Account = account
		sess, err := mailclient.Authenticate(ctx, account.Username, password, account.Host, account.UseSSL, SessionOptions(&c, log))
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}
