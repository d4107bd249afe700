package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailbrowse/internal/app"
	"github.com/nhle/mailbrowse/internal/credential"
	"github.com/nhle/mailbrowse/internal/logging"
	"github.com/nhle/mailbrowse/internal/mailclient"
	"github.com/nhle/mailbrowse/internal/model"
)

var errNoPassword = errors.New("no password: run 'mailbrowse login' or set " + credential.PasswordEnv)

func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// sessionFunc runs one subcommand against a logged-in session.
type sessionFunc func(ctx context.Context, sess *mailclient.Session, cfg *model.AppConfig) error

// withSession loads the configuration, logs in and runs fn. The session is
// logged out when fn returns.
func withSession(cmd *cobra.Command, g *globalOptions, fn sessionFunc) error {
	cfg, log, release, err := g.load(logging.Stderr)
	if err != nil {
		return err
	}
	defer release()

	if cfg.Account.Host == "" || cfg.Account.Username == "" {
		return fmt.Errorf("no account configured in %s: run 'mailbrowse login'", g.configPath)
	}

	password, err := lookupPassword(cfg.Account, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sess, err := mailclient.Authenticate(ctx, cfg.Account.Username, password, cfg.Account.Host, cfg.Account.UseSSL, app.SessionOptions(cfg, &log))
	if err != nil {
		if mailclient.IsInvalidCredentials(err) {
			return fmt.Errorf("%w: run 'mailbrowse login' to update the password", err)
		}
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("Logout failed")
		}
	}()

	return fn(ctx, sess, cfg)
}

func lookupPassword(account model.AccountConfig, log zerolog.Logger) (string, error) {
	if pw := os.Getenv(credential.PasswordEnv); pw != "" {
		return pw, nil
	}
	store, err := credential.Open()
	if err == nil {
		pw, err := store.Password(account.Username, account.Host)
		if err == nil {
			return pw, nil
		}
		if !credential.IsNotFound(err) {
			log.Warn().Err(err).Msg("Reading password from keyring failed")
		}
	} else {
		log.Warn().Err(err).Msg("Keyring unavailable")
	}

	if !interactive() {
		return "", errNoPassword
	}
	var pw string
	err = huh.NewInput().
		Title("Password for " + account.Username + "@" + account.Host).
		EchoMode(huh.EchoModePassword).
		Value(&pw).
		Run()
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errNoPassword
	}
	return pw, nil
}

func newLoginCmd(g *globalOptions) *cobra.Command {
	var (
		host, username string
		noTLS          bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials, then save the account and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, release, err := g.load(logging.Stderr)
			if err != nil {
				return err
			}
			defer release()

			if host != "" {
				cfg.Account.Host = host
			}
			if username != "" {
				cfg.Account.Username = username
			}
			if cmd.Flags().Changed("no-tls") {
				cfg.Account.UseSSL = !noTLS
			}

			password := os.Getenv(credential.PasswordEnv)
			for {
				if password == "" {
					if !interactive() {
						return errNoPassword
					}
					if err := loginForm(&cfg.Account, &password).Run(); err != nil {
						return err
					}
				}

				sess, err := mailclient.Authenticate(cmd.Context(), cfg.Account.Username, password, cfg.Account.Host, cfg.Account.UseSSL, app.SessionOptions(cfg, &log))
				if mailclient.IsInvalidCredentials(err) && interactive() {
					fmt.Fprintln(cmd.ErrOrStderr(), "Invalid credentials, try again (ctrl+c to quit).")
					password = ""
					continue
				}
				if err != nil {
					return err
				}
				if err := sess.Logout(cmd.Context()); err != nil {
					log.Warn().Err(err).Msg("Logout failed")
				}
				break
			}

			if err := model.SaveConfig(g.configPath, cfg); err != nil {
				return err
			}
			store, err := credential.Open()
			if err != nil {
				return err
			}
			if err := store.SetPassword(cfg.Account.Username, cfg.Account.Host, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s@%s\n", cfg.Account.Username, cfg.Account.Host)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "IMAP server, optionally with :port")
	cmd.Flags().StringVar(&username, "username", "", "Account user name")
	cmd.Flags().BoolVar(&noTLS, "no-tls", false, "Connect without TLS")
	return cmd
}

func loginForm(account *model.AccountConfig, password *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Server").Value(&account.Host),
			huh.NewInput().Title("Username").Value(&account.Username),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(password),
		),
	)
}

func newMailboxesCmd(g *globalOptions) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "mailboxes",
		Short: "List mailboxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(ctx context.Context, sess *mailclient.Session, cfg *model.AppConfig) error {
				if !cmd.Flags().Changed("status") {
					status = cfg.Browse.FetchStatus
				}
				boxes, err := sess.ListMailboxes(ctx, status)
				if err != nil {
					return err
				}
				printMailboxes(cmd.OutOrStdout(), boxes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "Fetch unseen/total counters; defaults to browse.fetch_status")
	return cmd
}

func newMessagesCmd(g *globalOptions) *cobra.Command {
	var (
		limit, offset int
		criterion     string
	)
	cmd := &cobra.Command{
		Use:   "messages [mailbox]",
		Short: "List one page of messages, newest last",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mailbox := "INBOX"
			if len(args) == 1 {
				mailbox = args[0]
			}
			return withSession(cmd, g, func(ctx context.Context, sess *mailclient.Session, cfg *model.AppConfig) error {
				if !cmd.Flags().Changed("limit") {
					limit = cfg.Browse.PageSize
				}
				if !cmd.Flags().Changed("criterion") {
					criterion = cfg.Browse.Criterion
				}

				var (
					msgs []model.MessageSummary
					err  error
				)
				if mailclient.IsDefaultCriterion(criterion) {
					msgs, err = sess.GetMessages(ctx, mailbox, limit, offset)
				} else {
					msgs, err = sess.SearchMessages(ctx, mailbox, criterion, limit, offset)
				}
				if err != nil {
					return err
				}
				printMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size; defaults to browse.page_size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of newest messages to skip")
	cmd.Flags().StringVar(&criterion, "criterion", "", "IMAP SEARCH criterion, e.g. UNSEEN; defaults to browse.criterion")
	return cmd
}

func newShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <mailbox> <id>",
		Short: "Print a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(ctx context.Context, sess *mailclient.Session, _ *model.AppConfig) error {
				msg, err := sess.GetMessageBody(ctx, args[1], args[0])
				if err != nil {
					return err
				}
				printMessage(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
}

func newFlagCmd(g *globalOptions, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <mailbox> <id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(ctx context.Context, sess *mailclient.Session, _ *model.AppConfig) error {
				if name == "seen" {
					return sess.MarkSeen(ctx, args[1], args[0])
				}
				return sess.MarkUnseen(ctx, args[1], args[0])
			})
		},
	}
}

func newDeleteCmd(g *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <mailbox> <id>",
		Short: "Delete a message and expunge the mailbox",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !interactive() {
					return errors.New("refusing to delete without --yes on a non-interactive terminal")
				}
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Delete message %s from %s?", args[1], args[0])).
					Description("Expunge also removes every other message already flagged as deleted.").
					Affirmative("Delete").
					Negative("Cancel").
					Value(&confirmed).
					Run()
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
			}
			return withSession(cmd, g, func(ctx context.Context, sess *mailclient.Session, _ *model.AppConfig) error {
				return sess.Delete(ctx, args[1], args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func printMailboxes(w io.Writer, boxes []model.MailboxSummary) {
	for _, b := range boxes {
		fmt.Fprintln(w, b.Label())
	}
}

func printMessages(w io.Writer, msgs []model.MessageSummary) {
	for _, m := range msgs {
		marker := " "
		if m.Unseen {
			marker = "*"
		}
		fmt.Fprintf(w, "%6s %s %s\n", m.ID, marker, m.Label())
	}
}

func printMessage(w io.Writer, msg *model.Message) {
	for _, f := range [][2]string{
		{"From", msg.From},
		{"To", msg.To},
		{"Date", msg.DisplayDate()},
		{"Subject", model.CleanSubject(msg.Subject)},
	} {
		fmt.Fprintf(w, "%-8s %s\n", f[0]+":", f[1])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimRight(msg.BodyText, "\n"))
}
