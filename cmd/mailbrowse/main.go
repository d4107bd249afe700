package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailbrowse/internal/app"
	"github.com/nhle/mailbrowse/internal/credential"
	"github.com/nhle/mailbrowse/internal/logging"
	"github.com/nhle/mailbrowse/internal/model"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "mailbrowse",
		Short:         "Browse an IMAP mailbox from the terminal",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), g)
		},
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", model.DefaultConfigPath(), "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override log.level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		newLoginCmd(g),
		newMailboxesCmd(g),
		newMessagesCmd(g),
		newShowCmd(g),
		newFlagCmd(g, "seen", "Mark a message as seen"),
		newFlagCmd(g, "unseen", "Mark a message as unseen"),
		newDeleteCmd(g),
	)
	return rootCmd
}

func versionString() string {
	if commit != "" {
		return version + " (" + commit + ")"
	}
	return version
}

// load reads the configuration and builds the logger for target.
func (g *globalOptions) load(target logging.Target) (*model.AppConfig, zerolog.Logger, func() error, error) {
	cfg, err := model.LoadConfig(g.configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	log, release, err := logging.New(cfg.Log, target)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, release, nil
}

func runTUI(ctx context.Context, g *globalOptions) error {
	cfg, log, release, err := g.load(logging.Discard)
	if err != nil {
		return err
	}
	defer release()

	store, err := credential.Open()
	if err != nil {
		log.Warn().Err(err).Msg("Keyring unavailable, passwords will not be saved")
	}

	password := ""
	if store != nil && cfg.Account.Username != "" && cfg.Account.Host != "" {
		password, err = store.Password(cfg.Account.Username, cfg.Account.Host)
		if err != nil && !credential.IsNotFound(err) {
			log.Warn().Err(err).Msg("Reading password from keyring failed")
		}
	} else {
		password = os.Getenv(credential.PasswordEnv)
	}

	m := app.New(ctx, app.Options{
		Account:     cfg.Account,
		Password:    password,
		Browse:      cfg.Browse,
		Connect:     app.Connect(cfg, &log),
		Credentials: store,
		Logger:      log,
	})
	defer func() {
		if err := m.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Logout failed")
		}
	}()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}
