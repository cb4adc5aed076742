package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/apikeyper/internal/config"
	"github.com/systmms/apikeyper/internal/keyper"
	"github.com/systmms/apikeyper/internal/logging"
	"github.com/systmms/apikeyper/internal/metrics"
)

// OpenFunc builds a Manager from loaded configuration.
type OpenFunc func(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*keyper.Manager, error)

// App is the state shared by every command.
type App struct {
	Config  *config.Config
	Metrics *metrics.Recorder

	// Prompter reads missing secrets. Nil uses the controlling terminal.
	Prompter keyper.Prompter

	// Open defaults to keyper.Open.
	Open OpenFunc
}

// NewApp returns an App with an empty config and a fresh metrics recorder.
func NewApp() *App {
	return &App{
		Config:  &config.Config{},
		Metrics: metrics.New(),
	}
}

// manager loads configuration and opens a Manager. Callers must Close it.
func (a *App) manager(ctx context.Context) (*keyper.Manager, error) {
	if err := a.Config.Load(); err != nil {
		return nil, err
	}
	open := a.Open
	if open == nil {
		open = keyper.Open
	}
	return open(ctx, a.Config, a.Metrics)
}

func (a *App) prompter(cmd *cobra.Command) keyper.Prompter {
	if a.Config.NonInteractive {
		return nil
	}
	if a.Prompter != nil {
		return a.Prompter
	}
	return newTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
}

// WriteMetrics dumps the metrics textfile when one is configured. Call it
// after the command tree has run, whether or not the command failed.
func (a *App) WriteMetrics() error {
	s := a.Config.Settings
	if s == nil || s.MetricsTextfile == "" {
		return nil
	}
	if err := a.Metrics.WriteTextfile(s.MetricsTextfile); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", s.MetricsTextfile, err)
	}
	return nil
}

// NewRootCommand builds the apikeyper command tree.
func NewRootCommand(app *App, version string) *cobra.Command {
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
		dbPath         string
		profile        string
		backendType    string
	)

	rootCmd := &cobra.Command{
		Use:   "apikeyper",
		Short: "Personal API key manager",
		Long: `apikeyper stores API keys in your system keyring (or another secret
backend) and keeps a small metadata database of which keys exist, when they
were added and whether they are still active.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := app.Config
			cfg.Path = configFile
			cfg.Logger = logging.NewWithWriter(cmd.ErrOrStderr(), debug, noColor)
			cfg.NonInteractive = nonInteractive
			cfg.Overrides.DBPath = dbPath
			cfg.Overrides.Profile = profile
			cfg.Overrides.Backend = backendType
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", config.DefaultConfigPath(), "Config file path")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; fail instead")
	flags.StringVar(&dbPath, "db", "", "Metadata database path (overrides config)")
	flags.StringVar(&profile, "profile", "", "Key profile (overrides config)")
	flags.StringVar(&backendType, "backend", "", "Secret backend: "+strings.Join(config.BackendTypes(), ", "))

	rootCmd.AddCommand(
		NewAddCommand(app),
		NewGetCommand(app),
		NewDeleteCommand(app),
		NewRevokeCommand(app),
		NewListCommand(app),
		NewExportCommand(app),
		NewEnsureCommand(app),
		NewExecCommand(app),
		NewDoctorCommand(app),
		NewCompletionCommand(app),
	)

	return rootCmd
}
