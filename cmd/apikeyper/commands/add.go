package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/internal/keyper"
	"github.com/systmms/apikeyper/internal/metadata"
)

func NewAddCommand(app *App) *cobra.Command {
	var (
		keyName string
		status  string
		added   string
	)

	cmd := &cobra.Command{
		Use:   "add <service> [api-key]",
		Short: "Store an API key for a service",
		Long: `Store an API key in the secret backend and record it in the metadata
database. The generated key name is printed on stdout.

When the key is omitted you are prompted for it without echo. Pass "-" to
read it from stdin instead.

Examples:
  # Prompt for the key
  apikeyper add github

  # Give the key a name
  apikeyper add openai sk-abc123 --name work

  # Read from a pipe
  pass show openai | apikeyper add openai - --name personal

  # Record an old key that is already revoked
  apikeyper add stripe sk_live_x --status revoked --added 2023-01-15`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]

			status = strings.TrimSpace(status)
			if status == "" {
				return dserrors.UserError{
					Message:    "Invalid status: must not be empty",
					Suggestion: "Use --status active, or any other label such as revoked or expired",
				}
			}

			req := keyper.AddKeyRequest{Service: service, KeyName: keyName, Status: status}
			if added != "" {
				t, err := parseWhen("added", added)
				if err != nil {
					return err
				}
				req.Added = &t
			}

			value, err := readAddValue(cmd, app, service, args)
			if err != nil {
				return err
			}
			if value == "" {
				return dserrors.UserError{
					Message:    "API key must not be empty",
					Suggestion: "Pass the key as an argument, pipe it with '-', or enter it at the prompt",
				}
			}
			req.Value = value

			m, err := app.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			rec, err := m.AddKey(cmd.Context(), req)
			if err != nil {
				return err
			}

			if rec.Active() {
				app.Config.Logger.Info("Stored %s key %s in %s", service, rec.KeyName, m.Backend().Name())
			} else {
				app.Config.Logger.Info("Recorded %s %s key %s in %s", rec.Status, service, rec.KeyName, m.Backend().Name())
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.KeyName)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyName, "name", keyper.DefaultKeyName, "Key name (default generates one)")
	cmd.Flags().StringVar(&status, "status", metadata.StatusActive, "Key status; only active keys are returned by get")
	cmd.Flags().StringVar(&added, "added", "", "When the key was added (default now)")

	return cmd
}

func readAddValue(cmd *cobra.Command, app *App, service string, args []string) (string, error) {
	if len(args) == 2 && args[1] != "-" {
		return args[1], nil
	}
	if len(args) == 2 {
		return readLine(cmd.InOrStdin())
	}

	p := app.prompter(cmd)
	if p == nil {
		return "", dserrors.UserError{
			Message:    fmt.Sprintf("No API key given for %s", service),
			Suggestion: "Pass the key as an argument or '-' to read stdin",
		}
	}
	return p.PromptSecret(service)
}

