package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	dserrors "github.com/systmms/apikeyper/internal/errors"
)

func NewDeleteCommand(app *App) *cobra.Command {
	var (
		keyName string
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "delete <service>",
		Short: "Delete API keys from the backend and the database",
		Long: `Delete one key, or every key of a service when --name is omitted. The
secret is removed from the backend first and then its metadata row. A key
whose secret could not be removed keeps its row so the delete can be
retried.

Examples:
  # Delete one key
  apikeyper delete openai --name work

  # Delete all keys of a service without confirmation
  apikeyper delete github --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]
			ctx := cmd.Context()

			m, err := app.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			var count int
			if keyName != "" {
				rec, err := m.GetRecord(ctx, service, keyName, false)
				if err != nil {
					return err
				}
				if rec != nil {
					count = 1
				}
			} else {
				recs, err := m.ListKeys(ctx, service)
				if err != nil {
					return err
				}
				count = len(recs)
			}

			if count == 0 {
				app.Config.Logger.Warn("No keys found for %s", describeTarget(service, keyName))
				return nil
			}

			if !yes {
				if app.Config.NonInteractive {
					return dserrors.UserError{
						Message:    fmt.Sprintf("Refusing to delete %d key(s) for %s without confirmation", count, describeTarget(service, keyName)),
						Suggestion: "Pass --yes to confirm",
					}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Delete %d key(s) for %s? [y/N] ", count, describeTarget(service, keyName))
				answer, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				if a := strings.ToLower(answer); a != "y" && a != "yes" {
					app.Config.Logger.Info("Aborted")
					return nil
				}
			}

			deleted, err := m.DeleteKey(ctx, service, keyName)
			if deleted > 0 {
				app.Config.Logger.Info("Deleted %d key(s) for %s", deleted, describeTarget(service, keyName))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&keyName, "name", "", "Key name (default all keys of the service)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

func describeTarget(service, keyName string) string {
	if keyName == "" {
		return service
	}
	return service + "/" + keyName
}
