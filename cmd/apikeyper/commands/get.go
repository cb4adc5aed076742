package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/apikeyper/internal/metadata"
)

type getOutput struct {
	Service string `json:"service"`
	KeyName string `json:"key_name"`
	Value   string `json:"value"`
	Added   string `json:"added"`
	Status  string `json:"status"`
}

func NewGetCommand(app *App) *cobra.Command {
	var (
		keyName    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "get <service>",
		Short: "Print an active API key",
		Long: `Print the secret of an active key to stdout. Without --name the most
recently added active key of the service is used. Only the raw value is
printed, so the output can be used in scripts.

Examples:
  # Latest active key
  apikeyper get github

  # A specific key
  apikeyper get openai --name work

  # Use in scripts
  export OPENAI_API_KEY=$(apikeyper get openai)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]
			ctx := cmd.Context()

			m, err := app.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			rec, err := m.GetRecord(ctx, service, keyName, true)
			if err != nil {
				return err
			}
			if rec == nil {
				return notFoundError(service, keyName)
			}

			value, found, err := m.GetKey(ctx, service, rec.KeyName)
			if err != nil {
				return err
			}
			if !found {
				app.Config.Logger.Warn("Key %s/%s has metadata but no secret in %s", service, rec.KeyName, m.Backend().Name())
				return notFoundError(service, rec.KeyName)
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), getOutput{
					Service: service,
					KeyName: rec.KeyName,
					Value:   value,
					Added:   metadata.FormatTime(rec.Added),
					Status:  rec.Status,
				})
			}

			fmt.Fprint(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyName, "name", "", "Key name (default latest active)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output value with metadata as JSON")

	return cmd
}
