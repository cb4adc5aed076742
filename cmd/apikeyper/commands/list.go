package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/apikeyper/internal/metadata"
)

type listedKey struct {
	KeyName   string  `json:"key_name"`
	Added     string  `json:"added"`
	Status    string  `json:"status"`
	RevokedOn *string `json:"revoked_on"`
	Key       string  `json:"key,omitempty"`
}

func NewListCommand(app *App) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list [service]",
		Short: "List services or the keys of a service",
		Long: `Without arguments, list every service that has keys. With a service,
list its keys in the order they were added. Key-ids are only shown when
include_secrets is enabled.

Examples:
  apikeyper list
  apikeyper list openai --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			m, err := app.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			if len(args) == 0 {
				services, err := m.ListServices(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					if services == nil {
						services = []string{}
					}
					return writeJSON(out, services)
				}
				for _, s := range services {
					fmt.Fprintln(out, s)
				}
				return nil
			}

			service := args[0]
			records, err := m.ListKeys(ctx, service)
			if err != nil {
				return err
			}
			showKeys := m.Options().IncludeSecrets

			if jsonOutput {
				keys := make([]listedKey, 0, len(records))
				for _, r := range records {
					k := listedKey{
						KeyName: r.KeyName,
						Added:   metadata.FormatTime(r.Added),
						Status:  r.Status,
					}
					if r.RevokedOn != nil {
						s := metadata.FormatTime(*r.RevokedOn)
						k.RevokedOn = &s
					}
					if showKeys {
						k.Key = r.Key
					}
					keys = append(keys, k)
				}
				return writeJSON(out, keys)
			}

			if len(records) == 0 {
				app.Config.Logger.Warn("No keys found for %s", service)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			if showKeys {
				fmt.Fprintln(w, "NAME\tADDED\tSTATUS\tREVOKED ON\tKEY")
			} else {
				fmt.Fprintln(w, "NAME\tADDED\tSTATUS\tREVOKED ON")
			}
			for _, r := range records {
				if showKeys {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.KeyName, metadata.FormatTime(r.Added), r.Status, formatOptional(r.RevokedOn), r.Key)
				} else {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.KeyName, metadata.FormatTime(r.Added), r.Status, formatOptional(r.RevokedOn))
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
