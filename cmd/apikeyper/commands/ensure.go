package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/apikeyper/internal/execenv"
)

func NewEnsureCommand(app *App) *cobra.Command {
	var envOutput bool

	cmd := &cobra.Command{
		Use:   "ensure <service>...",
		Short: "Make sure every service has an active key",
		Long: `Check that each service has an active key and prompt for any that are
missing. New keys are stored with generated names. With --non-interactive a
missing key is an error.

With --env the keys are printed as shell exports named <SERVICE>_API_KEY,
so a script can load them in one step.

Examples:
  apikeyper ensure github openai
  eval "$(apikeyper ensure github openai --env)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			m, err := app.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			keys, err := m.EnsureKeys(ctx, args, app.prompter(cmd))
			if err != nil {
				return missingKeyError(err)
			}

			seen := make(map[string]bool, len(args))
			for _, service := range args {
				if seen[service] {
					continue
				}
				seen[service] = true
				if envOutput {
					fmt.Fprintf(out, "export %s=%s\n", execenv.VarName(service), shellQuote(keys[service]))
				} else {
					app.Config.Logger.Info("%s has an active key", service)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&envOutput, "env", false, "Print keys as shell export statements")

	return cmd
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
