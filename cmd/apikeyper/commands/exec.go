package commands

import (
	"github.com/spf13/cobra"
	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/internal/execenv"
)

func NewExecCommand(app *App) *cobra.Command {
	var keepExisting bool

	cmd := &cobra.Command{
		Use:   "exec <service>... -- <command> [args...]",
		Short: "Run a command with API keys in its environment",
		Long: `Run a command with the active key of each service exported as
<SERVICE>_API_KEY. Missing keys are prompted for first, as with ensure.
The keys only exist in the child's environment.

The exit status of the command is passed through.

Examples:
  apikeyper exec openai -- python summarize.py
  apikeyper exec github openai -- make release
  apikeyper exec github --keep-existing -- gh repo list`,
		Args: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 1 {
				return dserrors.UserError{
					Message:    "At least one service is required before --",
					Suggestion: "apikeyper exec <service>... -- <command>",
				}
			}
			if dash == len(args) {
				return dserrors.UserError{
					Message:    "No command specified",
					Suggestion: "Provide a command after -- (e.g., apikeyper exec openai -- python app.py)",
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dash := cmd.ArgsLenAtDash()
			services, command := args[:dash], args[dash:]

			m, err := app.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			keys, err := m.EnsureKeys(ctx, services, app.prompter(cmd))
			if err != nil {
				return missingKeyError(err)
			}

			env := make(map[string]string, len(keys))
			for service, value := range keys {
				env[execenv.VarName(service)] = value
			}

			executor := execenv.New(app.Config.Logger)
			executor.Stdin = cmd.InOrStdin()
			executor.Stdout = cmd.OutOrStdout()
			executor.Stderr = cmd.ErrOrStderr()

			return executor.Exec(ctx, execenv.ExecOptions{
				Command:      command,
				Environment:  env,
				KeepExisting: keepExisting,
			})
		},
	}

	cmd.Flags().BoolVar(&keepExisting, "keep-existing", false, "Do not override variables already set")

	return cmd
}
