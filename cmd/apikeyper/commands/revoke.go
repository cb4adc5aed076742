package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/internal/keyper"
	"github.com/systmms/apikeyper/internal/metadata"
)

func NewRevokeCommand(app *App) *cobra.Command {
	var (
		keyName string
		at      string
	)

	cmd := &cobra.Command{
		Use:   "revoke <service> --name <key-name>",
		Short: "Mark an API key as revoked",
		Long: `Mark a key revoked. The secret stays in the backend but the key is no
longer returned by get or ensure.

Examples:
  apikeyper revoke openai --name work
  apikeyper revoke stripe --name live --at 2024-06-30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]
			if keyName == "" {
				return dserrors.UserError{
					Message:    "Key name is required",
					Suggestion: fmt.Sprintf("Use --name <key-name>; see 'apikeyper list %s'", service),
				}
			}

			var when time.Time
			if at != "" {
				t, err := parseWhen("at", at)
				if err != nil {
					return err
				}
				when = t
			}

			m, err := app.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			rec, err := m.RevokeKey(cmd.Context(), service, keyName, when)
			if errors.Is(err, keyper.ErrKeyNotFound) {
				return dserrors.UserError{
					Message:    fmt.Sprintf("No key named %s for %s", keyName, service),
					Suggestion: fmt.Sprintf("See 'apikeyper list %s' for existing keys", service),
					Err:        err,
				}
			}
			if err != nil {
				return err
			}

			app.Config.Logger.Info("Revoked %s/%s on %s", service, keyName, metadata.FormatTime(*rec.RevokedOn))
			return nil
		},
	}

	cmd.Flags().StringVar(&keyName, "name", "", "Key name (required)")
	cmd.Flags().StringVar(&at, "at", "", "Revocation time (default now)")

	return cmd
}
