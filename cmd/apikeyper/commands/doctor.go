package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/apikeyper/internal/backends"
)

// backendCheckTimeout bounds the backend validation call.
const backendCheckTimeout = 10 * time.Second

type checkResult struct {
	Name   string
	Status string
	Detail string
}

func NewDoctorCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, backend and metadata consistency",
		Long: `Verify that apikeyper is usable.

This command checks:
- Configuration file validity
- Metadata database access
- Secret backend reachability
- Metadata rows whose secret is missing from the backend

Nothing is modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := app.Config.Logger

			logger.Info("Checking apikeyper configuration...")
			m, err := app.manager(ctx)
			if err != nil {
				logger.Error("Setup failed: %v", err)
				return err
			}
			defer m.Close()

			s := app.Config.Settings
			driver, _ := s.DataSource()
			results := []checkResult{
				{Name: "config", Status: "ok", Detail: app.Config.Path},
				{Name: "database", Status: "ok", Detail: driver},
			}

			backend := checkResult{Name: "backend", Status: "ok", Detail: m.Backend().Name()}
			wanted := s.Backend.Type
			if wanted == "" {
				wanted = backends.KeyringBackendName
			}
			if wanted != m.Backend().Name() {
				backend.Status = "warning"
				backend.Detail = fmt.Sprintf("%s unavailable, using %s", wanted, m.Backend().Name())
			}
			if err := m.CheckBackend(ctx, backendCheckTimeout); err != nil {
				backend.Status = "error"
				backend.Detail = err.Error()
			}
			results = append(results, backend)

			consistency := checkResult{Name: "metadata", Status: "ok", Detail: "every key has a secret"}
			orphans, err := m.Verify(ctx)
			switch {
			case err != nil:
				consistency.Status = "error"
				consistency.Detail = err.Error()
			case len(orphans) > 0:
				consistency.Status = "warning"
				consistency.Detail = fmt.Sprintf("%d key(s) without a secret", len(orphans))
			}
			results = append(results, consistency)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, o := range orphans {
				logger.Warn("%s/%s has no secret in %s", o.Service, o.KeyName, m.Backend().Name())
			}

			failed := 0
			for _, r := range results {
				if r.Status == "error" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			logger.Info("All checks passed")
			return nil
		},
	}

	return cmd
}
