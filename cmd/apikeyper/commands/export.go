package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	dserrors "github.com/systmms/apikeyper/internal/errors"
)

func NewExportCommand(app *App) *cobra.Command {
	var (
		format         string
		outPath        string
		includeSecrets bool
	)

	cmd := &cobra.Command{
		Use:   "export --out <file>",
		Short: "Export key metadata to JSON or XML",
		Long: `Write every service and its keys to a file readable only by you. Secret
values are never exported; key-ids are replaced by a placeholder unless
--include-secrets is given.

The format defaults to the file extension of --out, then to JSON.

Examples:
  apikeyper export --out keys.json
  apikeyper export --out keys.xml
  apikeyper export --format xml --out backup --include-secrets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return dserrors.UserError{
					Message:    "Output file is required",
					Suggestion: "Use --out <file>",
				}
			}

			f, err := exportFormat(format, outPath)
			if err != nil {
				return err
			}

			if includeSecrets {
				app.Config.Overrides.IncludeSecrets = true
			}

			m, err := app.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			if f == "xml" {
				err = m.ExportXML(cmd.Context(), outPath)
			} else {
				err = m.ExportJSON(cmd.Context(), outPath)
			}
			if err != nil {
				return err
			}

			if m.Options().IncludeSecrets {
				app.Config.Logger.Warn("Export %s contains key-ids", outPath)
			}
			app.Config.Logger.Info("Exported keys to %s", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Export format: json or xml")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (required)")
	cmd.Flags().BoolVar(&includeSecrets, "include-secrets", false, "Include key-ids instead of a placeholder")

	return cmd
}

func exportFormat(format, path string) (string, error) {
	f := strings.ToLower(format)
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if f != "xml" {
			f = "json"
		}
	}
	if f != "json" && f != "xml" {
		return "", dserrors.UserError{
			Message:    fmt.Sprintf("Unsupported export format %q", format),
			Suggestion: "Use --format json or --format xml",
		}
	}
	return f, nil
}
