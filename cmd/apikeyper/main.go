package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/systmms/apikeyper/cmd/apikeyper/commands"
	"github.com/systmms/apikeyper/internal/execenv"
	"github.com/systmms/apikeyper/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	secure.Purge()

	var exitErr *execenv.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := commands.NewApp()
	rootCmd := commands.NewRootCommand(app, fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	err := rootCmd.Execute()
	if merr := app.WriteMetrics(); merr != nil {
		if err == nil {
			return merr
		}
		fmt.Fprintf(os.Stderr, "Warning: %v\n", merr)
	}
	return err
}
