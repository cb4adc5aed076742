// Package execenv runs a child command with API keys injected as
// environment variables.
package execenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/internal/logging"
)

// ExitError carries a child's non-zero exit status back to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// Executor runs commands with extra environment variables.
type Executor struct {
	logger *logging.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Environ returns the base environment; defaults to os.Environ.
	Environ func() []string
}

func New(logger *logging.Logger) *Executor {
	return &Executor{
		logger:  logger,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Environ: os.Environ,
	}
}

// ExecOptions configures command execution
type ExecOptions struct {
	Command     []string
	Environment map[string]string
	// KeepExisting leaves variables already set in the parent untouched.
	KeepExisting bool
}

// Exec runs the command and waits for it. A non-zero exit is returned as
// *ExitError.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) error {
	if len(options.Command) == 0 {
		return dserrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., apikeyper exec openai -- python app.py)",
		}
	}

	name := options.Command[0]
	if _, err := exec.LookPath(name); err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Command not found: %s", name),
			Suggestion: "Check the command name and your PATH",
			Err:        err,
		}
	}

	cmd := exec.CommandContext(ctx, name, options.Command[1:]...)
	cmd.Env = e.buildEnvironment(options.Environment, options.KeepExisting)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	e.logger.Debug("Executing %s with %d injected variable(s): %s",
		strings.Join(options.Command, " "), len(options.Environment), strings.Join(sortedKeys(options.Environment), ", "))

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", name, err)
	}
	return nil
}

func (e *Executor) buildEnvironment(vars map[string]string, keepExisting bool) []string {
	environ := e.Environ
	if environ == nil {
		environ = os.Environ
	}

	envMap := make(map[string]string)
	for _, kv := range environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}

	for k, v := range vars {
		if _, exists := envMap[k]; exists && keepExisting {
			e.logger.Debug("Keeping existing %s", k)
			continue
		}
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for _, k := range sortedKeys(envMap) {
		result = append(result, k+"="+envMap[k])
	}
	return result
}

// VarName maps a service to <SERVICE>_API_KEY. Characters not valid in
// shell identifiers become underscores.
func VarName(service string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, service)
	if mapped != "" && mapped[0] >= '0' && mapped[0] <= '9' {
		mapped = "_" + mapped
	}
	return mapped + "_API_KEY"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
