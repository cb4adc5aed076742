package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/internal/keyper"
	"github.com/systmms/apikeyper/internal/metadata"
	"golang.org/x/term"
)

// terminalPrompter reads secrets without echo when in is a terminal and
// falls back to a plain line read otherwise.
type terminalPrompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, out: out}
}

func (p *terminalPrompter) PromptSecret(service string) (string, error) {
	fmt.Fprintf(p.out, "No API key found for %s. Enter API key: ", service)

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	return readBufferedLine(p.reader)
}

func readLine(r io.Reader) (string, error) {
	return readBufferedLine(bufio.NewReader(r))
}

func readBufferedLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var addedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseWhen accepts RFC 3339 timestamps and plain dates for --added/--at.
func parseWhen(flag, value string) (time.Time, error) {
	for _, layout := range addedLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, dserrors.UserError{
		Message:    fmt.Sprintf("Invalid --%s value %q", flag, value),
		Suggestion: "Use a date like 2024-03-01 or an RFC 3339 timestamp",
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func missingKeyError(err error) error {
	var missing *keyper.MissingKeyError
	if !errors.As(err, &missing) {
		return err
	}
	return dserrors.UserError{
		Message:    fmt.Sprintf("No API key found for %s", missing.Service),
		Suggestion: fmt.Sprintf("Run 'apikeyper add %s' or drop --non-interactive to be prompted", missing.Service),
		Err:        err,
	}
}

func notFoundError(service, keyName string) error {
	return dserrors.UserError{
		Message:    fmt.Sprintf("No active API key found for %s", describeTarget(service, keyName)),
		Suggestion: fmt.Sprintf("Add one with 'apikeyper add %s' or check 'apikeyper list %s'", service, service),
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return metadata.FormatTime(*t)
}
