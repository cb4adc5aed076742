package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/apikeyper/internal/backends"
	"github.com/systmms/apikeyper/internal/config"
	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/internal/execenv"
	"github.com/systmms/apikeyper/internal/keyper"
	"github.com/systmms/apikeyper/internal/metadata"
	"github.com/systmms/apikeyper/internal/metrics"
	"github.com/systmms/apikeyper/tests/testutil"
)

// cliEnv runs commands against one sqlite file and one in-memory backend
// shared across invocations, the way a keyring persists between runs.
type cliEnv struct {
	dir        string
	dbPath     string
	configPath string
	backend    *backends.MemoryBackend
	prompter   keyper.Prompter
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	return &cliEnv{
		dir:        dir,
		dbPath:     filepath.Join(dir, "apikeyper.db"),
		configPath: filepath.Join(dir, "missing.yaml"),
		backend:    backends.NewMemoryBackend(),
	}
}

func (e *cliEnv) open(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*keyper.Manager, error) {
	s := cfg.Settings
	driver, dsn := s.DataSource()
	store, err := metadata.Open(ctx, driver, dsn, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return keyper.New(store, e.backend, cfg.Logger, rec, keyper.Options{
		Namespace:      s.Namespace,
		Profile:        s.Profile,
		IncludeSecrets: s.IncludeSecrets,
	}), nil
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()

	app := NewApp()
	app.Open = e.open
	app.Prompter = e.prompter

	root := NewRootCommand(app, "test")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.configPath, "--db", e.dbPath, "--no-color"}, args...))

	err := root.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) cliResult {
	t.Helper()
	res := e.run(t, "", args...)
	require.NoError(t, res.err, "stderr: %s", res.stderr)
	return res
}

func TestAddAndGet(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)

	res := e.mustRun(t, "add", "github", "ghp_abc123", "--name", "personal")
	assert.Equal(t, "personal\n", res.stdout)
	assert.Contains(t, res.stderr, "Stored github key personal in memory")
	assert.NotContains(t, res.stderr, "ghp_abc123")

	res = e.mustRun(t, "get", "github")
	assert.Equal(t, "ghp_abc123", res.stdout)

	res = e.mustRun(t, "get", "github", "--name", "personal", "--json")
	var out getOutput
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "github", out.Service)
	assert.Equal(t, "personal", out.KeyName)
	assert.Equal(t, "ghp_abc123", out.Value)
	assert.Equal(t, metadata.StatusActive, out.Status)
	assert.Equal(t, 1, e.backend.Len())
}

func TestAdd_GeneratedName(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)

	res := e.mustRun(t, "add", "openai", "sk-1")
	name := strings.TrimSpace(res.stdout)
	assert.Regexp(t, `^openai_key_[0-9a-f]{8}$`, name)

	res = e.mustRun(t, "get", "openai", "--name", name)
	assert.Equal(t, "sk-1", res.stdout)
}

func TestAdd_ValueSources(t *testing.T) {
	t.Parallel()

	t.Run("stdin_dash", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.run(t, "piped-secret\n", "add", "stripe", "-", "--name", "live")
		require.NoError(t, res.err)
		assert.Equal(t, "piped-secret", e.mustRun(t, "get", "stripe").stdout)
	})

	t.Run("prompt", func(t *testing.T) {
		e := newCLIEnv(t)
		e.prompter = keyper.PrompterFunc(func(service string) (string, error) {
			return "prompted-" + service, nil
		})
		e.mustRun(t, "add", "github", "--name", "work")
		assert.Equal(t, "prompted-github", e.mustRun(t, "get", "github").stdout)
	})

	t.Run("terminal_fallback_reads_line", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.run(t, "typed-secret\n", "add", "github", "--name", "work")
		require.NoError(t, res.err)
		assert.Contains(t, res.stderr, "Enter API key")
		assert.Equal(t, "typed-secret", e.mustRun(t, "get", "github").stdout)
	})

	t.Run("non_interactive_requires_value", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.run(t, "", "--non-interactive", "add", "github")
		require.Error(t, res.err)
		assert.True(t, dserrors.IsUserError(res.err))
		assert.Equal(t, 0, e.backend.Len())
	})

	t.Run("empty_value", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.run(t, "\n", "add", "github", "-")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "must not be empty")
	})
}

func TestAdd_StatusAndAdded(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)

	res := e.run(t, "", "add", "github", "v", "--status", " ")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Invalid status")

	res = e.mustRun(t, "add", "github", "v", "--name", "old", "--status", "expired")
	assert.Contains(t, res.stderr, "Recorded expired github key old")
	res = e.run(t, "", "get", "github")
	require.Error(t, res.err, "only active keys are returned")
	res = e.mustRun(t, "list", "github", "--json")
	var expired []listedKey
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &expired))
	require.Len(t, expired, 1)
	assert.Equal(t, "expired", expired[0].Status)

	res = e.run(t, "", "add", "github", "v", "--added", "last tuesday")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Invalid --added")

	e.mustRun(t, "add", "stripe", "old", "--name", "legacy", "--status", "revoked", "--added", "2023-01-15")

	res = e.run(t, "", "get", "stripe")
	require.Error(t, res.err)
	assert.True(t, dserrors.IsUserError(res.err))

	res = e.mustRun(t, "list", "stripe", "--json")
	var keys []listedKey
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, metadata.StatusRevoked, keys[0].Status)
	assert.True(t, strings.HasPrefix(keys[0].Added, "2023-01-1"))
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)

	res := e.run(t, "", "get", "nothing")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "No active API key found for nothing")
	assert.Empty(t, res.stdout)

	e.mustRun(t, "add", "github", "v", "--name", "a")
	require.NoError(t, e.backend.Delete(context.Background(), keyIDFor(t, e, "github", "a")))

	res = e.run(t, "", "get", "github")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "has metadata but no secret")
}

func keyIDFor(t *testing.T, e *cliEnv, service, name string) string {
	t.Helper()
	store, err := metadata.Open(context.Background(), "sqlite", e.dbPath, nil)
	require.NoError(t, err)
	defer store.Close()
	rec, err := store.GetKey(context.Background(), service, name, false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec.Key
}

func TestProfileScopesNewKeyIDs(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)

	e.mustRun(t, "--profile", "work", "add", "github", "work-token", "--name", "personal")
	assert.Equal(t, "apikeyper:ac34ab5031ce07e1", keyIDFor(t, e, "github", "personal"))

	// Lookups follow the key-id stored in the row, whatever the profile.
	assert.Equal(t, "work-token", e.mustRun(t, "get", "github").stdout)
	assert.Equal(t, "work-token", e.mustRun(t, "--profile", "home", "get", "github").stdout)

	// Re-adding the same row without a profile writes under a new key-id.
	e.mustRun(t, "add", "github", "home-token", "--name", "personal")
	assert.Equal(t, "apikeyper:cb1c6d7073fabd8a", keyIDFor(t, e, "github", "personal"))
	assert.Equal(t, "home-token", e.mustRun(t, "--profile", "work", "get", "github").stdout)
	assert.Equal(t, 2, e.backend.Len(), "the secret under the old key-id is left in place")
}

func TestDelete(t *testing.T) {
	t.Parallel()

	t.Run("single_with_yes", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "aws", "a", "--name", "one")
		e.mustRun(t, "add", "aws", "b", "--name", "two")

		res := e.mustRun(t, "delete", "aws", "--name", "one", "--yes")
		assert.Contains(t, res.stderr, "Deleted 1 key(s) for aws/one")
		assert.Equal(t, 1, e.backend.Len())
		assert.Equal(t, "b", e.mustRun(t, "get", "aws").stdout)
	})

	t.Run("all_confirmed", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "aws", "a", "--name", "one")
		e.mustRun(t, "add", "aws", "b", "--name", "two")

		res := e.run(t, "y\n", "delete", "aws")
		require.NoError(t, res.err)
		assert.Contains(t, res.stderr, "Delete 2 key(s) for aws?")
		assert.Equal(t, 0, e.backend.Len())
		assert.Empty(t, e.mustRun(t, "list").stdout)
	})

	t.Run("declined", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "aws", "a", "--name", "one")

		res := e.run(t, "n\n", "delete", "aws")
		require.NoError(t, res.err)
		assert.Contains(t, res.stderr, "Aborted")
		assert.Equal(t, 1, e.backend.Len())
	})

	t.Run("non_interactive_needs_yes", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "aws", "a", "--name", "one")

		res := e.run(t, "", "--non-interactive", "delete", "aws")
		require.Error(t, res.err)
		assert.True(t, dserrors.IsUserError(res.err))
		assert.Equal(t, 1, e.backend.Len())
	})

	t.Run("nothing_to_delete", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.mustRun(t, "delete", "ghost", "--yes")
		assert.Contains(t, res.stderr, "No keys found for ghost")
	})
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)

	res := e.run(t, "", "revoke", "openai")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Key name is required")

	res = e.run(t, "", "revoke", "openai", "--name", "missing")
	require.Error(t, res.err)
	assert.True(t, dserrors.IsUserError(res.err))
	assert.ErrorIs(t, res.err, keyper.ErrKeyNotFound)

	e.mustRun(t, "add", "openai", "sk-old", "--name", "old", "--added", "2024-01-01")
	e.mustRun(t, "add", "openai", "sk-new", "--name", "new", "--added", "2024-02-01")

	res = e.mustRun(t, "revoke", "openai", "--name", "new", "--at", "2024-03-01T10:00:00Z")
	assert.Contains(t, res.stderr, "Revoked openai/new on 2024-03-01T10:00:00.000000Z")

	assert.Equal(t, "sk-old", e.mustRun(t, "get", "openai").stdout)
	assert.Equal(t, 2, e.backend.Len(), "revoke keeps the secret")
}

func TestList(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)

	res := e.mustRun(t, "list", "--json")
	assert.JSONEq(t, "[]", res.stdout)

	e.mustRun(t, "add", "openai", "v1", "--name", "first", "--added", "2024-01-01")
	e.mustRun(t, "add", "openai", "v2", "--name", "second", "--added", "2024-02-01")
	e.mustRun(t, "add", "github", "v3", "--name", "only")

	res = e.mustRun(t, "list")
	assert.Equal(t, "github\nopenai\n", res.stdout)

	res = e.mustRun(t, "list", "openai")
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.NotContains(t, lines[0], "KEY")
	assert.True(t, strings.HasPrefix(lines[1], "first"))
	assert.True(t, strings.HasPrefix(lines[2], "second"))
	assert.NotContains(t, res.stdout, "apikeyper:")

	res = e.mustRun(t, "list", "openai", "--json")
	var keys []listedKey
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &keys))
	require.Len(t, keys, 2)
	assert.Nil(t, keys[0].RevokedOn)
	assert.Empty(t, keys[0].Key)

	res = e.mustRun(t, "list", "ghost")
	assert.Contains(t, res.stderr, "No keys found for ghost")
}

func TestList_IncludeSecretsFromConfig(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)
	e.configPath = testutil.WriteTestConfig(t, "include_secrets: true\n")

	e.mustRun(t, "add", "github", "v", "--name", "personal")
	res := e.mustRun(t, "list", "github")
	assert.Contains(t, res.stdout, "apikeyper:cb1c6d7073fabd8a")
}

func TestExport(t *testing.T) {
	t.Parallel()
	e := newCLIEnv(t)
	e.mustRun(t, "add", "github", "ghp_value", "--name", "personal")

	t.Run("json_by_extension", func(t *testing.T) {
		path := filepath.Join(e.dir, "keys.json")
		e.mustRun(t, "export", "--out", path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), metadata.RedactedPlaceholder)
		testutil.AssertNoSecretLeak(t, string(data), []string{"ghp_value", "apikeyper:cb1c6d7073fabd8a"})
		testutil.AssertFileMode(t, path, 0600)
	})

	t.Run("xml_by_extension_with_secrets", func(t *testing.T) {
		path := filepath.Join(e.dir, "keys.xml")
		res := e.mustRun(t, "export", "--out", path, "--include-secrets")
		assert.Contains(t, res.stderr, "contains key-ids")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var doc struct {
			XMLName xml.Name `xml:"services"`
		}
		require.NoError(t, xml.Unmarshal(data, &doc))
		assert.Contains(t, string(data), "apikeyper:cb1c6d7073fabd8a")
		assert.NotContains(t, string(data), "ghp_value")
	})

	t.Run("explicit_format_wins", func(t *testing.T) {
		path := filepath.Join(e.dir, "backup")
		e.mustRun(t, "export", "--format", "xml", "--out", path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "<?xml"))
	})

	t.Run("errors", func(t *testing.T) {
		res := e.run(t, "", "export")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "Output file is required")

		res = e.run(t, "", "export", "--format", "csv", "--out", filepath.Join(e.dir, "x"))
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "Unsupported export format")
	})
}

func TestEnsure(t *testing.T) {
	t.Parallel()

	t.Run("prompts_for_missing", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "github", "ghp_have", "--name", "personal")

		res := e.run(t, "sk-typed\n", "ensure", "github", "open-ai", "github", "--env")
		require.NoError(t, res.err, res.stderr)
		assert.Equal(t, "export GITHUB_API_KEY='ghp_have'\nexport OPEN_AI_API_KEY='sk-typed'\n", res.stdout)
		assert.Equal(t, 1, strings.Count(res.stderr, "Enter API key"))
		assert.Equal(t, 2, e.backend.Len())
	})

	t.Run("non_interactive_missing", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.run(t, "", "--non-interactive", "ensure", "github")
		require.Error(t, res.err)
		assert.True(t, dserrors.IsUserError(res.err))
		assert.Contains(t, res.err.Error(), "No API key found for github")
		assert.Empty(t, res.stdout)
	})

	t.Run("summary_hides_values", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "github", "ghp_have")
		res := e.mustRun(t, "ensure", "github")
		assert.Empty(t, res.stdout)
		assert.Contains(t, res.stderr, "github has an active key")
		assert.NotContains(t, res.stderr, "ghp_have")
	})
}

func TestShellQuote(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestExec(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	t.Parallel()

	t.Run("injects_keys", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "github", "ghp_have", "--name", "personal")
		e.mustRun(t, "add", "open-ai", "sk-have", "--name", "main")

		res := e.mustRun(t, "exec", "github", "open-ai", "--", "sh", "-c", `printf "%s %s" "$GITHUB_API_KEY" "$OPEN_AI_API_KEY"`)
		assert.Equal(t, "ghp_have sk-have", res.stdout)
		assert.NotContains(t, res.stderr, "ghp_have")
	})

	t.Run("exit_status_passes_through", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "add", "github", "v")

		res := e.run(t, "", "exec", "github", "--", "sh", "-c", "exit 3")
		var exitErr *execenv.ExitError
		require.ErrorAs(t, res.err, &exitErr)
		assert.Equal(t, 3, exitErr.Code)
	})

	t.Run("usage_errors", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.run(t, "", "exec", "--", "true")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "At least one service")

		res = e.run(t, "", "exec", "github", "--")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "No command specified")
	})

	t.Run("missing_key_non_interactive", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.run(t, "", "--non-interactive", "exec", "github", "--", "true")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "No API key found for github")
	})
}

func TestDoctor(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "--backend", "memory", "add", "github", "v", "--name", "a")

		res := e.mustRun(t, "--backend", "memory", "doctor")
		assert.Contains(t, res.stdout, "CHECK")
		assert.Contains(t, res.stdout, "every key has a secret")
		assert.Contains(t, res.stderr, "All checks passed")
	})

	t.Run("orphan_is_warning", func(t *testing.T) {
		e := newCLIEnv(t)
		e.mustRun(t, "--backend", "memory", "add", "github", "v", "--name", "a")
		e.backend.ClearAll()

		res := e.mustRun(t, "--backend", "memory", "doctor")
		assert.Contains(t, res.stdout, "1 key(s) without a secret")
		assert.Contains(t, res.stderr, "github/a has no secret in memory")
	})

	t.Run("fallback_is_warning", func(t *testing.T) {
		e := newCLIEnv(t)
		res := e.mustRun(t, "--backend", "keyring", "doctor")
		assert.Contains(t, res.stdout, "keyring unavailable, using memory")
	})
}

func TestRealOpenWithMemoryBackend(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "apikeyper.db")
	metricsPath := filepath.Join(dir, "apikeyper.prom")
	configPath := testutil.WriteTestConfig(t, "metrics_textfile: "+metricsPath+"\nbackend:\n  type: memory\n")

	// Same sequence as main.run: execute, then write metrics regardless of
	// the command's outcome.
	run := func(args ...string) (string, error) {
		app := NewApp()
		root := NewRootCommand(app, "test")
		var stdout, stderr bytes.Buffer
		root.SetOut(&stdout)
		root.SetErr(&stderr)
		root.SetArgs(append([]string{"--config", configPath, "--db", dbPath, "--no-color"}, args...))
		err := root.Execute()
		require.NoError(t, app.WriteMetrics())
		return stdout.String(), err
	}
	readMetrics := func() string {
		data, err := os.ReadFile(metricsPath)
		require.NoError(t, err)
		return string(data)
	}

	_, err := run("add", "github", "ghp_x", "--name", "personal")
	require.NoError(t, err)
	assert.Contains(t, readMetrics(), `apikeyper_operations_total{operation="add",result="success"} 1`)

	out, err := run("list")
	require.NoError(t, err)
	assert.Equal(t, "github\n", out)
	assert.Contains(t, readMetrics(), `apikeyper_operations_total{operation="list",result="success"} 1`)

	// A fresh process gets a fresh memory backend, so the row is an orphan
	// and the failed get is still exported.
	_, err = run("get", "github")
	require.Error(t, err)
	assert.Contains(t, readMetrics(), `apikeyper_operations_total{operation="get",result="absent"} 1`)

	// A usage error records nothing and leaves the file alone.
	before := readMetrics()
	_, err = run("get")
	require.Error(t, err)
	assert.Equal(t, before, readMetrics())
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(NewApp(), "1.2.3")
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"add", "get", "delete", "revoke", "list", "export", "ensure", "exec", "doctor", "completion"} {
		assert.Contains(t, names, want)
	}

	usage := root.PersistentFlags().Lookup("backend").Usage
	for _, typ := range config.BackendTypes() {
		assert.Contains(t, usage, typ)
	}

	e := newCLIEnv(t)
	res := e.mustRun(t, "completion", "bash")
	assert.Contains(t, res.stdout, "apikeyper")

	res = e.run(t, "", "completion", "tcsh")
	assert.Error(t, res.err)
}

func TestParseWhen(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"2024-03-01", "2024-03-01T12:00:00", "2024-03-01T12:00:00Z", "2024-03-01T12:00:00.5+02:00"} {
		_, err := parseWhen("added", in)
		assert.NoError(t, err, in)
	}
	_, err := parseWhen("added", "03/01/2024")
	assert.Error(t, err)
}
