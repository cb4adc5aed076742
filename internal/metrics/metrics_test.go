package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observe(t *testing.T) {
	t.Parallel()

	r := New()
	r.Observe("add", ResultSuccess, 5*time.Millisecond)
	r.Observe("add", ResultSuccess, time.Millisecond)
	r.Observe("get", ResultAbsent, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.OperationsTotal().WithLabelValues("add", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperationsTotal().WithLabelValues("get", ResultAbsent)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.OperationsTotal().WithLabelValues("get", ResultError)))
}

func TestRecorder_RecordFallback(t *testing.T) {
	t.Parallel()

	r := New()
	r.RecordFallback("keyring", "memory")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.FallbackTotal().WithLabelValues("keyring", "memory")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	assert.NotPanics(t, func() {
		r.Observe("add", ResultSuccess, time.Second)
		r.RecordFallback("keyring", "memory")
		require.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
	})
}

func TestRecorder_WriteTextfile(t *testing.T) {
	t.Parallel()

	r := New()
	r.Observe("delete", ResultSuccess, time.Millisecond)

	path := filepath.Join(t.TempDir(), "apikeyper.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `apikeyper_operations_total{operation="delete",result="success"} 1`)
}

func TestRecorder_WriteTextfileSkipsWhenNothingRecorded(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "apikeyper.prom")
	require.NoError(t, os.WriteFile(path, []byte("previous\n"), 0o644))

	r := New()
	assert.False(t, r.Observed())
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))

	r.Observe("get", ResultError, time.Millisecond)
	assert.True(t, r.Observed())
	require.NoError(t, r.WriteTextfile(path))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `apikeyper_operations_total{operation="get",result="error"} 1`)
}
