package keyper

import (
	"context"
	"errors"
	"fmt"
	"time"

	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/pkg/backend"
)

// Orphan is a metadata row whose backend entry is missing.
type Orphan struct {
	Service string
	KeyName string
	Key     string
}

// Verify checks every metadata row against the backend and reports the
// rows with no backend entry. It never modifies either side.
func (m *Manager) Verify(ctx context.Context) (orphans []Orphan, err error) {
	start := time.Now()
	defer func() { m.observe("verify", start, err, true) }()

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, svc := range snap {
		for _, r := range svc.Records {
			_, found, err := m.backend.Retrieve(ctx, r.Key)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", r.Service, r.KeyName, err))
				continue
			}
			if !found {
				orphans = append(orphans, Orphan{Service: r.Service, KeyName: r.KeyName, Key: r.Key})
			}
		}
	}
	return orphans, errors.Join(errs...)
}

// CheckBackend runs the backend's own validation, if it has one, bounded
// by timeout.
func (m *Manager) CheckBackend(ctx context.Context, timeout time.Duration) error {
	v, ok := m.backend.(backend.Validator)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := v.Validate(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return dserrors.UserError{
			Message:    "Backend check timed out",
			Details:    fmt.Sprintf("%s did not answer within %s", m.backend.Name(), timeout),
			Suggestion: "Check connectivity to the backend and try again",
			Err:        err,
		}
	}
	if err != nil {
		return dserrors.BackendError(m.backend.Name(), "validate", err)
	}
	return nil
}
