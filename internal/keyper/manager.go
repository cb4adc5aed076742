// Package keyper ties the key-id deriver, a secret backend and the metadata
// store together into the operations apikeyper exposes.
package keyper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/systmms/apikeyper/internal/logging"
	"github.com/systmms/apikeyper/internal/metadata"
	"github.com/systmms/apikeyper/internal/metrics"
	"github.com/systmms/apikeyper/pkg/backend"
	"github.com/systmms/apikeyper/pkg/keyid"
)

// DefaultKeyName asks AddKey to generate a unique key name.
const DefaultKeyName = "default"

// ErrKeyNotFound is returned by operations that require an existing row.
var ErrKeyNotFound = errors.New("key not found")

// Options controls key-id derivation and export behavior.
type Options struct {
	Namespace      string
	Profile        string
	IncludeSecrets bool

	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// Manager is the entry point for every key operation.
type Manager struct {
	store   *metadata.Store
	backend backend.Backend
	logger  *logging.Logger
	metrics *metrics.Recorder
	opts    Options
}

// New creates a Manager. The Manager owns store and closes it on Close.
func New(store *metadata.Store, be backend.Backend, logger *logging.Logger, rec *metrics.Recorder, opts Options) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Namespace == "" {
		opts.Namespace = "apikeyper"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:   store,
		backend: be,
		logger:  logger,
		metrics: rec,
		opts:    opts,
	}
}

// Backend returns the backend in use, which may be a fallback.
func (m *Manager) Backend() backend.Backend {
	return m.backend
}

// Options returns the effective options.
func (m *Manager) Options() Options {
	return m.opts
}

// Close closes the metadata store and the backend, if it holds a connection.
func (m *Manager) Close() error {
	err := m.store.Close()
	if c, ok := m.backend.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

// KeyID derives the key-id for service and keyName under the configured
// namespace and profile.
func (m *Manager) KeyID(service, keyName string) string {
	return keyid.Derive(m.opts.Namespace, service, keyName, m.opts.Profile)
}

func (m *Manager) observe(op string, start time.Time, err error, found bool) {
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case !found:
		result = metrics.ResultAbsent
	}
	m.metrics.Observe(op, result, time.Since(start))
}

// AddKeyRequest describes a key to add.
type AddKeyRequest struct {
	Service string
	Value   string

	// KeyName defaults to a generated "<service>_key_<hex>" name when empty
	// or DefaultKeyName.
	KeyName string
	// Status defaults to metadata.StatusActive
	Status string
	// Added defaults to now
	Added *time.Time
}

// AddKey stores the secret in the backend, then upserts its metadata row.
// A backend failure leaves no row behind. A metadata failure after a
// successful backend write leaves an orphaned secret, which is logged.
func (m *Manager) AddKey(ctx context.Context, req AddKeyRequest) (rec *metadata.Record, err error) {
	start := time.Now()
	defer func() { m.observe("add", start, err, true) }()

	keyName := req.KeyName
	if keyName == "" || keyName == DefaultKeyName {
		keyName = keyid.NewKeyName(req.Service)
	}
	status := req.Status
	if status == "" {
		status = metadata.StatusActive
	}
	added := m.opts.Now()
	if req.Added != nil {
		added = *req.Added
	}
	added = metadata.Normalize(added)

	keyID := m.KeyID(req.Service, keyName)

	if err := m.backend.Store(ctx, keyID, req.Value); err != nil {
		return nil, fmt.Errorf("failed to store secret for %s/%s: %w", req.Service, keyName, err)
	}

	r := metadata.Record{
		Service: req.Service,
		KeyName: keyName,
		Added:   added,
		Key:     keyID,
		Status:  status,
	}
	if err := m.store.AddKey(ctx, r); err != nil {
		m.logger.Error("Secret for %s/%s is stored in %s under %s but has no metadata row",
			req.Service, keyName, m.backend.Name(), keyID)
		return nil, fmt.Errorf("failed to record metadata for %s/%s: %w", req.Service, keyName, err)
	}

	m.logger.Debug("Added key %s/%s as %s (value %s)", req.Service, keyName, keyID, logging.Secret(req.Value))
	return &r, nil
}

// GetKey returns the secret of an active key. An empty keyName selects the
// most recently added active key of service. found is false when no row
// matches or when the row's backend entry is missing.
func (m *Manager) GetKey(ctx context.Context, service, keyName string) (value string, found bool, err error) {
	start := time.Now()
	defer func() { m.observe("get", start, err, found) }()

	rec, err := m.store.GetKey(ctx, service, keyName, true)
	if err != nil {
		return "", false, err
	}
	if rec == nil {
		return "", false, nil
	}

	value, found, err = m.backend.Retrieve(ctx, rec.Key)
	if err != nil {
		return "", false, fmt.Errorf("failed to retrieve secret for %s/%s: %w", service, rec.KeyName, err)
	}
	if !found {
		m.logger.Debug("Metadata row %s/%s points at %s but %s has no entry", service, rec.KeyName, rec.Key, m.backend.Name())
		return "", false, nil
	}
	return value, true, nil
}

// GetRecord returns the metadata row without touching the backend.
func (m *Manager) GetRecord(ctx context.Context, service, keyName string, onlyActive bool) (rec *metadata.Record, err error) {
	start := time.Now()
	defer func() { m.observe("lookup", start, err, rec != nil) }()
	return m.store.GetKey(ctx, service, keyName, onlyActive)
}

// DeleteKey removes one key, or every key of service when keyName is empty.
// For each row the backend entry is deleted first and then the row. All
// rows are attempted; failures are joined. A row whose backend delete
// failed is kept so the delete can be retried.
func (m *Manager) DeleteKey(ctx context.Context, service, keyName string) (deleted int, err error) {
	start := time.Now()
	defer func() { m.observe("delete", start, err, deleted > 0) }()

	var rows []metadata.Record
	if keyName != "" {
		rec, err := m.store.GetKey(ctx, service, keyName, false)
		if err != nil {
			return 0, err
		}
		if rec != nil {
			rows = append(rows, *rec)
		}
	} else {
		rows, err = m.store.ListKeysForService(ctx, service)
		if err != nil {
			return 0, err
		}
	}

	var errs []error
	for _, r := range rows {
		if err := m.backend.Delete(ctx, r.Key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete secret for %s/%s: %w", r.Service, r.KeyName, err))
			continue
		}
		n, err := m.store.DeleteKey(ctx, r.Service, r.KeyName)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete metadata for %s/%s: %w", r.Service, r.KeyName, err))
			continue
		}
		deleted += int(n)
	}

	m.logger.Debug("Deleted %d of %d key(s) for %s", deleted, len(rows), service)
	return deleted, errors.Join(errs...)
}

// RevokeKey marks a key revoked at the given time (now when zero). The
// secret stays in the backend.
func (m *Manager) RevokeKey(ctx context.Context, service, keyName string, at time.Time) (rec *metadata.Record, err error) {
	start := time.Now()
	defer func() { m.observe("revoke", start, err, rec != nil) }()

	if keyName == "" {
		return nil, fmt.Errorf("revoke requires a key name")
	}
	rec, err = m.store.GetKey(ctx, service, keyName, false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s/%s: %w", service, keyName, ErrKeyNotFound)
	}

	if at.IsZero() {
		at = m.opts.Now()
	}
	at = metadata.Normalize(at)
	rec.Status = metadata.StatusRevoked
	rec.RevokedOn = &at

	if err := m.store.AddKey(ctx, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListServices returns every service with at least one key.
func (m *Manager) ListServices(ctx context.Context) (services []string, err error) {
	start := time.Now()
	defer func() { m.observe("list", start, err, len(services) > 0) }()
	return m.store.ListServices(ctx)
}

// ListKeys returns the metadata rows of service.
func (m *Manager) ListKeys(ctx context.Context, service string) (records []metadata.Record, err error) {
	start := time.Now()
	defer func() { m.observe("list", start, err, len(records) > 0) }()
	return m.store.ListKeysForService(ctx, service)
}

// ExportJSON writes the JSON export to path. Key-ids are redacted unless
// IncludeSecrets is set.
func (m *Manager) ExportJSON(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { m.observe("export", start, err, true) }()
	return m.store.ExportJSONFile(ctx, path, !m.opts.IncludeSecrets)
}

// ExportXML writes the XML export to path. Key-ids are redacted unless
// IncludeSecrets is set.
func (m *Manager) ExportXML(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { m.observe("export", start, err, true) }()
	return m.store.ExportXMLFile(ctx, path, !m.opts.IncludeSecrets)
}
