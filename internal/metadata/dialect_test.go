package metadata_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/apikeyper/internal/metadata"
)

var recordColumns = []string{"service", "key_name", "added", "key", "status", "revoked_on"}

// newMockStore returns a store over sqlmock after the table migration.
func newMockStore(t *testing.T, driver string) (*metadata.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS apikeys")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := metadata.New(context.Background(), db, driver, nil)
	require.NoError(t, err)
	return s, mock
}

func TestDialects_UpsertSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver    string
		wantQuery string
	}{
		{
			driver:    "sqlite",
			wantQuery: `INSERT OR REPLACE INTO apikeys (service, key_name, added, "key", status, revoked_on) VALUES (?, ?, ?, ?, ?, ?)`,
		},
		{
			driver:    "postgres",
			wantQuery: `ON CONFLICT (service, key_name) DO UPDATE SET`,
		},
		{
			driver:    "postgresql",
			wantQuery: `VALUES ($1, $2, $3, $4, $5, $6)`,
		},
		{
			driver:    "mysql",
			wantQuery: "REPLACE INTO apikeys (service, key_name, added, `key`, status, revoked_on) VALUES (?, ?, ?, ?, ?, ?)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			s, mock := newMockStore(t, tt.driver)

			mock.ExpectExec(regexp.QuoteMeta(tt.wantQuery)).
				WithArgs("github", "personal", "2024-03-01T12:00:00.000000Z", "apikeyper:cb1c6d7073fabd8a", "active", nil).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := s.AddKey(context.Background(), metadata.Record{
				Service: "github",
				KeyName: "personal",
				Added:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
				Key:     "apikeyper:cb1c6d7073fabd8a",
				Status:  metadata.StatusActive,
			})
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDialects_GetKeyPlaceholders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver    string
		wantQuery string
	}{
		{"sqlite", `SELECT service, key_name, added, "key", status, revoked_on FROM apikeys WHERE service = ? AND key_name = ? AND status = ?`},
		{"postgres", `SELECT service, key_name, added, "key", status, revoked_on FROM apikeys WHERE service = $1 AND key_name = $2 AND status = $3`},
		{"mysql", "SELECT service, key_name, added, `key`, status, revoked_on FROM apikeys WHERE service = ? AND key_name = ? AND status = ?"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			s, mock := newMockStore(t, tt.driver)

			mock.ExpectQuery(regexp.QuoteMeta(tt.wantQuery)).
				WithArgs("openai", "main", "active").
				WillReturnRows(sqlmock.NewRows(recordColumns).
					AddRow("openai", "main", "2024-03-01T12:00:00.000000Z", "apikeyper:aaaaaaaaaaaaaaaa", "active", nil))

			got, err := s.GetKey(context.Background(), "openai", "main", true)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "apikeyper:aaaaaaaaaaaaaaaa", got.Key)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_LatestQueryOrdersByAdded(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t, "postgres")

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE service = $1 ORDER BY added DESC LIMIT 1`)).
		WithArgs("openai").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	got, err := s.GetKey(context.Background(), "openai", "", false)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReadsLegacyRows(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t, "sqlite")

	mock.ExpectQuery(regexp.QuoteMeta("FROM apikeys WHERE service = ? ORDER BY added, key_name")).
		WithArgs("legacy").
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("legacy", "old", "2023-06-01T09:30:00.123456", "apikeyper:ffffffffffffffff", nil, nil).
			AddRow("legacy", "revoked", "2023-06-02T09:30:00", "apikeyper:eeeeeeeeeeeeeeee", "revoked", "2023-07-01T00:00:00"))

	keys, err := s.ListKeysForService(context.Background(), "legacy")
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, time.Date(2023, 6, 1, 9, 30, 0, 123456000, time.Local).Unix(), keys[0].Added.Unix())
	assert.Empty(t, keys[0].Status)
	require.NotNil(t, keys[1].RevokedOn)
	assert.Equal(t, 2023, keys[1].RevokedOn.Year())
}

func TestStore_StorageErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	diskErr := errors.New("disk I/O error")

	tests := []struct {
		name   string
		setup  func(mock sqlmock.Sqlmock)
		call   func(s *metadata.Store) error
		wantOp string
	}{
		{
			name: "add",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT OR REPLACE").WillReturnError(diskErr)
			},
			call: func(s *metadata.Store) error {
				return s.AddKey(ctx, metadata.Record{Service: "s", KeyName: "k", Added: time.Now(), Status: "active"})
			},
			wantOp: "add",
		},
		{
			name: "get",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(diskErr)
			},
			call: func(s *metadata.Store) error {
				_, err := s.GetKey(ctx, "s", "k", true)
				return err
			},
			wantOp: "get",
		},
		{
			name: "delete",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM apikeys").WillReturnError(diskErr)
			},
			call: func(s *metadata.Store) error {
				_, err := s.DeleteKey(ctx, "s", "")
				return err
			},
			wantOp: "delete",
		},
		{
			name: "list_services",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT DISTINCT service").WillReturnError(diskErr)
			},
			call: func(s *metadata.Store) error {
				_, err := s.ListServices(ctx)
				return err
			},
			wantOp: "list services",
		},
		{
			name: "snapshot",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("ORDER BY service").WillReturnError(diskErr)
			},
			call: func(s *metadata.Store) error {
				return s.ExportJSON(ctx, &discardWriter{}, true)
			},
			wantOp: "snapshot",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, mock := newMockStore(t, "sqlite")
			tt.setup(mock)

			err := tt.call(s)
			require.Error(t, err)

			var se *metadata.StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantOp, se.Op)
			assert.ErrorIs(t, err, diskErr)
		})
	}
}

func TestNew_MigrationFailure(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	_, err = metadata.New(context.Background(), db, "mysql", nil)
	var se *metadata.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "migrate", se.Op)
}

func TestStore_DeleteReturnsRowsAffected(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t, "postgres")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM apikeys WHERE service = $1 AND key_name = $2")).
		WithArgs("aws", "prod").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.DeleteKey(context.Background(), "aws", "prod")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
