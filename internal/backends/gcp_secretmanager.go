package backends

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/apikeyper/pkg/backend"
)

// GCPSecretManagerBackendName is the configured type and reported name of
// the Google Cloud backend.
const GCPSecretManagerBackendName = "gcp-secretmanager"

const gcpProbeSecret = "apikeyper-probe"

// GCPSecretManagerClientAPI is the subset of *secretmanager.Client the
// backend uses.
type GCPSecretManagerClientAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
	Close() error
}

// GCPOptions holds connection settings for Secret Manager.
type GCPOptions struct {
	Project         string
	Prefix          string
	Endpoint        string
	CredentialsFile string
}

// GCPSecretManagerBackend stores each key-id as a secret whose latest
// version holds the value.
type GCPSecretManagerBackend struct {
	client  GCPSecretManagerClientAPI
	project string
	prefix  string
}

// GCPOption is a functional option for configuring the GCP backend
type GCPOption func(*GCPSecretManagerBackend)

// WithGCPClient sets a custom Secret Manager client (for testing)
func WithGCPClient(client GCPSecretManagerClientAPI) GCPOption {
	return func(b *GCPSecretManagerBackend) {
		b.client = client
	}
}

func NewGCPSecretManagerBackend(ctx context.Context, opts GCPOptions, options ...GCPOption) (*GCPSecretManagerBackend, error) {
	b := &GCPSecretManagerBackend{project: opts.Project, prefix: opts.Prefix}
	for _, opt := range options {
		opt(b)
	}
	if b.client != nil {
		return b, nil
	}

	var clientOptions []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(opts.Endpoint))
	}

	client, err := secretmanager.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, &backend.UnavailableError{
			Backend: GCPSecretManagerBackendName,
			Reason:  "failed to create Secret Manager client",
			Err:     err,
		}
	}
	b.client = client
	return b, nil
}

func (b *GCPSecretManagerBackend) Name() string {
	return GCPSecretManagerBackendName
}

// SecretID maps a key-id to a secret ID. IDs allow only letters, digits,
// '-' and '_'.
func (b *GCPSecretManagerBackend) SecretID(keyID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ':':
			return '-'
		default:
			return '_'
		}
	}, b.prefix+keyID)
}

func (b *GCPSecretManagerBackend) secretPath(keyID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", b.project, b.SecretID(keyID))
}

// Store adds a new version, creating the secret on first use.
func (b *GCPSecretManagerBackend) Store(ctx context.Context, keyID, value string) error {
	add := &secretmanagerpb.AddSecretVersionRequest{
		Parent:  b.secretPath(keyID),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}

	_, err := b.client.AddSecretVersion(ctx, add)
	if status.Code(err) == codes.NotFound {
		_, err = b.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   "projects/" + b.project,
			SecretId: b.SecretID(keyID),
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
				Labels: map[string]string{"managed-by": "apikeyper"},
			},
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return b.opError("store", keyID, err)
		}
		_, err = b.client.AddSecretVersion(ctx, add)
	}
	if err != nil {
		return b.opError("store", keyID, err)
	}
	return nil
}

func (b *GCPSecretManagerBackend) Retrieve(ctx context.Context, keyID string) (string, bool, error) {
	resp, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: b.secretPath(keyID) + "/versions/latest",
	})
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, b.opError("retrieve", keyID, err)
	}
	return string(resp.GetPayload().GetData()), true, nil
}

// Delete removes the secret with all of its versions.
func (b *GCPSecretManagerBackend) Delete(ctx context.Context, keyID string) error {
	err := b.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: b.secretPath(keyID)})
	if err != nil && status.Code(err) != codes.NotFound {
		return b.opError("delete", keyID, err)
	}
	return nil
}

// Validate reads a probe secret. NotFound proves the project is reachable
// and the caller is authorized.
func (b *GCPSecretManagerBackend) Validate(ctx context.Context) error {
	_, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", b.project, gcpProbeSecret),
	})
	switch status.Code(err) {
	case codes.OK, codes.NotFound:
		return nil
	case codes.PermissionDenied, codes.Unauthenticated:
		return &backend.UnavailableError{Backend: GCPSecretManagerBackendName, Reason: "GCP authentication/authorization failed", Err: err}
	default:
		return &backend.UnavailableError{Backend: GCPSecretManagerBackendName, Reason: "Secret Manager is not reachable", Err: err}
	}
}

func (b *GCPSecretManagerBackend) Close() error {
	return b.client.Close()
}

func (b *GCPSecretManagerBackend) opError(op, keyID string, err error) error {
	return &backend.OperationError{Backend: GCPSecretManagerBackendName, Op: op, KeyID: keyID, Err: err}
}
