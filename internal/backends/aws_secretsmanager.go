package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/systmms/apikeyper/pkg/backend"
)

// AWSSecretsManagerBackendName is the configured type and reported name of the AWS backend.
const AWSSecretsManagerBackendName = "aws-secretsmanager"

// SecretsManagerClientAPI defines the AWS Secrets Manager operations the
// backend needs. This allows for mocking in tests.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	RestoreSecret(ctx context.Context, params *secretsmanager.RestoreSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RestoreSecretOutput, error)
}

// ErrSecretPendingDeletion is wrapped into store errors when the secret
// under a key-id is still being deleted. AWS finishes forced deletions
// asynchronously, so re-adding a key right after deleting it can hit this.
var ErrSecretPendingDeletion = errors.New("secret is still being deleted by AWS; retry in a few seconds")

// AWSSecretsManagerBackend stores each key-id as one AWS secret.
type AWSSecretsManagerBackend struct {
	client SecretsManagerClientAPI
	prefix string
}

// AWSOption is a functional option for configuring the AWS backend
type AWSOption func(*AWSSecretsManagerBackend)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSOption {
	return func(b *AWSSecretsManagerBackend) {
		b.client = client
	}
}

// NewAWSSecretsManagerBackend creates the backend, loading the default AWS
// credential chain unless a client was injected.
func NewAWSSecretsManagerBackend(ctx context.Context, opts AWSOptions, options ...AWSOption) (*AWSSecretsManagerBackend, error) {
	b := &AWSSecretsManagerBackend{prefix: opts.Prefix}
	for _, opt := range options {
		opt(b)
	}
	if b.client != nil {
		return b, nil
	}

	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, &backend.UnavailableError{
			Backend: AWSSecretsManagerBackendName,
			Reason:  "failed to load AWS config",
			Err:     err,
		}
	}

	var clientOpts []func(*secretsmanager.Options)
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	b.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	return b, nil
}

// Name returns the backend name
func (b *AWSSecretsManagerBackend) Name() string {
	return AWSSecretsManagerBackendName
}

// SecretName maps a key-id to an AWS secret name. Secret names may not
// contain ':', so the namespace separator becomes '/'.
func (b *AWSSecretsManagerBackend) SecretName(keyID string) string {
	return b.prefix + strings.ReplaceAll(keyID, ":", "/")
}

// Store puts a new secret version, creating the secret on first use. A
// secret scheduled for deletion with a recovery window is restored and
// overwritten; one that is being force-deleted fails with
// ErrSecretPendingDeletion.
func (b *AWSSecretsManagerBackend) Store(ctx context.Context, keyID, value string) error {
	name := b.SecretName(keyID)

	err := b.put(ctx, name, value)
	switch {
	case err == nil:
		return nil
	case isNotFoundError(err):
		_, err = b.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(value),
			Description:  aws.String("Managed by apikeyper"),
		})
		if isPendingDeletionError(err) {
			return b.opError("store", keyID, fmt.Errorf("%w: %w", ErrSecretPendingDeletion, err))
		}
	case isPendingDeletionError(err):
		if _, rerr := b.client.RestoreSecret(ctx, &secretsmanager.RestoreSecretInput{SecretId: aws.String(name)}); rerr != nil {
			return b.opError("store", keyID, fmt.Errorf("%w: %w", ErrSecretPendingDeletion, err))
		}
		err = b.put(ctx, name, value)
	}
	if err != nil {
		return b.opError("store", keyID, err)
	}
	return nil
}

func (b *AWSSecretsManagerBackend) put(ctx context.Context, name, value string) error {
	_, err := b.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	return err
}

// Retrieve returns the AWSCURRENT version of the secret.
func (b *AWSSecretsManagerBackend) Retrieve(ctx context.Context, keyID string) (string, bool, error) {
	out, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(b.SecretName(keyID)),
	})
	if err != nil {
		if isNotFoundError(err) || isPendingDeletionError(err) {
			return "", false, nil
		}
		return "", false, b.opError("retrieve", keyID, err)
	}

	switch {
	case out.SecretString != nil:
		return *out.SecretString, true, nil
	case out.SecretBinary != nil:
		return string(out.SecretBinary), true, nil
	default:
		return "", true, nil
	}
}

// Delete removes the secret immediately, without a recovery window.
func (b *AWSSecretsManagerBackend) Delete(ctx context.Context, keyID string) error {
	_, err := b.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(b.SecretName(keyID)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFoundError(err) && !isPendingDeletionError(err) {
		return b.opError("delete", keyID, err)
	}
	return nil
}

// Validate checks that credentials work by listing at most one secret.
func (b *AWSSecretsManagerBackend) Validate(ctx context.Context) error {
	_, err := b.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		reason := "AWS Secrets Manager is not reachable"
		if isAuthError(err) {
			reason = "AWS authentication/authorization failed"
		}
		return &backend.UnavailableError{Backend: AWSSecretsManagerBackendName, Reason: reason, Err: err}
	}
	return nil
}

func (b *AWSSecretsManagerBackend) opError(op, keyID string, err error) error {
	if isAuthError(err) {
		err = fmt.Errorf("AWS authentication/authorization failed: %w", err)
	}
	return &backend.OperationError{Backend: AWSSecretsManagerBackendName, Op: op, KeyID: keyID, Err: err}
}

func isNotFoundError(err error) bool {
	var resourceNotFound *types.ResourceNotFoundException
	return errors.As(err, &resourceNotFound)
}

// isPendingDeletionError matches the InvalidRequestException AWS returns
// for secrets that are scheduled for, or in the middle of, deletion.
func isPendingDeletionError(err error) bool {
	var invalid *types.InvalidRequestException
	if !errors.As(err, &invalid) {
		return false
	}
	msg := strings.ToLower(invalid.ErrorMessage())
	return strings.Contains(msg, "marked for deletion") || strings.Contains(msg, "scheduled for deletion")
}

func isAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "UnauthorizedOperation") ||
		strings.Contains(errStr, "InvalidUserID") ||
		strings.Contains(errStr, "Forbidden")
}
