// Package backends provides the concrete secret stores behind the
// backend.Backend interface and the factory that picks one from config.
package backends

import (
	"context"

	"github.com/systmms/apikeyper/internal/backends/contracts"
	"github.com/systmms/apikeyper/internal/config"
	dserrors "github.com/systmms/apikeyper/internal/errors"
	"github.com/systmms/apikeyper/internal/logging"
	"github.com/systmms/apikeyper/internal/metrics"
	"github.com/systmms/apikeyper/pkg/backend"
)

// Factory builds the configured backend.
type Factory struct {
	Logger  *logging.Logger
	Metrics *metrics.Recorder

	// KeyringClient replaces the OS keyring when set (for testing)
	KeyringClient contracts.KeyringClient
	// SecretsManagerClient replaces the real AWS client when set (for testing)
	SecretsManagerClient SecretsManagerClientAPI
	SSMClient            SSMClientAPI
	GCPClient            GCPSecretManagerClientAPI
	AzureClient          AzureKeyVaultClientAPI
}

// New creates the backend named by cfg.Type. When the keyring is
// unavailable and fallback is allowed, the memory backend is returned
// instead and a warning is logged.
func (f *Factory) New(ctx context.Context, cfg config.BackendConfig) (backend.Backend, error) {
	logger := f.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	switch cfg.Type {
	case MemoryBackendName:
		return NewMemoryBackend(), nil

	case KeyringBackendName, "":
		service := cfg.KeyringService
		if service == "" {
			service = config.DefaultKeyringService
		}
		var opts []KeyringOption
		if f.KeyringClient != nil {
			opts = append(opts, WithKeyringClient(f.KeyringClient))
		}

		kb, err := NewKeyringBackend(service, opts...)
		if err == nil {
			logger.Debug("Using keyring backend (service %q)", service)
			return kb, nil
		}
		if !backend.IsUnavailable(err) || cfg.DisableFallback {
			return nil, dserrors.BackendError(KeyringBackendName, "initialize", err)
		}

		logger.Warn("Keyring backend unavailable, falling back to in-memory storage: %v", err)
		logger.Warn("Keys stored in this session will not persist after exit")
		f.Metrics.RecordFallback(KeyringBackendName, MemoryBackendName)
		return NewMemoryBackend(), nil

	case AWSSecretsManagerBackendName:
		var opts []AWSOption
		if f.SecretsManagerClient != nil {
			opts = append(opts, WithSecretsManagerClient(f.SecretsManagerClient))
		}
		b, err := NewAWSSecretsManagerBackend(ctx, awsOptionsFrom(cfg), opts...)
		if err != nil {
			return nil, dserrors.BackendError(AWSSecretsManagerBackendName, "initialize", err)
		}
		logger.Debug("Using AWS Secrets Manager backend (region %q)", cfg.Region)
		return b, nil

	case AWSSSMBackendName:
		var opts []SSMOption
		if f.SSMClient != nil {
			opts = append(opts, WithSSMClient(f.SSMClient))
		}
		b, err := NewAWSSSMBackend(ctx, awsOptionsFrom(cfg), opts...)
		if err != nil {
			return nil, dserrors.BackendError(AWSSSMBackendName, "initialize", err)
		}
		logger.Debug("Using AWS SSM Parameter Store backend (region %q)", cfg.Region)
		return b, nil

	case GCPSecretManagerBackendName:
		var opts []GCPOption
		if f.GCPClient != nil {
			opts = append(opts, WithGCPClient(f.GCPClient))
		}
		b, err := NewGCPSecretManagerBackend(ctx, GCPOptions{
			Project:         cfg.Project,
			Prefix:          cfg.Prefix,
			Endpoint:        cfg.Endpoint,
			CredentialsFile: cfg.CredentialsFile,
		}, opts...)
		if err != nil {
			return nil, dserrors.BackendError(GCPSecretManagerBackendName, "initialize", err)
		}
		logger.Debug("Using GCP Secret Manager backend (project %q)", cfg.Project)
		return b, nil

	case AzureKeyVaultBackendName:
		var opts []AzureOption
		if f.AzureClient != nil {
			opts = append(opts, WithAzureKeyVaultClient(f.AzureClient))
		}
		b, err := NewAzureKeyVaultBackend(AzureOptions{VaultURL: cfg.VaultURL, Prefix: cfg.Prefix}, opts...)
		if err != nil {
			return nil, dserrors.BackendError(AzureKeyVaultBackendName, "initialize", err)
		}
		logger.Debug("Using Azure Key Vault backend (%s)", cfg.VaultURL)
		return b, nil

	default:
		return nil, dserrors.ConfigError{
			Field:      "backend.type",
			Value:      cfg.Type,
			Message:    "unknown backend type",
			Suggestion: "Use one of: keyring, memory, aws-secretsmanager, aws-ssm, gcp-secretmanager, azure-keyvault",
		}
	}
}
