package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/systmms/apikeyper/pkg/backend"
)

// AWSSSMBackendName is the configured type and reported name of the
// Parameter Store backend.
const AWSSSMBackendName = "aws-ssm"

// SSMClientAPI defines the interface for AWS SSM Parameter Store operations
// This allows for mocking in tests
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
}

// AWSSSMBackend stores each key-id as a SecureString parameter.
type AWSSSMBackend struct {
	client SSMClientAPI
	prefix string
}

// SSMOption is a functional option for configuring the SSM backend
type SSMOption func(*AWSSSMBackend)

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(client SSMClientAPI) SSMOption {
	return func(b *AWSSSMBackend) {
		b.client = client
	}
}

func NewAWSSSMBackend(ctx context.Context, opts AWSOptions, options ...SSMOption) (*AWSSSMBackend, error) {
	b := &AWSSSMBackend{prefix: opts.Prefix}
	for _, opt := range options {
		opt(b)
	}
	if b.client != nil {
		return b, nil
	}

	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, &backend.UnavailableError{
			Backend: AWSSSMBackendName,
			Reason:  "failed to load AWS config",
			Err:     err,
		}
	}

	b.client = ssm.NewFromConfig(cfg, func(o *ssm.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return b, nil
}

func (b *AWSSSMBackend) Name() string {
	return AWSSSMBackendName
}

// ParameterName maps a key-id to a hierarchical parameter path:
// "/<prefix>/<namespace>/<digest>".
func (b *AWSSSMBackend) ParameterName(keyID string) string {
	name := strings.ReplaceAll(keyID, ":", "/")
	if prefix := strings.Trim(b.prefix, "/"); prefix != "" {
		name = prefix + "/" + name
	}
	return "/" + name
}

func (b *AWSSSMBackend) Store(ctx context.Context, keyID, value string) error {
	_, err := b.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(b.ParameterName(keyID)),
		Value:       aws.String(value),
		Type:        types.ParameterTypeSecureString,
		Overwrite:   aws.Bool(true),
		Description: aws.String("Managed by apikeyper"),
	})
	if err != nil {
		return b.opError("store", keyID, err)
	}
	return nil
}

func (b *AWSSSMBackend) Retrieve(ctx context.Context, keyID string) (string, bool, error) {
	out, err := b.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(b.ParameterName(keyID)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isParameterNotFound(err) {
			return "", false, nil
		}
		return "", false, b.opError("retrieve", keyID, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", true, nil
	}
	return *out.Parameter.Value, true, nil
}

func (b *AWSSSMBackend) Delete(ctx context.Context, keyID string) error {
	_, err := b.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(b.ParameterName(keyID)),
	})
	if err != nil && !isParameterNotFound(err) {
		return b.opError("delete", keyID, err)
	}
	return nil
}

// Validate checks credentials by describing at most one parameter.
func (b *AWSSSMBackend) Validate(ctx context.Context) error {
	_, err := b.client.DescribeParameters(ctx, &ssm.DescribeParametersInput{
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		reason := "AWS SSM Parameter Store is not reachable"
		if isAuthError(err) {
			reason = "AWS authentication/authorization failed"
		}
		return &backend.UnavailableError{Backend: AWSSSMBackendName, Reason: reason, Err: err}
	}
	return nil
}

func (b *AWSSSMBackend) opError(op, keyID string, err error) error {
	if isAuthError(err) {
		err = fmt.Errorf("AWS authentication/authorization failed: %w", err)
	}
	return &backend.OperationError{Backend: AWSSSMBackendName, Op: op, KeyID: keyID, Err: err}
}

func isParameterNotFound(err error) bool {
	var notFound *types.ParameterNotFound
	return errors.As(err, &notFound)
}
