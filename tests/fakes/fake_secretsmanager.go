package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// FakeSecretsManagerClient is an in-memory stand-in for the AWS Secrets
// Manager client.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their data
	Secrets map[string]*SecretData
	// Errors maps secret names to errors to return
	Errors map[string]error
	// ListSecretsErr is returned by ListSecrets if set
	ListSecretsErr error

	// Deleted records names passed to DeleteSecret
	Deleted []string
	// Created records names passed to CreateSecret
	Created []string
	// Restored records names passed to RestoreSecret
	Restored []string

	// AsyncForceDelete keeps force-deleted secrets in Purging until
	// FinishPurges is called, as AWS does for a few seconds.
	AsyncForceDelete bool
	// Purging holds force-deleted secrets whose deletion has not finished
	Purging map[string]bool
	// Scheduled holds secrets deleted with a recovery window
	Scheduled map[string]*SecretData
}

// SecretData holds the data for a mock secret
type SecretData struct {
	SecretString *string
	SecretBinary []byte
	VersionId    *string
	CreatedDate  *time.Time
	Description  *string
	versions     int
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets:   make(map[string]*SecretData),
		Errors:    make(map[string]error),
		Purging:   make(map[string]bool),
		Scheduled: make(map[string]*SecretData),
	}
}

// AddSecretString adds a string secret to the mock client
func (f *FakeSecretsManagerClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.Secrets[name] = &SecretData{
		SecretString: aws.String(value),
		VersionId:    aws.String("v1"),
		CreatedDate:  &now,
		versions:     1,
	}
}

// AddSecretBinary adds a binary secret to the mock client
func (f *FakeSecretsManagerClient) AddSecretBinary(name string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.Secrets[name] = &SecretData{
		SecretBinary: value,
		VersionId:    aws.String("v1"),
		CreatedDate:  &now,
		versions:     1,
	}
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeSecretsManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

func notFound(name string) error {
	return &types.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
	}
}

func markedForDeletion(name string) error {
	return &types.InvalidRequestException{
		Message: aws.String(fmt.Sprintf("You can't perform this operation on the secret %s because it was marked for deletion.", name)),
	}
}

func (f *FakeSecretsManagerClient) pendingDeletion(name string) bool {
	_, scheduled := f.Scheduled[name]
	return scheduled || f.Purging[name]
}

// FinishPurges completes every asynchronous force deletion.
func (f *FakeSecretsManagerClient) FinishPurges() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Purging = make(map[string]bool)
}

func arn(name string) *string {
	return aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", name))
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if f.pendingDeletion(name) {
		return nil, markedForDeletion(name)
	}
	data, exists := f.Secrets[name]
	if !exists {
		return nil, notFound(name)
	}

	return &secretsmanager.GetSecretValueOutput{
		ARN:           arn(name),
		Name:          params.SecretId,
		SecretString:  data.SecretString,
		SecretBinary:  data.SecretBinary,
		VersionId:     data.VersionId,
		VersionStages: []string{"AWSCURRENT"},
		CreatedDate:   data.CreatedDate,
	}, nil
}

// PutSecretValue mocks the PutSecretValue operation. Missing secrets fail
// with ResourceNotFoundException, as in AWS.
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if f.pendingDeletion(name) {
		return nil, markedForDeletion(name)
	}
	data, exists := f.Secrets[name]
	if !exists {
		return nil, notFound(name)
	}

	data.versions++
	data.SecretString = params.SecretString
	data.SecretBinary = params.SecretBinary
	data.VersionId = aws.String(fmt.Sprintf("v%d", data.versions))

	return &secretsmanager.PutSecretValueOutput{
		ARN:       arn(name),
		Name:      params.SecretId,
		VersionId: data.VersionId,
	}, nil
}

// CreateSecret mocks the CreateSecret operation
func (f *FakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if f.pendingDeletion(name) {
		return nil, &types.InvalidRequestException{
			Message: aws.String(fmt.Sprintf("You can't create this secret because a secret with the name %s is already scheduled for deletion.", name)),
		}
	}
	if _, exists := f.Secrets[name]; exists {
		return nil, &types.ResourceExistsException{
			Message: aws.String(fmt.Sprintf("The operation failed because the secret %s already exists.", name)),
		}
	}

	now := time.Now()
	f.Secrets[name] = &SecretData{
		SecretString: params.SecretString,
		SecretBinary: params.SecretBinary,
		VersionId:    aws.String("v1"),
		CreatedDate:  &now,
		Description:  params.Description,
		versions:     1,
	}
	f.Created = append(f.Created, name)

	return &secretsmanager.CreateSecretOutput{
		ARN:       arn(name),
		Name:      params.Name,
		VersionId: aws.String("v1"),
	}, nil
}

// DeleteSecret mocks the DeleteSecret operation
func (f *FakeSecretsManagerClient) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	f.Deleted = append(f.Deleted, name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if f.pendingDeletion(name) {
		return nil, markedForDeletion(name)
	}
	data, exists := f.Secrets[name]
	if !exists {
		return nil, notFound(name)
	}
	delete(f.Secrets, name)

	force := aws.ToBool(params.ForceDeleteWithoutRecovery)
	switch {
	case !force:
		f.Scheduled[name] = data
	case f.AsyncForceDelete:
		f.Purging[name] = true
	}

	now := time.Now()
	return &secretsmanager.DeleteSecretOutput{
		ARN:          arn(name),
		Name:         params.SecretId,
		DeletionDate: &now,
	}, nil
}

// RestoreSecret mocks the RestoreSecret operation. Only secrets deleted with
// a recovery window can be restored.
func (f *FakeSecretsManagerClient) RestoreSecret(ctx context.Context, params *secretsmanager.RestoreSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RestoreSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	f.Restored = append(f.Restored, name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if f.Purging[name] {
		return nil, markedForDeletion(name)
	}
	data, scheduled := f.Scheduled[name]
	if !scheduled {
		if _, exists := f.Secrets[name]; exists {
			return &secretsmanager.RestoreSecretOutput{ARN: arn(name), Name: params.SecretId}, nil
		}
		return nil, notFound(name)
	}
	delete(f.Scheduled, name)
	f.Secrets[name] = data

	return &secretsmanager.RestoreSecretOutput{ARN: arn(name), Name: params.SecretId}, nil
}

// ListSecrets mocks the ListSecrets operation
func (f *FakeSecretsManagerClient) ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListSecretsErr != nil {
		return nil, f.ListSecretsErr
	}

	var list []types.SecretListEntry
	for name := range f.Secrets {
		list = append(list, types.SecretListEntry{Name: aws.String(name), ARN: arn(name)})
		if params.MaxResults != nil && int32(len(list)) >= *params.MaxResults {
			break
		}
	}
	return &secretsmanager.ListSecretsOutput{SecretList: list}, nil
}
