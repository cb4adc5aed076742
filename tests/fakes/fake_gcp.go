package fakes

import (
	"context"
	"strings"
	"sync"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FakeGCPSecretManagerClient keeps secrets and their versions in memory.
// Paths follow projects/<p>/secrets/<id>.
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	// Versions maps a secret path to its version payloads, oldest first
	Versions map[string][][]byte
	// Labels maps a secret path to the labels it was created with
	Labels map[string]map[string]string
	// Err, when set, is returned by every call
	Err    error
	Closed bool
}

func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Versions: make(map[string][][]byte),
		Labels:   make(map[string]map[string]string),
	}
}

func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	path := strings.TrimSuffix(req.GetName(), "/versions/latest")
	versions := f.Versions[path]
	if len(versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "secret %s not found", path)
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: versions[len(versions)-1]},
	}, nil
}

func (f *FakeGCPSecretManagerClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.Labels[req.GetParent()]; !ok {
		return nil, status.Errorf(codes.NotFound, "secret %s not found", req.GetParent())
	}
	f.Versions[req.GetParent()] = append(f.Versions[req.GetParent()], req.GetPayload().GetData())
	return &secretmanagerpb.SecretVersion{Name: req.GetParent() + "/versions/1"}, nil
}

func (f *FakeGCPSecretManagerClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	path := req.GetParent() + "/secrets/" + req.GetSecretId()
	if _, ok := f.Labels[path]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "secret %s exists", path)
	}
	labels := req.GetSecret().GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	f.Labels[path] = labels
	return &secretmanagerpb.Secret{Name: path}, nil
}

func (f *FakeGCPSecretManagerClient) DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.Labels[req.GetName()]; !ok {
		return status.Errorf(codes.NotFound, "secret %s not found", req.GetName())
	}
	delete(f.Labels, req.GetName())
	delete(f.Versions, req.GetName())
	return nil
}

func (f *FakeGCPSecretManagerClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
