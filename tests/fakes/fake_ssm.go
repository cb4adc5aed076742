package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// FakeSSMClient is an in-memory Parameter Store.
type FakeSSMClient struct {
	mu sync.Mutex

	Parameters map[string]string
	// Types records the parameter type of each Put
	Types map[string]types.ParameterType
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// DescribeErr is returned by DescribeParameters if set
	DescribeErr error
}

func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]string),
		Types:      make(map[string]types.ParameterType),
		Errors:     make(map[string]error),
	}
}

func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err := f.Errors[name]; err != nil {
		return nil, err
	}
	value, ok := f.Parameters[name]
	if !ok {
		return nil, &types.ParameterNotFound{Message: aws.String(fmt.Sprintf("parameter %s not found", name))}
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Name: aws.String(name), Value: aws.String(value), Type: f.Types[name]},
	}, nil
}

func (f *FakeSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err := f.Errors[name]; err != nil {
		return nil, err
	}
	if _, exists := f.Parameters[name]; exists && !aws.ToBool(params.Overwrite) {
		return nil, &types.ParameterAlreadyExists{Message: aws.String(name)}
	}
	f.Parameters[name] = aws.ToString(params.Value)
	f.Types[name] = params.Type
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func (f *FakeSSMClient) DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err := f.Errors[name]; err != nil {
		return nil, err
	}
	if _, ok := f.Parameters[name]; !ok {
		return nil, &types.ParameterNotFound{Message: aws.String(name)}
	}
	delete(f.Parameters, name)
	return &ssm.DeleteParameterOutput{}, nil
}

func (f *FakeSSMClient) DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}
	return &ssm.DescribeParametersOutput{}, nil
}
