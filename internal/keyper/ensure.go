package keyper

import (
	"context"
	"fmt"
)

// Prompter asks the user for a secret.
type Prompter interface {
	PromptSecret(service string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(service string) (string, error)

func (f PrompterFunc) PromptSecret(service string) (string, error) {
	return f(service)
}

// MissingKeyError reports a service with no usable key when prompting is
// not possible.
type MissingKeyError struct {
	Service string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("no API key found for %s", e.Service)
}

// EnsureKeys returns a secret for every service, prompting for and storing
// any that are missing. With a nil prompter a missing key is an error.
func (m *Manager) EnsureKeys(ctx context.Context, services []string, prompter Prompter) (map[string]string, error) {
	keys := make(map[string]string, len(services))

	for _, service := range services {
		if _, done := keys[service]; done {
			continue
		}

		value, found, err := m.GetKey(ctx, service, "")
		if err != nil {
			return nil, err
		}
		if found {
			keys[service] = value
			continue
		}

		if prompter == nil {
			return nil, &MissingKeyError{Service: service}
		}
		value, err = prompter.PromptSecret(service)
		if err != nil {
			return nil, fmt.Errorf("failed to read API key for %s: %w", service, err)
		}
		if value == "" {
			return nil, &MissingKeyError{Service: service}
		}

		rec, err := m.AddKey(ctx, AddKeyRequest{Service: service, Value: value})
		if err != nil {
			return nil, err
		}
		m.logger.Info("Stored new key %s for %s", rec.KeyName, service)
		keys[service] = value
	}

	return keys, nil
}
