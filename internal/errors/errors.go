package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/apikeyper/pkg/backend"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// BackendError wraps a secret backend failure with a suggestion for the user
func BackendError(backendName string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s backend error during %s", backendName, operation),
		Details:    err.Error(),
		Suggestion: getBackendSuggestion(backendName, err),
		Err:        err,
	}
}

// backendHints maps a backend name to substring hints checked in order.
// Backend names are spelled out here because internal/backends imports this
// package.
var backendHints = map[string][]hint{
	"keyring": {
		{[]string{"locked"}, "Unlock your login keyring and try again"},
		{[]string{"denied", "canceled"}, "Allow apikeyper to access the credential store when prompted"},
		{[]string{"too big"}, "The secret exceeds the credential store size limit"},
	},
	"aws-secretsmanager": {
		{[]string{"still being deleted"}, "AWS finishes force deletion asynchronously. Wait a few seconds and add the key again"},
		{[]string{"AccessDenied"}, "Check IAM permissions for secretsmanager:GetSecretValue, PutSecretValue, CreateSecret and DeleteSecret"},
		{[]string{"credentials", "authorization"}, "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"},
		{[]string{"ThrottlingException"}, "AWS rate limit exceeded. Wait a moment and try again"},
	},
	"aws-ssm": {
		{[]string{"AccessDenied"}, "Check IAM permissions for ssm:GetParameter, PutParameter and DeleteParameter, plus kms:Decrypt for SecureString"},
		{[]string{"credentials", "authorization"}, "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"},
		{[]string{"ThrottlingException", "TooManyUpdates"}, "AWS rate limit exceeded. Wait a moment and try again"},
	},
	"gcp-secretmanager": {
		{[]string{"PermissionDenied"}, "Grant roles/secretmanager.admin (or secretAccessor plus secretVersionAdder) on the project"},
		{[]string{"Unauthenticated", "credentials"}, "Run 'gcloud auth application-default login' or set backend.credentials_file"},
	},
	"azure-keyvault": {
		{[]string{"403", "Forbidden"}, "Grant the identity Get, Set, Delete and Purge secret permissions on the vault"},
		{[]string{"401", "DefaultAzureCredential", "credential"}, "Run 'az login' or set AZURE_CLIENT_ID, AZURE_TENANT_ID and AZURE_CLIENT_SECRET"},
		{[]string{"no such host"}, "Check backend.vault_url; it should look like https://<vault>.vault.azure.net/"},
	},
}

type hint struct {
	needles    []string
	suggestion string
}

// getBackendSuggestion returns helpful suggestions based on backend and error
func getBackendSuggestion(backendName string, err error) string {
	if backendName == "keyring" && backend.IsUnavailable(err) {
		return "The OS credential store is not reachable. Start a Secret Service daemon (gnome-keyring, KWallet) or set 'backend.type: memory' for throwaway sessions"
	}

	errStr := err.Error()
	for _, h := range backendHints[backendName] {
		for _, needle := range h.needles {
			if strings.Contains(errStr, needle) {
				return h.suggestion
			}
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if backend.IsUnavailable(err) {
		return "Check the backend settings in your config file, or run 'apikeyper doctor'"
	}

	return ""
}

// IsUserError reports whether err already carries user-facing context
func IsUserError(err error) bool {
	var ue UserError
	var ce ConfigError
	return errors.As(err, &ue) || errors.As(err, &ce)
}
