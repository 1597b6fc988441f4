package tts

import (
	"errors"
	"fmt"
)

// ErrNoAudio is wrapped by a ProviderError when a response carried no usable
// audio payload.
var ErrNoAudio = errors.New("tts: response contained no audio")

// ProviderError reports a failed call to a remote synthesis service. It
// aborts the whole synthesis job.
type ProviderError struct {
	// Provider is the short name of the failing backend.
	Provider string

	// StatusCode is the HTTP status returned by the service, or 0 when the
	// failure happened before or after the HTTP exchange.
	StatusCode int

	// Message is the service's error message.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: provider returned HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or invalid provider configuration, such
// as an absent API credential. It is fatal at startup.
type ConfigurationError struct {
	Provider string
	Setting  string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid configuration for %s: %s", e.Provider, e.Setting, e.Reason)
}

// MissingCredential returns the ConfigurationError for an absent API key.
func MissingCredential(provider string) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Setting: "api_key", Reason: "credential is not set"}
}
