// Package nberrors defines the error taxonomy shared by the notebooklet
// framework. All four types are returned synchronously and are never
// swallowed; use errors.As to classify.
package nberrors

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a malformed or missing metadata document.
// The discovery scan skips the affected module and continues.
type ConfigurationError struct {
	Source string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid notebooklet metadata: %s", e.Reason)
	}

	return fmt.Sprintf("invalid notebooklet metadata %q: %s", e.Source, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the given source.
func NewConfigurationError(source, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Source: source, Reason: fmt.Sprintf(format, args...)}
}

// MissingParameterError reports that Run was called without a parameter
// the notebooklet requires.
type MissingParameterError struct {
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("required parameter %q is missing", e.Parameter)
}

// NewMissingParameterError creates a MissingParameterError for the named
// parameter.
func NewMissingParameterError(parameter string) *MissingParameterError {
	return &MissingParameterError{Parameter: parameter}
}

// InvalidOptionError reports unknown option names or mixed explicit and
// incremental option syntax in a single request.
type InvalidOptionError struct {
	Options []string
	Reason  string
}

func (e *InvalidOptionError) Error() string {
	if len(e.Options) == 0 {
		return fmt.Sprintf("invalid options: %s", e.Reason)
	}

	return fmt.Sprintf("invalid options [%s]: %s", strings.Join(e.Options, ", "), e.Reason)
}

// NewInvalidOptionError creates an InvalidOptionError naming the
// offending options.
func NewInvalidOptionError(reason string, options ...string) *InvalidOptionError {
	return &InvalidOptionError{Options: options, Reason: reason}
}

// MissingProviderError reports that a notebooklet's required upstream
// capability is not present in the provider set. Raised at construction,
// before Run is ever called.
type MissingProviderError struct {
	Notebooklet  string
	Requirements []string
}

func (e *MissingProviderError) Error() string {
	return fmt.Sprintf(
		"notebooklet %q requires unavailable provider(s): %s",
		e.Notebooklet, strings.Join(e.Requirements, ", "),
	)
}

// NewMissingProviderError creates a MissingProviderError for the given
// notebooklet and unmet requirements.
func NewMissingProviderError(notebooklet string, requirements []string) *MissingProviderError {
	return &MissingProviderError{Notebooklet: notebooklet, Requirements: requirements}
}
