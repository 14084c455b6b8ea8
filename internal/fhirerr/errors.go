// Package fhirerr provides the error kinds raised while compiling a
// CapabilityStatement into an OpenAPI document.
//
// Fatal kinds (missing definitions, upstream fetch failures, no capability
// statement) are returned to the caller and can be matched with errors.Is
// against the sentinels below or unpacked with errors.As. Unsupported
// constructs are never returned; they are logged and skipped.
package fhirerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrMissingDefinition indicates a referenced StructureDefinition or
	// OperationDefinition is absent from the artifact set.
	ErrMissingDefinition = errors.New("missing definition")

	// ErrUpstreamFetch indicates a base schema could not be retrieved.
	ErrUpstreamFetch = errors.New("upstream fetch failure")

	// ErrNoCapability indicates no usable CapabilityStatement was found.
	ErrNoCapability = errors.New("no capability statement found")

	// ErrUnsupported marks a construct the compiler does not handle.
	ErrUnsupported = errors.New("unsupported construct")

	// ErrConfig indicates an invalid configuration.
	ErrConfig = errors.New("configuration error")
)

// MissingDefinitionError reports a canonical URL that could not be resolved
// against the artifact set.
type MissingDefinitionError struct {
	// Kind is the FHIR resource type that was expected, e.g. "OperationDefinition"
	Kind string
	// URL is the canonical URL that failed to resolve
	URL string
	// Context names the referencing element, e.g. a resource type
	Context string
}

func (e *MissingDefinitionError) Error() string {
	msg := fmt.Sprintf("%s %s not found in the implementation guide", e.Kind, e.URL)
	if e.Context != "" {
		msg += " (referenced by " + e.Context + ")"
	}
	return msg
}

// Is reports whether target matches this error type.
func (e *MissingDefinitionError) Is(target error) bool {
	return target == ErrMissingDefinition
}

// FetchError reports a failed base schema retrieval.
type FetchError struct {
	ResourceType string
	URL          string
	// StatusCode is the HTTP status returned, 0 when no response was received
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	msg := "failed to fetch base schema for " + e.ResourceType
	if e.URL != "" {
		msg += " from " + e.URL
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chaining.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error type.
func (e *FetchError) Is(target error) bool {
	return target == ErrUpstreamFetch
}

// NoCapabilityError is returned when the artifact set holds no
// CapabilityStatement declaring the expected profile.
type NoCapabilityError struct {
	Profile string
}

func (e *NoCapabilityError) Error() string {
	return "no CapabilityStatements found matching " + e.Profile
}

// Is reports whether target matches this error type.
func (e *NoCapabilityError) Is(target error) bool {
	return target == ErrNoCapability
}

// ConfigError represents an invalid option value.
type ConfigError struct {
	Option  string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Option == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Message)
}

// Is reports whether target matches this error type.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
