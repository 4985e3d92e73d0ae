// Package errors provides the structured error model shared by all SDK
// subsystems. Failures that cross a subsystem boundary are represented as
// a *ServiceError carrying a stable Code and a human-readable Reason,
// plus helpers for wrapping and classifying errors consistently.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a failure category. Codes are stable across releases;
// callers switch on them rather than on reason strings.
type Code uint32

const (
	// CodeOK is the zero value and never appears in a non-nil error.
	CodeOK Code = iota
	// CodeNoDeviceImpl indicates the constructor was given no driver.
	CodeNoDeviceImpl
	// CodeNoDeviceName indicates the constructor was given no default name.
	CodeNoDeviceName
	// CodeNoDeviceVersion indicates the constructor was given no version.
	CodeNoDeviceVersion
	// CodeInvalidArg indicates a command-line parse failure, or a registry
	// that was requested but could not be resolved.
	CodeInvalidArg
	// CodeBadConfig indicates a required endpoint host or port is missing.
	CodeBadConfig
	// CodeRemoteServerDown indicates a required external service failed
	// every ping attempt.
	CodeRemoteServerDown
	// CodeDriverUnstart indicates the driver rejected initialization.
	CodeDriverUnstart
	// CodeMetadataError carries a failure from a core-metadata operation;
	// the reason is prefixed with the failing operation.
	CodeMetadataError
	// CodeDataError carries a failure from a core-data or support-logging
	// operation.
	CodeDataError
	// CodeRegistryError carries a failure from a registry operation.
	CodeRegistryError
)

// String returns the symbolic name of the code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeNoDeviceImpl:
		return "NO_DEVICE_IMPL"
	case CodeNoDeviceName:
		return "NO_DEVICE_NAME"
	case CodeNoDeviceVersion:
		return "NO_DEVICE_VERSION"
	case CodeInvalidArg:
		return "INVALID_ARG"
	case CodeBadConfig:
		return "BAD_CONFIG"
	case CodeRemoteServerDown:
		return "REMOTE_SERVER_DOWN"
	case CodeDriverUnstart:
		return "DRIVER_UNSTART"
	case CodeMetadataError:
		return "METADATA_ERROR"
	case CodeDataError:
		return "DATA_ERROR"
	case CodeRegistryError:
		return "REGISTRY_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ServiceError is the structured error carried across subsystem
// boundaries. It wraps an optional cause and satisfies errors.Is for any
// other *ServiceError with the same Code.
type ServiceError struct {
	Code   Code
	Reason string
	Err    error
}

// New creates a ServiceError with the given code and reason.
func New(code Code, reason string) *ServiceError {
	return &ServiceError{Code: code, Reason: reason}
}

// Newf creates a ServiceError with a formatted reason.
func Newf(code Code, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ServiceError with the same code. This
// lets callers write errors.Is(err, errors.New(CodeRemoteServerDown, "")).
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// CodeOf extracts the code from err, walking the wrap chain. Returns
// CodeOK for nil and for errors that carry no ServiceError.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeOK
}

// Wrap attaches a code and context to an underlying error following the
// "component.method: action failed" convention used throughout the SDK.
func Wrap(err error, code Code, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &ServiceError{
		Code:   code,
		Reason: fmt.Sprintf("%s.%s: %s failed", component, method, action),
		Err:    err,
	}
}

// WrapOp prefixes the reason with a failing north-bound operation name,
// preserving the underlying client failure. Callers diagnosing metadata,
// data and registry errors can identify the operation from the reason
// string alone.
func WrapOp(err error, code Code, operation string) error {
	if err == nil {
		return nil
	}
	return &ServiceError{
		Code:   code,
		Reason: fmt.Sprintf("%s failed", operation),
		Err:    err,
	}
}

// IsTransient reports whether err looks like a temporary condition that
// may succeed on retry: timeouts, refused connections, unreachable hosts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"temporary",
		"unavailable",
	} {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}
