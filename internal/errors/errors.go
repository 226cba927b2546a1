package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for hearth-ctl
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitNotFound          = 2
	ExitConflict          = 3
	ExitPortAllocation    = 4
	ExitContainerFailed   = 5
	ExitConfigError       = 6
	ExitValidationFailure = 7
	ExitLedgerUnavailable = 8
)

// Kind classifies an error for callers that branch on failure category
// rather than on a specific message.
type Kind string

const (
	KindGeneral            Kind = "general"
	KindNotFound           Kind = "not-found"
	KindConflict           Kind = "conflict"
	KindResourceExhaustion Kind = "resource-exhaustion"
	KindExternalService    Kind = "external-service"
	KindValidation         Kind = "validation"
)

// HearthError is the base error type for hearth
type HearthError struct {
	Code    int
	Message string
	Cause   error
}

func (e *HearthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *HearthError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *HearthError) ExitCode() int {
	return e.Code
}

// Kind returns the taxonomy bucket this error's code belongs to.
func (e *HearthError) Kind() Kind {
	switch e.Code {
	case ExitNotFound:
		return KindNotFound
	case ExitConflict:
		return KindConflict
	case ExitPortAllocation:
		return KindResourceExhaustion
	case ExitContainerFailed, ExitLedgerUnavailable:
		return KindExternalService
	case ExitValidationFailure:
		return KindValidation
	default:
		return KindGeneral
	}
}

// New creates a new HearthError
func New(code int, message string) *HearthError {
	return &HearthError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a HearthError
func Wrap(code int, message string, cause error) *HearthError {
	return &HearthError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

// ServerNotFound returns an error for a missing server row
func ServerNotFound(id string) *HearthError {
	return New(ExitNotFound, fmt.Sprintf("server not found: %s", id))
}

// JobNotFound returns an error for a missing job row
func JobNotFound(id string) *HearthError {
	return New(ExitNotFound, fmt.Sprintf("job not found: %s", id))
}

// ContainerNotFound is raised when the runtime no longer knows the
// container a server points at.
func ContainerNotFound() *HearthError {
	return New(ExitNotFound, "Container not found")
}

// NoContainer returns an error when a lifecycle operation needs a
// container but the server has never been created.
func NoContainer(serverID string) *HearthError {
	return New(ExitConflict, fmt.Sprintf("server %s has no container", serverID))
}

// UnknownGame returns an error for a game key missing from the catalog
func UnknownGame(key string) *HearthError {
	return New(ExitConflict, fmt.Sprintf("unknown game: %s", key))
}

// PortsExhausted returns an error when no host port is free in the window
func PortsExhausted(from, to int) *HearthError {
	return New(ExitPortAllocation, fmt.Sprintf("no available ports in range %d-%d", from, to))
}

// PortAllocationFailed returns an error for port allocation failure
func PortAllocationFailed(cause error) *HearthError {
	return Wrap(ExitPortAllocation, "failed to allocate port", cause)
}

// ContainerFailed returns an error for container operations
func ContainerFailed(op string, cause error) *HearthError {
	return Wrap(ExitContainerFailed, fmt.Sprintf("container %s failed", op), cause)
}

// ImagePullFailed returns an error for a failed image pull
func ImagePullFailed(image string, cause error) *HearthError {
	return Wrap(ExitContainerFailed, fmt.Sprintf("pull of image %s failed", image), cause)
}

// LedgerError returns an error for database failures
func LedgerError(op string, cause error) *HearthError {
	return Wrap(ExitLedgerUnavailable, fmt.Sprintf("ledger %s failed", op), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *HearthError {
	return Wrap(ExitConfigError, message, cause)
}

// ScriptRejected returns an error listing the validator's findings
func ScriptRejected(problems []string) *HearthError {
	return New(ExitValidationFailure, "script rejected: "+strings.Join(problems, "; "))
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *HearthError {
	return New(ExitValidationFailure, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var hearthErr *HearthError
	if errors.As(err, &hearthErr) {
		return hearthErr.ExitCode()
	}
	return ExitGeneralError
}

// KindOf extracts the taxonomy kind from an error chain.
func KindOf(err error) Kind {
	var hearthErr *HearthError
	if errors.As(err, &hearthErr) {
		return hearthErr.Kind()
	}
	return KindGeneral
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
