// Package errors provides standardized error handling for the webxr layer.
// It defines the error taxonomy shared by discovery, sessions, frames, and
// reference spaces, plus classification and wrapping helpers used for
// consistent error context across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors; the host may retry the
	// failed cycle without tearing anything down
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input, configuration,
	// or an unsatisfiable request
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that end the session
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for the webxr error taxonomy
var (
	// Discovery errors
	ErrNoCapableDevice = errors.New("no capable device")

	// Session errors
	ErrSessionUnavailable = errors.New("device already claimed by another session")
	ErrUnsupportedFeature = errors.New("required feature unsupported")
	ErrFrameInFlight      = errors.New("frame request already in flight")
	ErrSessionClosed      = errors.New("session closed")

	// Frame errors
	ErrFrameTimeout = errors.New("frame request timed out")

	// Reference space errors
	ErrSpaceUnsupported = errors.New("reference space unsupported")

	// Device and channel errors
	ErrDeviceLost     = errors.New("device lost")
	ErrChannelClosed  = errors.New("session channel closed")
	ErrNotConnected   = errors.New("not connected")
	ErrProtocolBroken = errors.New("session protocol violation")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidPose   = errors.New("invalid pose")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and the cycle may be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrFrameTimeout) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsFatal checks if an error is fatal and ends the session
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrDeviceLost) ||
		errors.Is(err, ErrChannelClosed) ||
		errors.Is(err, ErrProtocolBroken)
}

// IsInvalid checks if an error is due to an unsatisfiable or malformed request
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrNoCapableDevice) ||
		errors.Is(err, ErrUnsupportedFeature) ||
		errors.Is(err, ErrSpaceUnsupported) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidPose)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
