package integration

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// Platform errors
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformAuthFailed      = errors.New("integration: platform authentication failed")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")
	ErrPlatformNotFound        = errors.New("integration: remote record not found")

	// Mapping errors
	ErrMappingInvalidLocalID    = errors.New("integration: invalid local entity ID")
	ErrMappingInvalidSystemCode = errors.New("integration: invalid system code")
	ErrMappingInvalidResource   = errors.New("integration: invalid resource kind")
	ErrMappingInvalidExternalID = errors.New("integration: invalid external ID")
	ErrMappingNotFound          = errors.New("integration: external ID mapping not found")
)

// ---------------------------------------------------------------------------
// Sync error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies a sync failure. The scheduler decides retryability
// purely from the kind, never from message text.
type ErrorKind string

const (
	// ErrorKindRemoteAPI indicates the platform rejected the call or
	// returned malformed data
	ErrorKindRemoteAPI ErrorKind = "REMOTE_API"
	// ErrorKindLocalValidation indicates a local write violated a business
	// invariant
	ErrorKindLocalValidation ErrorKind = "LOCAL_VALIDATION"
	// ErrorKindTransient indicates a network timeout or database
	// serialization conflict
	ErrorKindTransient ErrorKind = "TRANSIENT"
	// ErrorKindFatal indicates an unclassified failure that must not be
	// retried
	ErrorKindFatal ErrorKind = "FATAL"
)

// IsValid returns true if the error kind is valid
func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrorKindRemoteAPI, ErrorKindLocalValidation, ErrorKindTransient, ErrorKindFatal:
		return true
	default:
		return false
	}
}

// Retryable reports whether a job failing with this kind may be requeued.
// Everything in the curated taxonomy is retryable with bounded attempts;
// only unclassified failures are fatal on first occurrence.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindRemoteAPI, ErrorKindLocalValidation, ErrorKindTransient:
		return true
	default:
		return false
	}
}

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// SyncError is the uniform failure shape every job error is reduced to.
// Record carries the serialized remote or local record involved so a
// terminal job failure is inspectable without replaying the sync.
type SyncError struct {
	Kind    ErrorKind
	Message string
	Record  json.RawMessage
	Cause   error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sync %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("sync %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// NewSyncError builds a SyncError of the given kind, serializing record for
// diagnostics. A record that cannot be marshalled is dropped rather than
// failing the error path itself.
func NewSyncError(kind ErrorKind, message string, record any, cause error) *SyncError {
	e := &SyncError{Kind: kind, Message: message, Cause: cause}
	if record != nil {
		if raw, err := json.Marshal(record); err == nil {
			e.Record = raw
		}
	}
	return e
}

// NewRemoteAPIError builds a remote-API sync error
func NewRemoteAPIError(message string, record any, cause error) *SyncError {
	return NewSyncError(ErrorKindRemoteAPI, message, record, cause)
}

// NewLocalValidationError builds a local-validation sync error
func NewLocalValidationError(message string, record any, cause error) *SyncError {
	return NewSyncError(ErrorKindLocalValidation, message, record, cause)
}

// NewTransientError builds a transient-infrastructure sync error
func NewTransientError(message string, cause error) *SyncError {
	return NewSyncError(ErrorKindTransient, message, nil, cause)
}

// WrapSyncError coerces an arbitrary error into a SyncError. Errors that
// already carry a kind pass through unchanged so their diagnostic context is
// preserved; anything else becomes a remote-API error carrying the offending
// record, giving every job failure the same inspectable shape.
func WrapSyncError(err error, record any) *SyncError {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}
	return NewRemoteAPIError(err.Error(), record, err)
}

// KindOf extracts the error kind, defaulting to fatal for unclassified errors
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrorKindFatal
}
