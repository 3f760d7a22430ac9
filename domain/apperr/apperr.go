// Package apperr defines the typed error taxonomy surfaced by the gateway
// core. Every operation that can fail returns one of these kinds wrapped
// around the underlying cause; callers use errors.As to recover the kind
// and errors.Is to compare against the sentinel values.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. The zero value is never produced by
// the core.
type Kind string

// Error kinds surfaced by the core.
const (
	KindInvalidInput        Kind = "invalid_input"
	KindNoSuchCollection    Kind = "no_such_collection"
	KindModelMismatch       Kind = "model_mismatch"
	KindEmbedderUnavailable Kind = "embedder_unavailable"
	KindBackendUnavailable  Kind = "backend_unavailable"
	KindPointNotFound       Kind = "point_not_found"
	KindCancelled           Kind = "cancelled"
	KindInternal            Kind = "internal"
)

// Error is the concrete type returned by the core for every failure.
type Error struct {
	Kind    Kind
	Field   string // populated for KindInvalidInput
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target carries the same Kind, so callers can write
// errors.Is(err, apperr.NoSuchCollection("")) style checks against a
// freshly constructed sentinel of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// InvalidInput reports a caller-supplied value that fails validation.
func InvalidInput(field, message string) error {
	return &Error{Kind: KindInvalidInput, Field: field, Message: message}
}

// NoSuchCollection reports an operation against a collection the backend
// does not know about (or that auto-create has been disabled for).
func NoSuchCollection(name string) error {
	return &Error{Kind: KindNoSuchCollection, Message: fmt.Sprintf("collection %q does not exist", name)}
}

// ModelMismatch reports that an existing collection's vector geometry
// disagrees with the model resolved for its name.
func ModelMismatch(collectionName, resolvedModelID, encodedVectorName string) error {
	return &Error{
		Kind: KindModelMismatch,
		Message: fmt.Sprintf(
			"collection %q is bound to vector_name %q but resolved model %q expects a different one",
			collectionName, encodedVectorName, resolvedModelID,
		),
	}
}

// EmbedderUnavailable reports that an embedding runtime could not be
// constructed even after CPU fallback. Fatal for that model_id for the
// remainder of the process.
func EmbedderUnavailable(modelID string, cause error) error {
	return &Error{
		Kind:    KindEmbedderUnavailable,
		Message: fmt.Sprintf("embedder for model %q is unavailable", modelID),
		Cause:   cause,
	}
}

// BackendUnavailable reports a transient failure talking to the vector
// database (network, timeout, 5xx). Callers may retry.
func BackendUnavailable(operation string, cause error) error {
	return &Error{
		Kind:    KindBackendUnavailable,
		Message: fmt.Sprintf("backend operation %q failed", operation),
		Cause:   cause,
	}
}

// PointNotFound reports a get/update against an unknown point id.
func PointNotFound(collectionName, pointID string) error {
	return &Error{
		Kind:    KindPointNotFound,
		Message: fmt.Sprintf("point %q not found in collection %q", pointID, collectionName),
	}
}

// Cancelled reports that the caller's context was cancelled mid-operation.
func Cancelled(cause error) error {
	return &Error{Kind: KindCancelled, Message: "operation cancelled", Cause: cause}
}

// Internal reports an invariant violation inside the core itself.
func Internal(message string, cause error) error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, or "" if err is not (or does not wrap)
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
