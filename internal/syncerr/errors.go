// Package syncerr defines shared sentinel errors and the failure
// taxonomy used by the sync engine. Callers should use errors.Is to
// match the sentinels and Classify to route failures.
package syncerr

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
)

var (
	// ErrNotFound marks a missing local blob record or a stale remote
	// asset id (object deleted remotely). Non-retryable.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks transient transport failures: the backend
	// is unreachable or timed out. Retryable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrQuotaExceeded marks remote storage quota exhaustion. Retryable
	// only after the user frees space; never auto-retried.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrConflict marks a remote object that changed unexpectedly
	// between read and write. Requires manual resolution.
	ErrConflict = errors.New("version conflict")

	// ErrLocalFileMissing marks an upload attempt whose local blob is
	// gone. Non-retryable until a new local copy exists.
	ErrLocalFileMissing = errors.New("local file missing")
)

// Class partitions failures by how the engine must react to them.
type Class int

const (
	ClassUnknown Class = iota
	ClassNotFound
	ClassTransient
	ClassQuotaExceeded
	ClassConflict
	ClassLocalFileMissing
)

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient"
	case ClassQuotaExceeded:
		return "quota_exceeded"
	case ClassConflict:
		return "conflict"
	case ClassLocalFileMissing:
		return "local_file_missing"
	default:
		return "unknown"
	}
}

// Retryable reports whether the engine may retry the failure
// automatically. Only transient transport failures qualify; everything
// else needs user action first.
func (c Class) Retryable() bool {
	return c == ClassTransient
}

// Classify maps an arbitrary error to a failure class. Sentinels win;
// timeouts, dropped connections and cancelled contexts count as
// transient; S3 API error codes are translated; anything else is
// treated conservatively as unknown (non-retryable).
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrUnavailable):
		return ClassTransient
	case errors.Is(err, ErrQuotaExceeded):
		return ClassQuotaExceeded
	case errors.Is(err, ErrConflict):
		return ClassConflict
	case errors.Is(err, ErrLocalFileMissing):
		return ClassLocalFileMissing
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ClassNotFound
		case "QuotaExceeded", "ServiceQuotaExceeded":
			return ClassQuotaExceeded
		case "PreconditionFailed", "ConditionalRequestConflict":
			return ClassConflict
		case "RequestTimeout", "SlowDown", "ServiceUnavailable", "InternalError":
			return ClassTransient
		}
	}

	return ClassUnknown
}
