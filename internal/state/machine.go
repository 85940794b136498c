// Package state implements the per-asset sync status transition rules.
// The machine is pure: given a current status and an event it returns
// exactly one next status or ErrInvalidTransition. All guards that
// need record context (media kind, local blob presence, exclusive
// claim) live in the engine; this package only encodes the legal
// status graph.
package state

import (
	"errors"

	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

var ErrInvalidTransition = errors.New("invalid sync status transition")

// EventKind enumerates the events that drive status changes.
type EventKind int

const (
	// Queue marks the asset for upload.
	Queue EventKind = iota
	// Claim takes the exclusive upload slot for the asset.
	Claim
	// UploadSucceeded completes an upload attempt.
	UploadSucceeded
	// UploadFailed completes an upload attempt with an error; the
	// failure class decides where the record lands.
	UploadFailed
	// DownloadStart begins an inbound transfer.
	DownloadStart
	// DownloadSucceeded completes an inbound transfer.
	DownloadSucceeded
	// DownloadFailed completes an inbound transfer with an error.
	DownloadFailed
	// OptOut permanently excludes the asset from sync.
	OptOut
)

// Event is a status event, optionally carrying the failure class for
// UploadFailed/DownloadFailed.
type Event struct {
	Kind    EventKind
	Failure syncerr.Class
}

// Next returns the status the record moves to when ev occurs in cur.
//
// Rules worth calling out:
//   - local_only is an absorbing sink: nothing leaves it.
//   - Transient upload failures route back to pending so the asset is
//     silently retried when connectivity returns; every other failure
//     class lands in failed and waits for user action.
//   - synced absorbs Queue (idempotent queueing of an already synced
//     asset is a no-op handled by the engine before it gets here).
func Next(cur models.SyncStatus, ev Event) (models.SyncStatus, error) {
	if cur == models.StatusLocalOnly {
		return cur, ErrInvalidTransition
	}

	switch ev.Kind {
	case Queue:
		switch cur {
		case models.StatusNone, models.StatusPending, models.StatusFailed:
			return models.StatusPending, nil
		}

	case Claim:
		if cur == models.StatusPending {
			return models.StatusUploading, nil
		}

	case UploadSucceeded:
		if cur == models.StatusUploading {
			return models.StatusSynced, nil
		}

	case UploadFailed:
		if cur == models.StatusUploading {
			if ev.Failure.Retryable() {
				return models.StatusPending, nil
			}
			return models.StatusFailed, nil
		}

	case DownloadStart:
		switch cur {
		case models.StatusNone, models.StatusSynced, models.StatusFailed:
			return models.StatusDownloading, nil
		}

	case DownloadSucceeded:
		if cur == models.StatusDownloading {
			return models.StatusSynced, nil
		}

	case DownloadFailed:
		if cur == models.StatusDownloading {
			return models.StatusFailed, nil
		}

	case OptOut:
		switch cur {
		case models.StatusNone, models.StatusPending, models.StatusFailed, models.StatusSynced:
			return models.StatusLocalOnly, nil
		}
	}

	return cur, ErrInvalidTransition
}
