package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

var allStatuses = []models.SyncStatus{
	models.StatusNone,
	models.StatusLocalOnly,
	models.StatusPending,
	models.StatusUploading,
	models.StatusDownloading,
	models.StatusSynced,
	models.StatusFailed,
}

var allEvents = []Event{
	{Kind: Queue},
	{Kind: Claim},
	{Kind: UploadSucceeded},
	{Kind: UploadFailed, Failure: syncerr.ClassTransient},
	{Kind: UploadFailed, Failure: syncerr.ClassQuotaExceeded},
	{Kind: UploadFailed, Failure: syncerr.ClassConflict},
	{Kind: UploadFailed, Failure: syncerr.ClassLocalFileMissing},
	{Kind: UploadFailed, Failure: syncerr.ClassUnknown},
	{Kind: DownloadStart},
	{Kind: DownloadSucceeded},
	{Kind: DownloadFailed, Failure: syncerr.ClassNotFound},
	{Kind: OptOut},
}

type key struct {
	cur models.SyncStatus
	ev  Event
}

// expected holds every legal (status, event) pair. Any pair absent
// from the map must return ErrInvalidTransition and leave the status
// unchanged.
var expected = map[key]models.SyncStatus{
	{models.StatusNone, Event{Kind: Queue}}:    models.StatusPending,
	{models.StatusPending, Event{Kind: Queue}}: models.StatusPending,
	{models.StatusFailed, Event{Kind: Queue}}:  models.StatusPending,

	{models.StatusPending, Event{Kind: Claim}}: models.StatusUploading,

	{models.StatusUploading, Event{Kind: UploadSucceeded}}: models.StatusSynced,

	{models.StatusUploading, Event{Kind: UploadFailed, Failure: syncerr.ClassTransient}}:        models.StatusPending,
	{models.StatusUploading, Event{Kind: UploadFailed, Failure: syncerr.ClassQuotaExceeded}}:    models.StatusFailed,
	{models.StatusUploading, Event{Kind: UploadFailed, Failure: syncerr.ClassConflict}}:         models.StatusFailed,
	{models.StatusUploading, Event{Kind: UploadFailed, Failure: syncerr.ClassLocalFileMissing}}: models.StatusFailed,
	{models.StatusUploading, Event{Kind: UploadFailed, Failure: syncerr.ClassUnknown}}:          models.StatusFailed,

	{models.StatusNone, Event{Kind: DownloadStart}}:   models.StatusDownloading,
	{models.StatusSynced, Event{Kind: DownloadStart}}: models.StatusDownloading,
	{models.StatusFailed, Event{Kind: DownloadStart}}: models.StatusDownloading,

	{models.StatusDownloading, Event{Kind: DownloadSucceeded}}: models.StatusSynced,

	{models.StatusDownloading, Event{Kind: DownloadFailed, Failure: syncerr.ClassNotFound}}: models.StatusFailed,

	{models.StatusNone, Event{Kind: OptOut}}:    models.StatusLocalOnly,
	{models.StatusPending, Event{Kind: OptOut}}: models.StatusLocalOnly,
	{models.StatusFailed, Event{Kind: OptOut}}:  models.StatusLocalOnly,
	{models.StatusSynced, Event{Kind: OptOut}}:  models.StatusLocalOnly,
}

// TestNext_Exhaustive walks the full (status, event) cross product and
// checks that every pair produces exactly the documented outcome.
func TestNext_Exhaustive(t *testing.T) {
	for _, cur := range allStatuses {
		for _, ev := range allEvents {
			next, err := Next(cur, ev)

			want, legal := expected[key{cur, ev}]
			if legal {
				require.NoError(t, err, "status=%q event=%v", cur, ev)
				assert.Equal(t, want, next, "status=%q event=%v", cur, ev)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "status=%q event=%v", cur, ev)
				assert.Equal(t, cur, next, "status must not change on an illegal event")
			}
		}
	}
}

// TestNext_LocalOnlyIsTerminal pins the opt-out sink: no event may
// ever move a local_only record back into the sync flow.
func TestNext_LocalOnlyIsTerminal(t *testing.T) {
	for _, ev := range allEvents {
		next, err := Next(models.StatusLocalOnly, ev)
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, models.StatusLocalOnly, next)
	}
}

func TestNext_TransientUploadFailureIsSilent(t *testing.T) {
	next, err := Next(models.StatusUploading, Event{Kind: UploadFailed, Failure: syncerr.ClassTransient})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, next, "network failures go back to pending, not failed")
}
