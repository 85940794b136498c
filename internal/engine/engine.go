// Package engine orchestrates media transfers between the local blob
// store and the remote asset store. It owns all mutations of the sync
// fields on memory records: queueing, exclusive claims, bounded
// concurrency, progress reporting and failure routing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dmitrijs2005/keepsake/internal/blobstore"
	"github.com/dmitrijs2005/keepsake/internal/logging"
	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/records"
	"github.com/dmitrijs2005/keepsake/internal/remote"
	"github.com/dmitrijs2005/keepsake/internal/state"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

// ErrTransferInFlight is returned when a download is requested for an
// asset that already has one running.
var ErrTransferInFlight = errors.New("transfer already in flight")

const (
	DefaultUploadWorkers   = 2
	DefaultDownloadWorkers = 3
)

// Options tunes the engine's transfer pools.
type Options struct {
	// UploadWorkers bounds concurrent primary uploads process-wide.
	// Uploads are bandwidth- and battery-sensitive, so the default is
	// small.
	UploadWorkers int64
	// DownloadWorkers bounds concurrent downloads.
	DownloadWorkers int64
}

// Engine is the upload/download orchestrator. All entry points are
// safe for concurrent use.
type Engine struct {
	repo  records.Repository
	blobs *blobstore.Store
	store remote.AssetStore
	log   logging.Logger

	uploadSem   *semaphore.Weighted
	downloadSem *semaphore.Weighted

	mu           sync.Mutex
	inflightUp   map[string]struct{}
	inflightDown map[string]struct{}
	queueCtx     context.Context
	queueCancel  context.CancelFunc

	wg           sync.WaitGroup
	netAvailable atomic.Bool
	events       hub
}

func New(repo records.Repository, blobs *blobstore.Store, store remote.AssetStore, log logging.Logger, opts Options) *Engine {
	if opts.UploadWorkers <= 0 {
		opts.UploadWorkers = DefaultUploadWorkers
	}
	if opts.DownloadWorkers <= 0 {
		opts.DownloadWorkers = DefaultDownloadWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		repo:         repo,
		blobs:        blobs,
		store:        store,
		log:          log,
		uploadSem:    semaphore.NewWeighted(opts.UploadWorkers),
		downloadSem:  semaphore.NewWeighted(opts.DownloadWorkers),
		inflightUp:   map[string]struct{}{},
		inflightDown: map[string]struct{}{},
		queueCtx:     ctx,
		queueCancel:  cancel,
	}
	e.netAvailable.Store(true)

	// Records tombstoned by the replication layer must not be operated
	// on; in-flight attempts discover this when their final update
	// fails with not-found.
	repo.OnChange(func(id string) {
		e.log.Debug(context.Background(), "record removed by replication layer", "memory_id", id)
	})

	return e
}

// Subscribe returns a channel of engine events and a cancel function
// that releases the subscription. Slow consumers miss events instead
// of blocking transfers.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

// NetworkAvailable reports the last connectivity state pushed by the
// reachability monitor.
func (e *Engine) NetworkAvailable() bool {
	return e.netAvailable.Load()
}

func (e *Engine) SetNetworkAvailable(available bool) {
	e.netAvailable.Store(available)
}

// PendingUploads returns the number of records waiting for upload.
func (e *Engine) PendingUploads(ctx context.Context) (int, error) {
	return e.repo.CountByStatus(ctx, models.StatusPending)
}

// Wait blocks until all queued asynchronous work has drained. Used on
// shutdown and by tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// QueueUpload marks the asset for upload and, if connectivity is
// available, starts an attempt in the background. It is idempotent:
// queueing a text memory or an already synced or opted-out asset is a
// no-op.
func (e *Engine) QueueUpload(ctx context.Context, id string) error {
	m, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if !m.Kind.HasMedia() || m.MediaStatus == models.StatusSynced || m.MediaStatus == models.StatusLocalOnly {
		return nil
	}
	if !m.HasLocalBlob() {
		return fmt.Errorf("memory %s has no local blob: %w", id, syncerr.ErrLocalFileMissing)
	}

	next, err := state.Next(m.MediaStatus, state.Event{Kind: state.Queue})
	if err != nil {
		// already uploading or downloading; the running attempt wins
		return nil
	}

	if next != m.MediaStatus {
		m.MediaStatus = next
		if err := e.repo.Update(ctx, m); err != nil {
			return err
		}
		e.events.publish(Event{Type: EventStatusChanged, MemoryID: id, Status: next})
	}

	if e.NetworkAvailable() {
		e.dispatchUpload(id)
	}
	return nil
}

// dispatchUpload runs an upload attempt in the background. The wait
// for a pool slot is cancellable by CancelAll; once a slot is held the
// transfer runs to completion and applies its result normally.
func (e *Engine) dispatchUpload(id string) {
	e.mu.Lock()
	qctx := e.queueCtx
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if err := e.uploadSem.Acquire(qctx, 1); err != nil {
			return // cancelled while queued
		}
		defer e.uploadSem.Release(1)

		if !e.claim(e.inflightUp, id) {
			return
		}
		defer e.release(e.inflightUp, id)

		ctx := context.WithoutCancel(qctx)
		if err := e.attemptUpload(ctx, id); err != nil {
			e.log.Warn(ctx, "upload attempt aborted", "memory_id", id, "error", err)
		}
	}()
}

// UploadNow performs a full upload attempt, waiting for a pool slot if
// necessary. Transfer failures are recorded on the record, not
// returned; the returned error covers only precondition and storage
// problems.
func (e *Engine) UploadNow(ctx context.Context, id string) error {
	if err := e.uploadSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.uploadSem.Release(1)

	if !e.claim(e.inflightUp, id) {
		return nil
	}
	defer e.release(e.inflightUp, id)

	return e.attemptUpload(ctx, id)
}

// attemptUpload runs one upload attempt for the claimed asset.
func (e *Engine) attemptUpload(ctx context.Context, id string) error {
	m, err := e.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, syncerr.ErrNotFound) {
			return nil // deleted while queued
		}
		return err
	}

	if !m.Kind.HasMedia() || m.MediaStatus == models.StatusSynced || m.MediaStatus == models.StatusLocalOnly {
		return nil
	}

	st := m.MediaStatus
	if st == models.StatusNone || st == models.StatusFailed {
		if st, err = state.Next(st, state.Event{Kind: state.Queue}); err != nil {
			return nil
		}
	}
	st, err = state.Next(st, state.Event{Kind: state.Claim})
	if err != nil {
		return nil // e.g. a download owns the record right now
	}

	now := time.Now().UTC()
	m.MediaStatus = st
	m.LastSyncAttempt = &now
	m.UploadProgress = 0
	m.SyncError = ""
	if err := e.repo.Update(ctx, m); err != nil {
		return err
	}
	e.events.publish(Event{Type: EventStatusChanged, MemoryID: id, Status: st})

	if !m.HasLocalBlob() {
		return e.failUpload(ctx, m, fmt.Errorf("file not found: %w", syncerr.ErrLocalFileMissing))
	}
	data, err := e.blobs.Load(m.LocalPath, m.Kind)
	if err != nil {
		if errors.Is(err, syncerr.ErrNotFound) {
			err = fmt.Errorf("file not found: %w", syncerr.ErrLocalFileMissing)
		}
		return e.failUpload(ctx, m, err)
	}

	m.ByteSize = int64(len(data))
	meta := remote.AssetMetadata{
		OwnerRecordID:    m.ID,
		Kind:             m.Kind,
		ByteSize:         m.ByteSize,
		Checksum:         remote.Checksum(data),
		OriginalFilename: m.LocalPath,
	}

	assetID, err := e.store.Create(ctx, models.PrivatePartition(), data, meta, e.progressFunc(ctx, m.ID))
	if err != nil {
		return e.failUpload(ctx, m, err)
	}

	m.RemoteAssetID = assetID
	m.UploadProgress = 1
	m.MediaStatus, _ = state.Next(models.StatusUploading, state.Event{Kind: state.UploadSucceeded})
	if err := e.repo.Update(ctx, m); err != nil {
		// Record vanished mid-transfer; the orphaned remote object is
		// cleaned up best-effort.
		e.log.Warn(ctx, "record gone after upload, deleting remote object", "memory_id", id, "error", err)
		_ = e.store.Delete(ctx, models.PrivatePartition(), assetID)
		return nil
	}
	e.events.publish(Event{Type: EventStatusChanged, MemoryID: id, Status: models.StatusSynced})
	e.log.Info(ctx, "asset uploaded", "memory_id", id, "asset_id", assetID, "bytes", m.ByteSize)

	// Secondary transfer: a thumbnail failure never affects the
	// primary outcome.
	e.uploadThumbnail(ctx, m)

	return nil
}

// progressFunc persists and publishes upload progress, enforcing
// monotonicity within the attempt.
func (e *Engine) progressFunc(ctx context.Context, id string) remote.ProgressFunc {
	var last float64
	return func(sent, total int64) {
		p := 1.0
		if total > 0 {
			p = float64(sent) / float64(total)
		}
		if p <= last {
			return
		}
		last = p
		if err := e.repo.SetUploadProgress(ctx, id, p); err != nil {
			e.log.Debug(ctx, "progress update failed", "memory_id", id, "error", err)
		}
		e.events.publish(Event{Type: EventProgress, MemoryID: id, Status: models.StatusUploading, Progress: p})
	}
}

// failUpload records an upload failure. Transient failures route back
// to pending so the reachability monitor can retry them; everything
// else lands in failed and waits for the user.
func (e *Engine) failUpload(ctx context.Context, m *models.Memory, cause error) error {
	class := syncerr.Classify(cause)
	next, err := state.Next(models.StatusUploading, state.Event{Kind: state.UploadFailed, Failure: class})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	m.MediaStatus = next
	m.LastSyncAttempt = &now
	m.SyncError = cause.Error()

	if err := e.repo.Update(ctx, m); err != nil && !errors.Is(err, syncerr.ErrNotFound) {
		return err
	}
	e.events.publish(Event{Type: EventStatusChanged, MemoryID: m.ID, Status: next, Err: m.SyncError})
	e.log.Warn(ctx, "upload failed", "memory_id", m.ID, "class", class.String(), "error", cause)
	return nil
}

// uploadThumbnail pushes the thumbnail after a successful primary
// upload. Failures are logged and reflected in the thumbnail status
// only.
func (e *Engine) uploadThumbnail(ctx context.Context, m *models.Memory) {
	if m.ThumbnailPath == "" || m.RemoteThumbnailID != "" {
		return
	}

	persist := func() {
		if err := e.repo.Update(ctx, m); err != nil {
			e.log.Debug(ctx, "thumbnail status update failed", "memory_id", m.ID, "error", err)
		}
	}

	data, err := e.blobs.Load(m.ThumbnailPath, models.KindPhoto)
	if err != nil {
		e.log.Warn(ctx, "thumbnail unreadable", "memory_id", m.ID, "error", err)
		m.ThumbnailStatus = models.StatusFailed
		persist()
		return
	}

	meta := remote.AssetMetadata{
		OwnerRecordID:    m.ID,
		Kind:             models.KindPhoto,
		ByteSize:         int64(len(data)),
		Checksum:         remote.Checksum(data),
		OriginalFilename: m.ThumbnailPath,
	}

	assetID, err := e.store.Create(ctx, models.PrivatePartition(), data, meta, nil)
	if err != nil {
		e.log.Warn(ctx, "thumbnail upload failed", "memory_id", m.ID, "error", err)
		m.ThumbnailStatus = models.StatusFailed
		persist()
		return
	}

	m.RemoteThumbnailID = assetID
	m.ThumbnailStatus = models.StatusSynced
	persist()
}

// DownloadIfNeeded resolves the asset to a local path. If a local file
// already exists it is returned immediately with no network call.
func (e *Engine) DownloadIfNeeded(ctx context.Context, id string) (string, error) {
	m, err := e.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	// Fast path, checked before anything else.
	if m.HasLocalBlob() && e.blobs.Exists(m.LocalPath, m.Kind) {
		return e.blobs.Path(m.LocalPath, m.Kind), nil
	}

	if m.RemoteAssetID == "" {
		return "", fmt.Errorf("memory %s has no remote asset: %w", id, syncerr.ErrNotFound)
	}

	if !e.claim(e.inflightDown, id) {
		return "", fmt.Errorf("memory %s: %w", id, ErrTransferInFlight)
	}
	defer e.release(e.inflightDown, id)

	if err := e.downloadSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.downloadSem.Release(1)

	st, err := state.Next(m.MediaStatus, state.Event{Kind: state.DownloadStart})
	if err != nil {
		return "", fmt.Errorf("memory %s in status %q: %w", id, m.MediaStatus, err)
	}
	m.MediaStatus = st
	if err := e.repo.Update(ctx, m); err != nil {
		return "", err
	}
	e.events.publish(Event{Type: EventStatusChanged, MemoryID: id, Status: st})

	data, err := e.store.Fetch(ctx, models.PrivatePartition(), m.RemoteAssetID)
	if err != nil {
		return "", e.failDownload(ctx, m, err)
	}

	name := m.LocalPath
	if name == "" {
		// caller-stable filename so a repeated download is idempotent
		name = m.ID + m.Kind.Ext()
	}
	if err := e.blobs.SaveAs(name, data, m.Kind); err != nil {
		return "", e.failDownload(ctx, m, err)
	}

	m.LocalPath = name
	m.SyncError = ""
	m.MediaStatus, _ = state.Next(models.StatusDownloading, state.Event{Kind: state.DownloadSucceeded})
	if err := e.repo.Update(ctx, m); err != nil {
		return "", err
	}
	e.events.publish(Event{Type: EventStatusChanged, MemoryID: id, Status: models.StatusSynced})
	e.log.Info(ctx, "asset downloaded", "memory_id", id, "bytes", len(data))

	return e.blobs.Path(name, m.Kind), nil
}

// failDownload records a download failure and returns the cause so the
// synchronous caller sees it too.
func (e *Engine) failDownload(ctx context.Context, m *models.Memory, cause error) error {
	next, err := state.Next(models.StatusDownloading, state.Event{Kind: state.DownloadFailed, Failure: syncerr.Classify(cause)})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	m.MediaStatus = next
	m.LastSyncAttempt = &now
	m.SyncError = cause.Error()

	if err := e.repo.Update(ctx, m); err != nil && !errors.Is(err, syncerr.ErrNotFound) {
		e.log.Warn(ctx, "failed to record download failure", "memory_id", m.ID, "error", err)
	}
	e.events.publish(Event{Type: EventStatusChanged, MemoryID: m.ID, Status: next, Err: m.SyncError})
	e.log.Warn(ctx, "download failed", "memory_id", m.ID, "error", cause)
	return cause
}

// RetryFailedAndPending re-attempts every pending or failed upload.
// Triggered by reachability restoration and by explicit user action;
// records whose failure class still holds simply fail again and stay
// failed.
func (e *Engine) RetryFailedAndPending(ctx context.Context) error {
	list, err := e.repo.ListByStatus(ctx, models.StatusPending, models.StatusFailed)
	if err != nil {
		return err
	}

	for _, m := range list {
		if !m.Kind.HasMedia() || !m.HasLocalBlob() {
			continue
		}
		if err := e.UploadNow(ctx, m.ID); err != nil {
			e.log.Warn(ctx, "retry attempt aborted", "memory_id", m.ID, "error", err)
		}
	}
	return nil
}

// CancelAll drops queued work that has not started yet. Transfers that
// already hold a pool slot run to completion and apply their result
// normally.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queueCancel()
	e.queueCtx, e.queueCancel = context.WithCancel(context.Background())
}

// OptOut permanently excludes the asset from sync.
func (e *Engine) OptOut(ctx context.Context, id string) error {
	m, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	next, err := state.Next(m.MediaStatus, state.Event{Kind: state.OptOut})
	if err != nil {
		return fmt.Errorf("memory %s in status %q: %w", id, m.MediaStatus, err)
	}

	m.MediaStatus = next
	if err := e.repo.Update(ctx, m); err != nil {
		return err
	}
	e.events.publish(Event{Type: EventStatusChanged, MemoryID: id, Status: next})
	return nil
}

// DeleteRemoteAssets best-effort deletes every remote object the
// record references. Called by deletion flows before the record
// itself is removed; remote failures are logged and do not block the
// deletion.
func (e *Engine) DeleteRemoteAssets(ctx context.Context, id string) error {
	m, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	targets := []struct {
		partition models.Partition
		assetID   *string
	}{
		{models.PrivatePartition(), &m.RemoteAssetID},
		{models.PrivatePartition(), &m.RemoteThumbnailID},
		{models.SharedPartition(""), &m.SharedAssetID},
		{models.SharedPartition(""), &m.SharedThumbnailID},
	}

	for _, t := range targets {
		if *t.assetID == "" {
			continue
		}
		if err := e.store.Delete(ctx, t.partition, *t.assetID); err != nil {
			e.log.Warn(ctx, "remote delete failed", "memory_id", id, "asset_id", *t.assetID, "error", err)
			continue
		}
		*t.assetID = ""
	}

	if err := e.repo.Update(ctx, m); err != nil && !errors.Is(err, syncerr.ErrNotFound) {
		return err
	}
	return nil
}

// Store exposes the remote asset store for collaborators that reuse
// the engine's transfer primitives (the shared-zone coordinator).
func (e *Engine) Store() remote.AssetStore {
	return e.store
}

// Blobs exposes the local blob store.
func (e *Engine) Blobs() *blobstore.Store {
	return e.blobs
}

func (e *Engine) claim(set map[string]struct{}, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}

func (e *Engine) release(set map[string]struct{}, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(set, id)
}
