// Package models defines the memory record and the media sync fields
// the engine maintains on it.
package models

import "time"

// MediaKind classifies the media payload a memory carries.
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindText  MediaKind = "text"
)

// HasMedia reports whether records of this kind carry a binary asset.
// Text memories never do.
func (k MediaKind) HasMedia() bool {
	return k == KindPhoto || k == KindVideo || k == KindAudio
}

// Ext returns the blob-store file extension for the kind.
func (k MediaKind) Ext() string {
	switch k {
	case KindPhoto:
		return ".jpg"
	case KindVideo:
		return ".mov"
	case KindAudio:
		return ".m4a"
	default:
		return ".bin"
	}
}

// SyncStatus is the per-asset transfer state persisted on the record.
type SyncStatus string

const (
	// StatusNone means "not applicable": text memories, or a thumbnail
	// that was never queued.
	StatusNone        SyncStatus = ""
	StatusLocalOnly   SyncStatus = "local_only"
	StatusPending     SyncStatus = "pending"
	StatusUploading   SyncStatus = "uploading"
	StatusDownloading SyncStatus = "downloading"
	StatusSynced      SyncStatus = "synced"
	StatusFailed      SyncStatus = "failed"
)

// PartitionScope selects the private or a shared namespace in the
// remote asset store.
type PartitionScope string

const (
	ScopePrivate PartitionScope = "private"
	ScopeShared  PartitionScope = "shared"
)

// Partition identifies an isolated remote storage namespace. Zone is
// empty for the private partition and carries the shared zone id
// otherwise. The remote store treats it as an opaque key prefix; zone
// lifecycle is managed by the external sharing workflow.
type Partition struct {
	Scope PartitionScope
	Zone  string
}

func PrivatePartition() Partition {
	return Partition{Scope: ScopePrivate}
}

func SharedPartition(zone string) Partition {
	return Partition{Scope: ScopeShared, Zone: zone}
}

// Memory is the locally persisted metadata record describing a
// captured memory. The record itself is replicated by an external
// layer; this engine owns only the media sync fields.
type Memory struct {
	ID        string
	OwnerID   string
	Kind      MediaKind
	Title     string
	CreatedAt time.Time

	LocalPath     string
	ThumbnailPath string

	MediaStatus     SyncStatus
	ThumbnailStatus SyncStatus

	// Private-partition object keys, set once the corresponding upload
	// succeeds.
	RemoteAssetID     string
	RemoteThumbnailID string

	// Shared-partition object keys, set by the shared-zone coordinator.
	// Kept separate from the private ids so re-sharing is idempotent.
	SharedAssetID     string
	SharedThumbnailID string

	ByteSize        int64
	UploadProgress  float64
	LastSyncAttempt *time.Time
	SyncError       string

	// Tombstoned is set when the replication layer reports that the
	// record was deleted remotely. Tombstoned records must never be
	// operated on.
	Tombstoned bool
}

// HasLocalBlob reports whether a primary asset is available locally.
func (m *Memory) HasLocalBlob() bool {
	return m.LocalPath != ""
}

// Tag is a globally shared auxiliary entity referenced by memories of
// many owners.
type Tag struct {
	ID   string
	Name string
}

// TagAssignment is a memory-to-tag relationship. Scope records which
// partition the relationship lives in; assignments are only ever sent
// to the private partition (see the sharing protocol).
type TagAssignment struct {
	MemoryID string
	TagID    string
	Scope    PartitionScope
}
