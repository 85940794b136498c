// Package remote abstracts the cloud object store holding media
// payloads. Assets live in partitions: the owner's private space or a
// named shared zone established by an external sharing workflow. The
// store treats partitions as opaque namespaces and does not manage
// their lifecycle.
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/keepsake/internal/models"
)

// ProgressFunc receives transfer progress. sent grows monotonically up
// to total within one call to Create.
type ProgressFunc func(sent, total int64)

// AssetMetadata is the small set of scalar fields attached to every
// stored object. Checksum is a hex SHA-256 over the exact payload
// bytes, computed before upload, so any downloader can verify
// integrity.
type AssetMetadata struct {
	OwnerRecordID    string
	Kind             models.MediaKind
	ByteSize         int64
	Checksum         string
	OriginalFilename string
}

// AssetStore is the remote large-object contract.
//
// Fetch of a stale asset id (object deleted remotely) fails with
// syncerr.ErrNotFound, which callers must treat as non-retryable.
type AssetStore interface {
	Create(ctx context.Context, p models.Partition, payload []byte, meta AssetMetadata, onProgress ProgressFunc) (string, error)
	Fetch(ctx context.Context, p models.Partition, assetID string) ([]byte, error)
	Delete(ctx context.Context, p models.Partition, assetID string) error
	Ping(ctx context.Context) error
}

// Checksum returns the hex SHA-256 digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PartitionPrefix maps a partition to its object key prefix.
func PartitionPrefix(p models.Partition) string {
	if p.Scope == models.ScopeShared {
		return "shared/" + p.Zone
	}
	return "private"
}
