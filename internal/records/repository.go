// Package records persists memory metadata records and their tag
// relationships in the local SQLite database. The records themselves
// are replicated by an external layer; locally this repository is the
// single source of truth for media sync status.
package records

import (
	"context"

	"github.com/dmitrijs2005/keepsake/internal/models"
)

// Repository describes storage operations for memory records.
// Implementations are backed by a local SQLite database.
type Repository interface {
	// Insert stores a new memory record.
	Insert(ctx context.Context, m *models.Memory) error

	// Get returns the record by id. Tombstoned or missing records
	// fail with syncerr.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Memory, error)

	// Update rewrites the mutable media sync fields of the record
	// (statuses, paths, remote ids, progress, error, attempt time).
	Update(ctx context.Context, m *models.Memory) error

	// SetUploadProgress persists the current upload progress so the UI
	// can resume showing it after a relaunch.
	SetUploadProgress(ctx context.Context, id string, progress float64) error

	// Delete removes the record permanently.
	Delete(ctx context.Context, id string) error

	// MarkTombstoned flags a record deleted by the replication layer.
	// Subsequent reads fail with syncerr.ErrNotFound; change observers
	// are notified.
	MarkTombstoned(ctx context.Context, id string) error

	// ListByStatus returns non-tombstoned records whose media status is
	// one of the given statuses.
	ListByStatus(ctx context.Context, statuses ...models.SyncStatus) ([]*models.Memory, error)

	// ListMediaByOwner returns the owner's non-tombstoned records that
	// carry media (text memories are excluded).
	ListMediaByOwner(ctx context.Context, ownerID string) ([]*models.Memory, error)

	// CountByStatus returns how many non-tombstoned records are in the
	// given media status.
	CountByStatus(ctx context.Context, status models.SyncStatus) (int, error)

	// InsertTag stores a tag.
	InsertTag(ctx context.Context, tag *models.Tag) error

	// AssignTag links a tag to a memory in the private partition.
	AssignTag(ctx context.Context, memoryID, tagID string) error

	// Assignments returns the tag assignments for the given memories.
	Assignments(ctx context.Context, memoryIDs []string) ([]models.TagAssignment, error)

	// DetachTags removes all tag assignments from the given memories in
	// one transaction and returns the removed set so it can be
	// restored later.
	DetachTags(ctx context.Context, memoryIDs []string) ([]models.TagAssignment, error)

	// ReattachTags restores previously detached assignments, forcing
	// them into the given partition scope, in one transaction.
	ReattachTags(ctx context.Context, assignments []models.TagAssignment, scope models.PartitionScope) error

	// OnChange registers a callback invoked with the record id whenever
	// a record is changed by the replication layer (tombstoned).
	OnChange(fn func(id string))
}
