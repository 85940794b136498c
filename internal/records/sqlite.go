package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/keepsake/internal/dbx"
	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

type SQLiteRepository struct {
	db *sql.DB

	mu        sync.Mutex
	observers []func(id string)
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const memoryColumns = `id, owner_id, kind, title, created_at,
	local_path, thumbnail_path, media_status, thumbnail_status,
	remote_asset_id, remote_thumbnail_id, shared_asset_id, shared_thumbnail_id,
	byte_size, upload_progress, last_sync_attempt, sync_error, tombstoned`

func scanMemory(row interface{ Scan(...any) error }) (*models.Memory, error) {
	m := &models.Memory{}
	var createdAt int64
	var lastAttempt sql.NullInt64

	err := row.Scan(&m.ID, &m.OwnerID, &m.Kind, &m.Title, &createdAt,
		&m.LocalPath, &m.ThumbnailPath, &m.MediaStatus, &m.ThumbnailStatus,
		&m.RemoteAssetID, &m.RemoteThumbnailID, &m.SharedAssetID, &m.SharedThumbnailID,
		&m.ByteSize, &m.UploadProgress, &lastAttempt, &m.SyncError, &m.Tombstoned)
	if err != nil {
		return nil, err
	}

	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastAttempt.Valid {
		t := time.Unix(lastAttempt.Int64, 0).UTC()
		m.LastSyncAttempt = &t
	}
	return m, nil
}

func lastAttemptArg(m *models.Memory) any {
	if m.LastSyncAttempt == nil {
		return nil
	}
	return m.LastSyncAttempt.Unix()
}

func (r *SQLiteRepository) Insert(ctx context.Context, m *models.Memory) error {
	query := `INSERT INTO memories (` + memoryColumns + `)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.OwnerID, m.Kind, m.Title, m.CreatedAt.Unix(),
		m.LocalPath, m.ThumbnailPath, m.MediaStatus, m.ThumbnailStatus,
		m.RemoteAssetID, m.RemoteThumbnailID, m.SharedAssetID, m.SharedThumbnailID,
		m.ByteSize, m.UploadProgress, lastAttemptArg(m), m.SyncError, m.Tombstoned)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Memory, error) {
	query := `select ` + memoryColumns + ` from memories where id=? and tombstoned=0`
	row := r.db.QueryRowContext(ctx, query, id)

	m, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("memory %s: %w", id, syncerr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select memory: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, m *models.Memory) error {
	query := `update memories set
		local_path=?, thumbnail_path=?, media_status=?, thumbnail_status=?,
		remote_asset_id=?, remote_thumbnail_id=?, shared_asset_id=?, shared_thumbnail_id=?,
		byte_size=?, upload_progress=?, last_sync_attempt=?, sync_error=?
		where id=? and tombstoned=0`

	result, err := r.db.ExecContext(ctx, query,
		m.LocalPath, m.ThumbnailPath, m.MediaStatus, m.ThumbnailStatus,
		m.RemoteAssetID, m.RemoteThumbnailID, m.SharedAssetID, m.SharedThumbnailID,
		m.ByteSize, m.UploadProgress, lastAttemptArg(m), m.SyncError, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("memory %s: %w", m.ID, syncerr.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) SetUploadProgress(ctx context.Context, id string, progress float64) error {
	query := `update memories set upload_progress=? where id=? and tombstoned=0`
	_, err := r.db.ExecContext(ctx, query, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `delete from memory_tags where memory_id=?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `delete from memories where id=?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkTombstoned(ctx context.Context, id string) error {
	query := `update memories set tombstoned=1 where id=?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to tombstone memory: %w", err)
	}
	r.notify(id)
	return nil
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, statuses ...models.SyncStatus) ([]*models.Memory, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := `select ` + memoryColumns + ` from memories
		where tombstoned=0 and media_status in (` + placeholders + `)`

	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, s)
	}

	return r.queryMemories(ctx, query, args...)
}

func (r *SQLiteRepository) ListMediaByOwner(ctx context.Context, ownerID string) ([]*models.Memory, error) {
	query := `select ` + memoryColumns + ` from memories
		where tombstoned=0 and owner_id=? and kind != ?`
	return r.queryMemories(ctx, query, ownerID, models.KindText)
}

func (r *SQLiteRepository) queryMemories(ctx context.Context, query string, args ...any) ([]*models.Memory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select memories: %w", err)
	}
	defer rows.Close()

	var result []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context, status models.SyncStatus) (int, error) {
	var n int
	query := `select count(*) from memories where tombstoned=0 and media_status=?`
	if err := r.db.QueryRowContext(ctx, query, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) InsertTag(ctx context.Context, tag *models.Tag) error {
	query := `INSERT INTO tags (id, name) values (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`
	if _, err := r.db.ExecContext(ctx, query, tag.ID, tag.Name); err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AssignTag(ctx context.Context, memoryID, tagID string) error {
	query := `INSERT INTO memory_tags (memory_id, tag_id, scope) values (?, ?, ?)
		ON CONFLICT(memory_id, tag_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, memoryID, tagID, models.ScopePrivate); err != nil {
		return fmt.Errorf("failed to assign tag: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Assignments(ctx context.Context, memoryIDs []string) ([]models.TagAssignment, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memoryIDs)), ",")
	query := `select memory_id, tag_id, scope from memory_tags where memory_id in (` + placeholders + `)`

	args := make([]any, 0, len(memoryIDs))
	for _, id := range memoryIDs {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select assignments: %w", err)
	}
	defer rows.Close()

	var result []models.TagAssignment
	for rows.Next() {
		var a models.TagAssignment
		if err := rows.Scan(&a.MemoryID, &a.TagID, &a.Scope); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DetachTags(ctx context.Context, memoryIDs []string) ([]models.TagAssignment, error) {
	detached, err := r.Assignments(ctx, memoryIDs)
	if err != nil {
		return nil, err
	}
	if len(detached) == 0 {
		return nil, nil
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, a := range detached {
			if _, err := tx.ExecContext(ctx, `delete from memory_tags where memory_id=? and tag_id=?`, a.MemoryID, a.TagID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detach tags: %w", err)
	}
	return detached, nil
}

func (r *SQLiteRepository) ReattachTags(ctx context.Context, assignments []models.TagAssignment, scope models.PartitionScope) error {
	if len(assignments) == 0 {
		return nil
	}

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, a := range assignments {
			query := `INSERT INTO memory_tags (memory_id, tag_id, scope) values (?, ?, ?)
				ON CONFLICT(memory_id, tag_id) DO UPDATE SET scope = excluded.scope`
			if _, err := tx.ExecContext(ctx, query, a.MemoryID, a.TagID, scope); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reattach tags: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) OnChange(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *SQLiteRepository) notify(id string) {
	r.mu.Lock()
	observers := append([]func(id string){}, r.observers...)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(id)
	}
}
