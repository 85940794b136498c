// Package sharing pushes an owner's media assets into a shared zone so
// other participants can resolve them.
//
// Tags are globally shared auxiliary records that other, non-shared
// memories also reference; sending a tag relationship into the shared
// zone would assign the tag to two partitions at once, which the
// record-replication layer rejects. The share therefore runs as a
// three-phase protocol: detach all tag relationships from the affected
// memories, push the assets, then reattach the relationships to the
// private partition only. A failed share rolls the detachment back so
// local state matches the pre-share state.
package sharing

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/keepsake/internal/blobstore"
	"github.com/dmitrijs2005/keepsake/internal/logging"
	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/records"
	"github.com/dmitrijs2005/keepsake/internal/remote"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

const defaultParallelism = 3

type Coordinator struct {
	repo  records.Repository
	blobs *blobstore.Store
	store remote.AssetStore
	log   logging.Logger
}

func New(repo records.Repository, blobs *blobstore.Store, store remote.AssetStore, log logging.Logger) *Coordinator {
	return &Coordinator{repo: repo, blobs: blobs, store: store, log: log}
}

// ShareOwner uploads every media asset belonging to ownerID into the
// shared zone. Safe to call repeatedly: memories already pushed to the
// zone are skipped via their shared-partition asset id.
func (c *Coordinator) ShareOwner(ctx context.Context, ownerID, zone string) error {
	memories, err := c.repo.ListMediaByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list memories for owner %s: %w", ownerID, err)
	}
	if len(memories) == 0 {
		return nil
	}

	ids := make([]string, 0, len(memories))
	for _, m := range memories {
		ids = append(ids, m.ID)
	}

	// Phase 1: detach.
	detached, err := c.repo.DetachTags(ctx, ids)
	if err != nil {
		return fmt.Errorf("detach tags: %w", err)
	}

	// Phase 2: share.
	if err := c.pushAssets(ctx, memories, zone); err != nil {
		// Roll back immediately so local state matches pre-share state.
		if rbErr := c.repo.ReattachTags(ctx, detached, models.ScopePrivate); rbErr != nil {
			return errors.Join(fmt.Errorf("share into zone %s: %w", zone, err), fmt.Errorf("rollback: %w", rbErr))
		}
		return fmt.Errorf("share into zone %s: %w", zone, err)
	}

	// Phase 3: reattach to the private partition only, so the owner
	// keeps the relationships while nothing tag-related enters the
	// shared zone.
	if err := c.repo.ReattachTags(ctx, detached, models.ScopePrivate); err != nil {
		return fmt.Errorf("reattach tags: %w", err)
	}

	c.log.Info(ctx, "owner shared", "owner_id", ownerID, "zone", zone, "memories", len(memories))
	return nil
}

func (c *Coordinator) pushAssets(ctx context.Context, memories []*models.Memory, zone string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultParallelism)

	for _, m := range memories {
		g.Go(func() error {
			return c.pushOne(ctx, m, zone)
		})
	}
	return g.Wait()
}

// pushOne uploads one memory's asset (and thumbnail, best-effort) into
// the shared partition.
func (c *Coordinator) pushOne(ctx context.Context, m *models.Memory, zone string) error {
	if m.SharedAssetID != "" {
		return nil // already shared
	}
	if !m.HasLocalBlob() && m.RemoteAssetID == "" {
		return nil // nothing to push yet
	}

	data, err := c.loadAsset(ctx, m)
	if err != nil {
		return fmt.Errorf("memory %s: %w", m.ID, err)
	}

	partition := models.SharedPartition(zone)
	meta := remote.AssetMetadata{
		OwnerRecordID:    m.ID,
		Kind:             m.Kind,
		ByteSize:         int64(len(data)),
		Checksum:         remote.Checksum(data),
		OriginalFilename: m.LocalPath,
	}

	assetID, err := c.store.Create(ctx, partition, data, meta, nil)
	if err != nil {
		return fmt.Errorf("memory %s: create shared asset: %w", m.ID, err)
	}
	m.SharedAssetID = assetID

	if m.ThumbnailPath != "" && m.SharedThumbnailID == "" {
		if thumb, err := c.blobs.Load(m.ThumbnailPath, models.KindPhoto); err == nil {
			thumbMeta := remote.AssetMetadata{
				OwnerRecordID:    m.ID,
				Kind:             models.KindPhoto,
				ByteSize:         int64(len(thumb)),
				Checksum:         remote.Checksum(thumb),
				OriginalFilename: m.ThumbnailPath,
			}
			if thumbID, err := c.store.Create(ctx, partition, thumb, thumbMeta, nil); err == nil {
				m.SharedThumbnailID = thumbID
			} else {
				c.log.Warn(ctx, "shared thumbnail upload failed", "memory_id", m.ID, "error", err)
			}
		}
	}

	if err := c.repo.Update(ctx, m); err != nil {
		return fmt.Errorf("memory %s: persist shared ids: %w", m.ID, err)
	}
	return nil
}

// loadAsset prefers the local blob and falls back to fetching the
// owner's private remote copy.
func (c *Coordinator) loadAsset(ctx context.Context, m *models.Memory) ([]byte, error) {
	if m.HasLocalBlob() {
		data, err := c.blobs.Load(m.LocalPath, m.Kind)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, syncerr.ErrNotFound) {
			return nil, err
		}
	}
	if m.RemoteAssetID == "" {
		return nil, fmt.Errorf("no source for asset: %w", syncerr.ErrNotFound)
	}
	return c.store.Fetch(ctx, models.PrivatePartition(), m.RemoteAssetID)
}
