package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

// MemStore is an in-memory AssetStore used by tests and by the daemon
// when no backend is configured. Failures are injected through the
// hook functions.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]memObject

	// CreateHook, when set, runs before each Create; returning an
	// error fails the call without storing anything.
	CreateHook func(meta AssetMetadata) error
	// FetchHook, when set, runs before each Fetch.
	FetchHook func(assetID string) error
	// PingErr, when set, makes Ping fail (store "offline").
	PingErr error

	createCalls int
	fetchCalls  int
}

type memObject struct {
	data      []byte
	meta      AssetMetadata
	partition models.Partition
}

func NewMemStore() *MemStore {
	return &MemStore{objects: map[string]memObject{}}
}

func (s *MemStore) Create(ctx context.Context, p models.Partition, payload []byte, meta AssetMetadata, onProgress ProgressFunc) (string, error) {
	s.mu.Lock()
	s.createCalls++
	hook := s.CreateHook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(meta); err != nil {
			return "", err
		}
	}

	total := int64(len(payload))
	if onProgress != nil {
		// report in quarters, mimicking chunked transfer
		for i := int64(1); i <= 4; i++ {
			onProgress(total*i/4, total)
		}
	}

	id := fmt.Sprintf("%s/%v", PartitionPrefix(p), uuid.New())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = memObject{data: append([]byte(nil), payload...), meta: meta, partition: p}

	return id, nil
}

func (s *MemStore) Fetch(ctx context.Context, p models.Partition, assetID string) ([]byte, error) {
	s.mu.Lock()
	s.fetchCalls++
	hook := s.FetchHook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(assetID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, syncerr.ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemStore) Delete(ctx context.Context, p models.Partition, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, assetID)
	return nil
}

func (s *MemStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

// SetOffline toggles the Ping failure used to simulate connectivity.
func (s *MemStore) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offline {
		s.PingErr = syncerr.ErrUnavailable
	} else {
		s.PingErr = nil
	}
}

// ObjectCount returns how many objects are currently stored.
func (s *MemStore) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// CountInPartition returns how many objects live in partition p.
func (s *MemStore) CountInPartition(p models.Partition) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, obj := range s.objects {
		if obj.partition == p {
			n++
		}
	}
	return n
}

// Meta returns the stored metadata for an asset id.
func (s *MemStore) Meta(assetID string) (AssetMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[assetID]
	return obj.meta, ok
}

// CreateCalls returns the number of Create invocations, including
// failed ones.
func (s *MemStore) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// FetchCalls returns the number of Fetch invocations.
func (s *MemStore) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}
