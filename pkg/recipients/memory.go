package recipients

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// MemoryStore keeps manifests in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	manifests map[string]*models.RecipientManifest
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{manifests: make(map[string]*models.RecipientManifest)}
}

func (s *MemoryStore) Put(_ context.Context, manifest *models.RecipientManifest) error {
	if err := Validate(manifest); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[manifest.IntentID] = clone(manifest)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, intentID string) (*models.RecipientManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[intentID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m), nil
}

func (s *MemoryStore) Delete(_ context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.manifests[intentID]; !ok {
		return ErrNotFound
	}
	delete(s.manifests, intentID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.manifests))
	for id := range s.manifests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func clone(m *models.RecipientManifest) *models.RecipientManifest {
	out := *m
	out.Recipients = append(out.Recipients[:0:0], m.Recipients...)
	out.Amounts = make([]*big.Int, len(m.Amounts))
	for i, a := range m.Amounts {
		out.Amounts[i] = new(big.Int).Set(a)
	}
	if m.TotalAmount != nil {
		out.TotalAmount = new(big.Int).Set(m.TotalAmount)
	}
	return &out
}
