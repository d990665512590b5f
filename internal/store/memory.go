package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Repository
type MemoryStore struct {
	mu         sync.RWMutex
	configs    map[string]*MixingConfiguration
	defaults   map[string][]DefaultEntry
	references map[string]*ReferenceTrack
	vectors    []*FeatureVector
	quality    []*QualityRecord
	feedback   []*MixingFeedback
	now        func() time.Time
}

// NewMemoryStore creates an empty in-memory repository
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:    make(map[string]*MixingConfiguration),
		defaults:   make(map[string][]DefaultEntry),
		references: make(map[string]*ReferenceTrack),
		now:        time.Now,
	}
}

func (s *MemoryStore) CreateConfig(ctx context.Context, cfg *MixingConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = s.now()
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cfg.Clone()
	stored.IsDefault = false
	s.configs[cfg.ID] = stored
	return nil
}

func (s *MemoryStore) GetConfig(ctx context.Context, id string) (*MixingConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, notFound("configuration", id)
	}
	return s.withDefault(cfg), nil
}

func (s *MemoryStore) ListByGenre(ctx context.Context, genre string) ([]*MixingConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*MixingConfiguration
	for _, cfg := range s.configs {
		if cfg.Scope.Genre == genre {
			out = append(out, s.withDefault(cfg))
		}
	}
	slices.SortFunc(out, func(a, b *MixingConfiguration) int {
		return cmp.Compare(a.ID, b.ID)
	})
	sortConfigs(out)
	return out, nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return notFound("configuration", id)
	}
	cfg.UsageCount++
	return nil
}

func (s *MemoryStore) SetDefault(ctx context.Context, genre, configID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[configID]
	if !ok {
		return notFound("configuration", configID)
	}
	if cfg.Scope.Genre != genre {
		return notFound("configuration for genre "+genre, configID)
	}
	s.defaults[genre] = append(s.defaults[genre], DefaultEntry{
		Genre:     genre,
		ConfigID:  configID,
		Reason:    reason,
		CreatedAt: s.now(),
	})
	return nil
}

func (s *MemoryStore) DefaultHistory(ctx context.Context, genre string) ([]DefaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.defaults[genre]), nil
}

// withDefault returns a copy with IsDefault computed; callers hold s.mu
func (s *MemoryStore) withDefault(cfg *MixingConfiguration) *MixingConfiguration {
	out := cfg.Clone()
	history := s.defaults[cfg.Scope.Genre]
	out.IsDefault = len(history) > 0 && history[len(history)-1].ConfigID == cfg.ID
	return out
}

func (s *MemoryStore) CreateReference(ctx context.Context, ref *ReferenceTrack) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ref
	s.references[ref.ID] = &copied
	return nil
}

func (s *MemoryStore) GetReference(ctx context.Context, id string) (*ReferenceTrack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.references[id]
	if !ok {
		return nil, notFound("reference track", id)
	}
	copied := *ref
	return &copied, nil
}

func (s *MemoryStore) ListReferences(ctx context.Context, genre string) ([]*ReferenceTrack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ReferenceTrack
	for _, ref := range s.references {
		if genre == "" || ref.Genre == genre {
			copied := *ref
			out = append(out, &copied)
		}
	}
	slices.SortFunc(out, func(a, b *ReferenceTrack) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) SaveVector(ctx context.Context, v *FeatureVector) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *v
	copied.Values = slices.Clone(v.Values)
	s.vectors = append(s.vectors, &copied)
	return nil
}

func (s *MemoryStore) ListVectors(ctx context.Context) ([]*FeatureVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FeatureVector, len(s.vectors))
	for i, v := range s.vectors {
		copied := *v
		copied.Values = slices.Clone(v.Values)
		out[i] = &copied
	}
	return out, nil
}

func (s *MemoryStore) SaveQuality(ctx context.Context, rec *QualityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.quality = append(s.quality, &copied)
	return nil
}

func (s *MemoryStore) ListQuality(ctx context.Context, configID string) ([]*QualityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*QualityRecord
	for _, rec := range s.quality {
		if configID == "" || rec.ConfigID == configID {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendFeedback(ctx context.Context, fb *MixingFeedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *fb
	s.feedback = append(s.feedback, &copied)
	return nil
}

func (s *MemoryStore) ListFeedback(ctx context.Context, genre string) ([]*MixingFeedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*MixingFeedback
	for _, fb := range s.feedback {
		if genre == "" || fb.Genre == genre {
			copied := *fb
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
