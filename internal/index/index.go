package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
)

// Filter restricts a search. Empty fields match everything.
type Filter struct {
	FeatureType analysis.FeatureType `json:"feature_type"`
	Genre       string               `json:"genre,omitempty"`
	TrackKind   string               `json:"track_kind,omitempty"`
}

// Match is one ranked search result
type Match struct {
	TrackID     string               `json:"track_id"`
	TrackKind   string               `json:"track_kind"`
	Genre       string               `json:"genre"`
	FeatureType analysis.FeatureType `json:"feature_type"`
	Similarity  float64              `json:"similarity"` // cosine, -1.0-1.0
}

type entry struct {
	trackID   string
	trackKind string
	genre     string
	values    []float64
	norm      float64
}

// MemoryIndex is an exact cosine-similarity index. Searches run concurrently;
// results are ordered by similarity and then track ID, so a fixed index state
// always returns the same ranking.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[analysis.FeatureType]map[string]*entry
	vectors store.VectorStore
	logger  logging.Logger
}

// NewMemoryIndex creates an index. vectors may be nil for a purely in-memory index.
func NewMemoryIndex(vectors store.VectorStore, logger logging.Logger) *MemoryIndex {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &MemoryIndex{
		entries: make(map[analysis.FeatureType]map[string]*entry),
		vectors: vectors,
		logger:  logger.WithFields(logging.Fields{"component": "feature_index"}),
	}
}

// Warm loads every persisted vector into memory
func (x *MemoryIndex) Warm(ctx context.Context) error {
	if x.vectors == nil {
		return nil
	}
	list, err := x.vectors.ListVectors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feature vectors: %w", err)
	}

	loaded := 0
	for _, v := range list {
		if err := x.insert(v); err != nil {
			x.logger.Warn("Skipping invalid stored vector", logging.Fields{
				"track_id": v.TrackID,
				"error":    err.Error(),
			})
			continue
		}
		loaded++
	}

	x.logger.Debug("Warmed feature index", logging.Fields{
		"vectors": loaded,
		"skipped": len(list) - loaded,
	})
	return nil
}

// Index adds or replaces the vector of a track and persists it
func (x *MemoryIndex) Index(ctx context.Context, v *store.FeatureVector) error {
	if err := x.insert(v); err != nil {
		return err
	}
	if x.vectors != nil {
		if err := x.vectors.SaveVector(ctx, v); err != nil {
			return fmt.Errorf("failed to persist feature vector: %w", err)
		}
	}
	return nil
}

func (x *MemoryIndex) insert(v *store.FeatureVector) error {
	if err := validateVector(v.FeatureType, v.Values); err != nil {
		return err
	}
	if v.TrackID == "" {
		return audio.NewInputError(audio.ErrCodeInvalidParameter, "feature vector has no track", audio.ErrInvalidParameter)
	}

	e := &entry{
		trackID:   v.TrackID,
		trackKind: v.TrackKind,
		genre:     v.Genre,
		values:    slices.Clone(v.Values),
		norm:      floats.Norm(v.Values, 2),
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	byTrack, ok := x.entries[v.FeatureType]
	if !ok {
		byTrack = make(map[string]*entry)
		x.entries[v.FeatureType] = byTrack
	}
	byTrack[v.TrackID] = e
	return nil
}

// Search returns up to topK matches for query among vectors of filter.FeatureType
func (x *MemoryIndex) Search(query []float64, topK int, filter Filter) ([]Match, error) {
	if filter.FeatureType == "" {
		filter.FeatureType = analysis.FeatureFull
	}
	if err := validateVector(filter.FeatureType, query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := floats.Norm(query, 2)

	x.mu.RLock()
	matches := make([]Match, 0, len(x.entries[filter.FeatureType]))
	for _, e := range x.entries[filter.FeatureType] {
		if filter.Genre != "" && e.genre != filter.Genre {
			continue
		}
		if filter.TrackKind != "" && e.trackKind != filter.TrackKind {
			continue
		}
		matches = append(matches, Match{
			TrackID:     e.trackID,
			TrackKind:   e.trackKind,
			Genre:       e.genre,
			FeatureType: filter.FeatureType,
			Similarity:  cosine(query, queryNorm, e.values, e.norm),
		})
	}
	x.mu.RUnlock()

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.TrackID, b.TrackID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of indexed vectors of a feature type
func (x *MemoryIndex) Len(featureType analysis.FeatureType) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries[featureType])
}

func cosine(a []float64, normA float64, b []float64, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}

func validateVector(featureType analysis.FeatureType, values []float64) error {
	size := analysis.VectorSize(featureType)
	if size == 0 {
		return audio.NewInputError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("unknown feature type %q", featureType), audio.ErrInvalidParameter)
	}
	if len(values) != size {
		return audio.NewInputError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("%s vector has %d values, expected %d", featureType, len(values), size), audio.ErrInvalidParameter)
	}
	if floats.HasNaN(values) {
		return audio.NewInputError(audio.ErrCodeNonFinite, "feature vector contains NaN", audio.ErrNonFiniteSample)
	}
	return nil
}
