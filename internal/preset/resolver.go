package preset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/google/uuid"

	"github.com/RyanBlaney/mixdown/internal/index"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/stereo"
)

// Source records which lookup tier produced a configuration
type Source string

const (
	SourceReference Source = "reference"
	SourceStore     Source = "store"
	SourceBuiltin   Source = "builtin"
)

// maxBlend is the furthest a perfectly matching reference moves the base configuration
const maxBlend = 0.5

// Searcher finds similar feature vectors
type Searcher interface {
	Search(query []float64, topK int, filter index.Filter) ([]index.Match, error)
}

// Request selects a configuration
type Request struct {
	Genre            string `json:"genre"`
	ReferenceTrackID string `json:"reference_track_id,omitempty"`
	// AllowFallback resolves unknown genres to the generic profile
	AllowFallback bool `json:"allow_fallback"`
}

// Resolution is a resolved configuration and where it came from
type Resolution struct {
	Configuration *store.MixingConfiguration `json:"configuration"`
	Source        Source                     `json:"source"`
	Genre         string                     `json:"genre"`
	ReferenceID   string                     `json:"reference_id,omitempty"`
	Similarity    float64                    `json:"similarity,omitempty"`
}

// Dependencies are the optional collaborators of a Resolver. Nil stores skip
// the tiers that need them.
type Dependencies struct {
	Table      Table
	Configs    store.ConfigStore
	References store.ReferenceStore
	Index      Searcher
	Locks      *store.ScopeLocks
}

// Resolver maps a genre and optional reference track to a configuration
type Resolver struct {
	table      Table
	configs    store.ConfigStore
	references store.ReferenceStore
	index      Searcher
	locks      *store.ScopeLocks
	logger     logging.Logger
}

// NewResolver creates a resolver; a nil table uses Builtins
func NewResolver(deps Dependencies, logger logging.Logger) *Resolver {
	if deps.Table == nil {
		deps.Table = Builtins()
	}
	if deps.Locks == nil {
		deps.Locks = store.NewScopeLocks()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Resolver{
		table:      deps.Table,
		configs:    deps.Configs,
		references: deps.References,
		index:      deps.Index,
		locks:      deps.Locks,
		logger:     logger.WithFields(logging.Fields{"component": "preset_resolver"}),
	}
}

// Resolve looks up a configuration: a reference-derived blend when a
// reference track is given, else the best stored configuration for the
// genre, else the built-in table. Store failures are logged and fall
// through to the next tier.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	genre := Canonicalize(req.Genre)

	// Step 1: Validate the genre against the built-in table
	base, known := r.table[genre]
	if !known || genre == "" {
		if !req.AllowFallback {
			return nil, audio.NewConfigurationError(audio.ErrCodeUnknownGenre,
				fmt.Sprintf("unknown genre %q", req.Genre), audio.ErrUnknownGenre)
		}
		if genre == "" {
			genre = FallbackName
		}
		base = r.table[FallbackName].Clone()
		base.ID = BuiltinID(genre)
		base.Name = genre + " (default profile)"
		base.Scope = store.Scope{Genre: genre}
		r.logger.Debug("Using fallback profile for unknown genre", logging.Fields{"genre": genre})
	}
	base = base.Clone()

	// Step 2: Look up the best stored configuration
	var stored *store.MixingConfiguration
	storeAvailable := r.configs != nil
	if storeAvailable {
		list, err := r.configs.ListByGenre(ctx, genre)
		if err != nil {
			storeAvailable = false
			r.logger.Error(err, "Configuration store unavailable, using built-in defaults", logging.Fields{"genre": genre})
		} else if len(list) > 0 {
			stored = list[0]
		}
	}

	// Step 3: Derive from a reference track when one is given
	if req.ReferenceTrackID != "" {
		seed := base
		if stored != nil {
			seed = stored
		}
		res, err := r.fromReference(ctx, genre, seed, req.ReferenceTrackID, storeAvailable)
		if err == nil {
			return res, nil
		}
		r.logger.Warn("Reference resolution failed, falling back", logging.Fields{
			"genre":        genre,
			"reference_id": req.ReferenceTrackID,
			"error":        err.Error(),
		})
	}

	if stored != nil {
		return &Resolution{Configuration: stored, Source: SourceStore, Genre: genre}, nil
	}

	// Step 4: Fall back to the built-in configuration
	if storeAvailable {
		base = r.seed(ctx, genre, base)
	}
	return &Resolution{Configuration: base, Source: SourceBuiltin, Genre: genre}, nil
}

// fromReference blends seed toward the nearest same-genre reference of the
// requested track. The blend weight grows with similarity up to maxBlend.
func (r *Resolver) fromReference(ctx context.Context, genre string, seed *store.MixingConfiguration, referenceID string, persist bool) (*Resolution, error) {
	if r.references == nil || r.index == nil {
		return nil, errors.New("reference matching is not configured")
	}

	ref, err := r.references.GetReference(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference track: %w", err)
	}
	if ref.Profile == nil {
		return nil, audio.NewConfigurationError(audio.ErrCodeMissingConfig, "reference track has no profile", audio.ErrNotFound)
	}

	query, err := analysis.Vector(ref.Profile, analysis.FeatureFull)
	if err != nil {
		return nil, fmt.Errorf("failed to build reference query: %w", err)
	}
	matches, err := r.index.Search(query, 1, index.Filter{
		FeatureType: analysis.FeatureFull,
		Genre:       genre,
		TrackKind:   store.TrackReference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search reference tracks: %w", err)
	}
	if len(matches) == 0 {
		return nil, audio.NewConfigurationError(audio.ErrCodeNotFound,
			fmt.Sprintf("no %s reference tracks indexed", genre), audio.ErrNotFound)
	}

	match := matches[0]
	matched := ref
	if match.TrackID != ref.ID {
		if matched, err = r.references.GetReference(ctx, match.TrackID); err != nil {
			return nil, fmt.Errorf("failed to load matched reference: %w", err)
		}
	}

	weight := maxBlend * math.Max(0, math.Min(1, match.Similarity))
	derived := Blend(seed, matched.Recommendations, weight)
	derived.Name = fmt.Sprintf("%s from reference %s", genre, matched.Name)

	if persist {
		if err := r.configs.CreateConfig(ctx, derived); err != nil {
			r.logger.Error(err, "Failed to persist reference-derived configuration", logging.Fields{"genre": genre})
		}
	}

	r.logger.Debug("Derived configuration from reference", logging.Fields{
		"genre":        genre,
		"reference_id": referenceID,
		"matched_id":   matched.ID,
		"similarity":   match.Similarity,
		"weight":       weight,
	})

	return &Resolution{
		Configuration: derived,
		Source:        SourceReference,
		Genre:         genre,
		ReferenceID:   matched.ID,
		Similarity:    match.Similarity,
	}, nil
}

// Blend returns a new configuration moved from base toward rec by weight
func Blend(base *store.MixingConfiguration, rec store.Recommendations, weight float64) *store.MixingConfiguration {
	out := base.Clone()
	out.ID = uuid.NewString()
	out.Origin = store.OriginReference
	out.ParentID = base.ID
	out.Version = 1
	out.UsageCount = 0
	out.IsDefault = false
	out.CreatedAt = time.Time{}

	out.TargetCurve = base.TargetCurve.Blend(rec.TargetCurve, weight)
	if rec.Width > 0 {
		out.Stereo.Width = stereo.ClampWidth(lerp(base.Stereo.Width, rec.Width, weight))
	}
	if rec.Compression.Ratio >= 1 {
		out.Compression = store.Compression{
			ThresholdDB: lerp(base.Compression.ThresholdDB, rec.Compression.ThresholdDB, weight),
			Ratio:       lerp(base.Compression.Ratio, rec.Compression.Ratio, weight),
			AttackMs:    lerp(base.Compression.AttackMs, rec.Compression.AttackMs, weight),
			ReleaseMs:   lerp(base.Compression.ReleaseMs, rec.Compression.ReleaseMs, weight),
		}
	}
	return out
}

// seed stores the built-in configuration as the genre's first default so
// feedback can be attributed to it. Concurrent resolvers seed once.
func (r *Resolver) seed(ctx context.Context, genre string, base *store.MixingConfiguration) *store.MixingConfiguration {
	unlock := r.locks.Lock(store.Scope{Genre: genre}.Key())
	defer unlock()

	existing, err := r.configs.GetConfig(ctx, base.ID)
	if err == nil {
		return existing
	}
	if !errors.Is(err, audio.ErrNotFound) {
		r.logger.Error(err, "Failed to check built-in configuration", logging.Fields{"genre": genre})
		return base
	}

	if err := r.configs.CreateConfig(ctx, base); err != nil {
		r.logger.Error(err, "Failed to store built-in configuration", logging.Fields{"genre": genre})
		return base
	}
	if err := r.configs.SetDefault(ctx, genre, base.ID, "builtin seed"); err != nil {
		r.logger.Error(err, "Failed to mark built-in configuration as default", logging.Fields{"genre": genre})
		return base
	}
	base.IsDefault = true
	return base
}
