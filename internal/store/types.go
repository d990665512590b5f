package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/RyanBlaney/mixdown/internal/quality"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/dynamics"
	"github.com/RyanBlaney/mixdown/pkg/audio/eq"
	"github.com/RyanBlaney/mixdown/pkg/audio/stereo"
)

// Scope identifies who a configuration belongs to. Genre is always set;
// UserID and SongID narrow it further.
type Scope struct {
	Genre  string `json:"genre" yaml:"genre"`
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	SongID string `json:"song_id,omitempty" yaml:"song_id,omitempty"`
}

// Key returns the lock and cache key of the scope
func (s Scope) Key() string {
	return s.Genre + "|" + s.UserID + "|" + s.SongID
}

// Origin records how a configuration was created
type Origin string

const (
	OriginBuiltin   Origin = "builtin"
	OriginPreset    Origin = "preset"
	OriginReference Origin = "reference"
	OriginFeedback  Origin = "feedback"
)

// Compression holds the sidechain compressor timing and ratio
type Compression struct {
	ThresholdDB float64 `json:"threshold_db" yaml:"threshold_db"`
	Ratio       float64 `json:"ratio" yaml:"ratio"`
	AttackMs    float64 `json:"attack_ms" yaml:"attack_ms"`
	ReleaseMs   float64 `json:"release_ms" yaml:"release_ms"`
}

// Sidechain holds the ducking behaviour around the compressor
type Sidechain struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	KneeDB         float64 `json:"knee_db" yaml:"knee_db"`
	MaxReductionDB float64 `json:"max_reduction_db" yaml:"max_reduction_db"`
}

// MixingConfiguration is an immutable set of mixing parameters. Optimizations
// create new records that point back through ParentID.
type MixingConfiguration struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Scope        Scope           `json:"scope" yaml:"scope"`
	TargetCurve  eq.Curve        `json:"target_curve" yaml:"target_curve"`
	EQBands      []eq.Band       `json:"eq_bands,omitempty" yaml:"eq_bands,omitempty"`
	VocalEQBands []eq.Band       `json:"vocal_eq_bands,omitempty" yaml:"vocal_eq_bands,omitempty"`
	Compression  Compression     `json:"compression" yaml:"compression"`
	Sidechain    Sidechain       `json:"sidechain" yaml:"sidechain"`
	Stereo       stereo.Settings `json:"stereo" yaml:"stereo"`
	Origin       Origin          `json:"origin" yaml:"origin"`
	ParentID     string          `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Version      int             `json:"version" yaml:"version"`
	UsageCount   int64           `json:"usage_count" yaml:"usage_count"`
	// IsDefault is computed from the genre default history on read
	IsDefault bool      `json:"is_default" yaml:"is_default"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// DuckParams converts the compression and sidechain settings to compressor parameters
func (c *MixingConfiguration) DuckParams() dynamics.Params {
	return dynamics.Params{
		ThresholdDB:    c.Compression.ThresholdDB,
		Ratio:          c.Compression.Ratio,
		AttackMs:       c.Compression.AttackMs,
		ReleaseMs:      c.Compression.ReleaseMs,
		KneeDB:         c.Sidechain.KneeDB,
		MaxReductionDB: c.Sidechain.MaxReductionDB,
	}
}

// Validate checks every parameter group of the configuration
func (c *MixingConfiguration) Validate() error {
	if c.Scope.Genre == "" {
		return audio.NewConfigurationError(audio.ErrCodeMissingConfig, "configuration has no genre", audio.ErrInvalidParameter)
	}
	if err := c.DuckParams().Validate(); err != nil {
		return fmt.Errorf("invalid compression settings: %w", err)
	}
	if c.Stereo.Width < stereo.MinWidth || c.Stereo.Width > stereo.MaxWidth {
		return audio.NewConfigurationError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("stereo width %.2f outside [%.1f, %.1f]", c.Stereo.Width, stereo.MinWidth, stereo.MaxWidth),
			audio.ErrWidthOutOfRange)
	}
	if err := c.Stereo.Reverb.Validate(); err != nil {
		return fmt.Errorf("invalid reverb settings: %w", err)
	}
	if c.Stereo.Delay.WetMix > 0 {
		if err := c.Stereo.Delay.Validate(); err != nil {
			return fmt.Errorf("invalid delay settings: %w", err)
		}
	}
	for _, v := range c.TargetCurve {
		if v < 0 {
			return audio.NewConfigurationError(audio.ErrCodeInvalidParameter, "target curve has a negative band", audio.ErrInvalidParameter)
		}
	}
	return nil
}

// Clone returns a deep copy
func (c *MixingConfiguration) Clone() *MixingConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	out.EQBands = slices.Clone(c.EQBands)
	out.VocalEQBands = slices.Clone(c.VocalEQBands)
	return &out
}

// Recommendations are the mixing hints derived from a reference track
type Recommendations struct {
	TargetCurve eq.Curve    `json:"target_curve" yaml:"target_curve"`
	Width       float64     `json:"width" yaml:"width"`
	Compression Compression `json:"compression" yaml:"compression"`
}

// ReferenceTrack is an analyzed, user-supplied reference. Read-only once created.
type ReferenceTrack struct {
	ID              string                     `json:"id" yaml:"id"`
	Name            string                     `json:"name" yaml:"name"`
	Genre           string                     `json:"genre" yaml:"genre"`
	Profile         *analysis.FrequencyProfile `json:"profile" yaml:"profile"`
	StereoWidth     float64                    `json:"stereo_width" yaml:"stereo_width"`
	CrestFactorDB   float64                    `json:"crest_factor_db" yaml:"crest_factor_db"`
	Recommendations Recommendations            `json:"recommendations" yaml:"recommendations"`
	CreatedAt       time.Time                  `json:"created_at" yaml:"created_at"`
}

// Track kinds a feature vector can belong to
const (
	TrackReference = "reference"
	TrackMix       = "mix"
)

// FeatureVector is a fixed-dimension summary of one analyzed track
type FeatureVector struct {
	ID          string               `json:"id" yaml:"id"`
	TrackID     string               `json:"track_id" yaml:"track_id"`
	TrackKind   string               `json:"track_kind" yaml:"track_kind"`
	Genre       string               `json:"genre" yaml:"genre"`
	FeatureType analysis.FeatureType `json:"feature_type" yaml:"feature_type"`
	Values      []float64            `json:"values" yaml:"values"`
	CreatedAt   time.Time            `json:"created_at" yaml:"created_at"`
}

// QualityRecord ties the metrics of one mix to its configuration
type QualityRecord struct {
	MixID    string          `json:"mix_id" yaml:"mix_id"`
	ConfigID string          `json:"config_id" yaml:"config_id"`
	Genre    string          `json:"genre" yaml:"genre"`
	Metrics  quality.Metrics `json:"metrics" yaml:"metrics"`
}

// Ratings are user scores on a 1-5 scale
type Ratings struct {
	Overall      int `json:"overall" yaml:"overall"`
	Vocals       int `json:"vocals" yaml:"vocals"`
	Instrumental int `json:"instrumental" yaml:"instrumental"`
	Clarity      int `json:"clarity" yaml:"clarity"`
	Balance      int `json:"balance" yaml:"balance"`
}

// Validate checks that every rating is on the 1-5 scale
func (r Ratings) Validate() error {
	for name, v := range map[string]int{
		"overall":      r.Overall,
		"vocals":       r.Vocals,
		"instrumental": r.Instrumental,
		"clarity":      r.Clarity,
		"balance":      r.Balance,
	} {
		if v < 1 || v > 5 {
			return audio.NewInputError(audio.ErrCodeInvalidParameter,
				fmt.Sprintf("%s rating %d outside 1-5", name, v), audio.ErrInvalidParameter)
		}
	}
	return nil
}

// Mean returns the average rating
func (r Ratings) Mean() float64 {
	return float64(r.Overall+r.Vocals+r.Instrumental+r.Clarity+r.Balance) / 5
}

// MixingFeedback is one append-only feedback entry
type MixingFeedback struct {
	ID        string           `json:"id" yaml:"id"`
	ConfigID  string           `json:"config_id" yaml:"config_id"`
	MixID     string           `json:"mix_id" yaml:"mix_id"`
	Genre     string           `json:"genre" yaml:"genre"`
	Ratings   Ratings          `json:"ratings" yaml:"ratings"`
	Objective *quality.Metrics `json:"objective,omitempty" yaml:"objective,omitempty"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
}

// DefaultEntry is one step of a genre's default history
type DefaultEntry struct {
	Genre     string    `json:"genre" yaml:"genre"`
	ConfigID  string    `json:"config_id" yaml:"config_id"`
	Reason    string    `json:"reason" yaml:"reason"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ConfigStore persists mixing configurations
type ConfigStore interface {
	CreateConfig(ctx context.Context, cfg *MixingConfiguration) error
	GetConfig(ctx context.Context, id string) (*MixingConfiguration, error)
	// ListByGenre orders the current default first, then by usage and recency
	ListByGenre(ctx context.Context, genre string) ([]*MixingConfiguration, error)
	IncrementUsage(ctx context.Context, id string) error
	// SetDefault appends to the genre default history
	SetDefault(ctx context.Context, genre, configID, reason string) error
	DefaultHistory(ctx context.Context, genre string) ([]DefaultEntry, error)
}

// ReferenceStore persists reference tracks
type ReferenceStore interface {
	CreateReference(ctx context.Context, ref *ReferenceTrack) error
	GetReference(ctx context.Context, id string) (*ReferenceTrack, error)
	ListReferences(ctx context.Context, genre string) ([]*ReferenceTrack, error)
}

// VectorStore persists feature vectors
type VectorStore interface {
	SaveVector(ctx context.Context, v *FeatureVector) error
	ListVectors(ctx context.Context) ([]*FeatureVector, error)
}

// QualityStore persists per-mix quality metrics
type QualityStore interface {
	SaveQuality(ctx context.Context, rec *QualityRecord) error
	ListQuality(ctx context.Context, configID string) ([]*QualityRecord, error)
}

// FeedbackStore is the append-only feedback log
type FeedbackStore interface {
	AppendFeedback(ctx context.Context, fb *MixingFeedback) error
	ListFeedback(ctx context.Context, genre string) ([]*MixingFeedback, error)
}

// Repository groups every store
type Repository interface {
	ConfigStore
	ReferenceStore
	VectorStore
	QualityStore
	FeedbackStore
	Close() error
}

func notFound(kind, id string) error {
	return audio.NewConfigurationError(audio.ErrCodeNotFound, fmt.Sprintf("%s %q not found", kind, id), audio.ErrNotFound)
}

// sortConfigs orders configurations default first, then usage desc, then newest
func sortConfigs(configs []*MixingConfiguration) {
	slices.SortStableFunc(configs, func(a, b *MixingConfiguration) int {
		switch {
		case a.IsDefault != b.IsDefault:
			if a.IsDefault {
				return -1
			}
			return 1
		case a.UsageCount != b.UsageCount:
			if a.UsageCount > b.UsageCount {
				return -1
			}
			return 1
		case !a.CreatedAt.Equal(b.CreatedAt):
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return 0
	})
}
