package mixing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/google/uuid"

	"github.com/RyanBlaney/mixdown/internal/preset"
	"github.com/RyanBlaney/mixdown/internal/quality"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/dynamics"
	"github.com/RyanBlaney/mixdown/pkg/audio/eq"
	"github.com/RyanBlaney/mixdown/pkg/audio/stereo"
)

// DefaultHeadroomDB is removed from both inputs before processing
const DefaultHeadroomDB = 3.0

// Config controls the fixed policies of the pipeline
type Config struct {
	HeadroomDB   float64               `mapstructure:"headroom_db" json:"headroom_db" yaml:"headroom_db"`
	ApplyVocalEQ bool                  `mapstructure:"apply_vocal_eq" json:"apply_vocal_eq" yaml:"apply_vocal_eq"`
	EnhanceVocal bool                  `mapstructure:"enhance_vocals" json:"enhance_vocals" yaml:"enhance_vocals"`
	Analysis     *analysis.Config      `mapstructure:"analysis" json:"analysis" yaml:"analysis"`
	EQ           *eq.Options           `mapstructure:"eq" json:"eq" yaml:"eq"`
	Master       dynamics.MasterParams `mapstructure:"master" json:"master" yaml:"master"`
}

// DefaultConfig returns the default pipeline policies
func DefaultConfig() *Config {
	return &Config{
		HeadroomDB:   DefaultHeadroomDB,
		ApplyVocalEQ: true,
		EnhanceVocal: true,
		Analysis:     analysis.DefaultConfig(),
		EQ:           eq.DefaultOptions(),
		Master:       dynamics.DefaultMasterParams(),
	}
}

// Resolver selects the configuration of a mix
type Resolver interface {
	Resolve(ctx context.Context, req preset.Request) (*preset.Resolution, error)
}

// Sink receives completed mixes after the caller has its result
type Sink interface {
	RecordMix(ctx context.Context, rec MixRecord) error
}

// Indexer stores the feature vectors of completed mixes
type Indexer interface {
	Index(ctx context.Context, v *store.FeatureVector) error
}

// MixRecord is what a Sink learns about a completed mix
type MixRecord struct {
	MixID         string                     `json:"mix_id"`
	Genre         string                     `json:"genre"`
	Configuration *store.MixingConfiguration `json:"configuration"`
	Source        preset.Source              `json:"source"`
	Quality       *quality.Metrics           `json:"quality"`
}

// Request is one vocal and one music buffer to mix
type Request struct {
	ID               string        `json:"id,omitempty"`
	Vocals           *audio.Buffer `json:"-"`
	Music            *audio.Buffer `json:"-"`
	Genre            string        `json:"genre"`
	ReferenceTrackID string        `json:"reference_track_id,omitempty"`
	AllowFallback    bool          `json:"allow_fallback"`
	// TargetDuration trims or pads both inputs; zero keeps the longer input
	TargetDuration time.Duration `json:"target_duration,omitempty"`
	// Metadata from the vocal and music collaborators, logged only
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MixResult is a mastered buffer with its quality scores
type MixResult struct {
	ID            string                     `json:"id"`
	Buffer        *audio.Buffer              `json:"-"`
	Quality       *quality.Metrics           `json:"quality"`
	Configuration *store.MixingConfiguration `json:"configuration"`
	ConfigSource  preset.Source              `json:"config_source"`
	SignalMode    analysis.SignalMode        `json:"signal_mode"`
	Enhancer      string                     `json:"enhancer,omitempty"`
	Corrections   []eq.Correction            `json:"corrections,omitempty"`
	Transitions   []Transition               `json:"transitions"`
	Warnings      []*audio.Warning           `json:"warnings,omitempty"`
	Duration      time.Duration              `json:"duration"`
}

// HasWarning reports whether the mix raised the given warning
func (r *MixResult) HasWarning(w *audio.Warning) bool {
	for _, got := range r.Warnings {
		if got.Code == w.Code {
			return true
		}
	}
	return false
}

// Dependencies are the collaborators of an Orchestrator
type Dependencies struct {
	Resolver  Resolver
	Estimator *quality.Estimator
	Enhancers []Enhancer
	Sink      Sink
	Indexer   Indexer
}

// Orchestrator runs the mixing state machine. It holds no per-mix state and
// is safe for concurrent use.
type Orchestrator struct {
	config    *Config
	resolver  Resolver
	analyzer  *analysis.Analyzer
	eq        *eq.DynamicEQ
	estimator *quality.Estimator
	chain     *Chain
	sink      Sink
	indexer   Indexer
	logger    logging.Logger
	pending   sync.WaitGroup
}

// NewOrchestrator creates a new mixing orchestrator
func NewOrchestrator(config *Config, deps Dependencies, logger logging.Logger) (*Orchestrator, error) {
	if deps.Resolver == nil {
		return nil, errors.New("mixing orchestrator requires a resolver")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	analyzer := analysis.NewAnalyzer(config.Analysis, logger)
	estimator := deps.Estimator
	if estimator == nil {
		estimator = quality.NewEstimator(analyzer, logger)
	}

	o := &Orchestrator{
		config:    config,
		resolver:  deps.Resolver,
		analyzer:  analyzer,
		eq:        eq.NewDynamicEQ(config.EQ, logger),
		estimator: estimator,
		chain:     NewChain(logger, deps.Enhancers...),
		sink:      deps.Sink,
		indexer:   deps.Indexer,
		logger:    logger.WithFields(logging.Fields{"component": "mixing_orchestrator"}),
	}

	o.logger.Debug("Mixing orchestrator created", logging.Fields{
		"enhancers":   o.chain.Names(),
		"headroom_db": config.HeadroomDB,
		"has_sink":    o.sink != nil,
		"has_indexer": o.indexer != nil,
	})
	return o, nil
}

// Mix runs one request through every stage. It returns either a verified
// mastered buffer with metrics or a *StageError; partial output is never
// returned.
func (o *Orchestrator) Mix(ctx context.Context, req *Request) (*MixResult, error) {
	m := newMachine()
	if req == nil {
		return nil, m.fail(audio.NewInputError(audio.ErrCodeEmptyBuffer, "mix request is nil", audio.ErrEmptyBuffer))
	}
	result := &MixResult{ID: req.ID}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	o.logger.Debug("Starting mix", logging.Fields{
		"mix_id":    result.ID,
		"genre":     req.Genre,
		"reference": req.ReferenceTrackID,
		"metadata":  req.Metadata,
	})

	fail := func(err error) (*MixResult, error) {
		stageErr := m.fail(err)
		o.logger.Error(err, "Mix failed", logging.Fields{
			"mix_id": result.ID,
			"state":  string(stageErr.(*StageError).State),
		})
		return nil, stageErr
	}
	warn := func(err error) {
		var w *audio.Warning
		if errors.As(err, &w) && !result.HasWarning(w) {
			result.Warnings = append(result.Warnings, w)
		}
	}

	// Step 1: Normalize both inputs to the highest rate, stereo, with headroom
	vocals, music, err := o.normalize(req)
	if err != nil {
		return fail(err)
	}
	if audio.Peak(vocals) < audio.SilenceEpsilon || audio.Peak(music) < audio.SilenceEpsilon {
		warn(audio.ErrSilentBuffer)
	}
	if o.config.EnhanceVocal {
		enhanced, name, err := o.chain.Enhance(ctx, vocals)
		if err != nil {
			return fail(err)
		}
		vocals, result.Enhancer = enhanced, name
	}
	if err := checkFinite(vocals, music); err != nil {
		return fail(err)
	}
	m.advance()

	// Step 2: Analyze the music and classify its signal quality
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	profile, err := o.analyzer.Analyze(music)
	if err != nil {
		return fail(fmt.Errorf("failed to analyze music: %w", err))
	}
	class := analysis.Classify(profile)
	result.SignalMode = class.Mode
	m.advance()

	// Step 3: Resolve the configuration and equalize
	resolution, err := o.resolver.Resolve(ctx, preset.Request{
		Genre:            req.Genre,
		ReferenceTrackID: req.ReferenceTrackID,
		AllowFallback:    req.AllowFallback,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to resolve configuration: %w", err))
	}
	cfg := resolution.Configuration
	result.Configuration = cfg
	result.ConfigSource = resolution.Source

	music, result.Corrections, err = o.eq.Apply(music, profile, cfg.TargetCurve, class.Mode)
	if err != nil {
		return fail(fmt.Errorf("failed to apply dynamic EQ: %w", err))
	}
	if music, err = eq.ApplyBands(music, cfg.EQBands); err != nil {
		return fail(fmt.Errorf("failed to apply genre EQ: %w", err))
	}
	if o.config.ApplyVocalEQ {
		if vocals, err = eq.ApplyBands(vocals, cfg.VocalEQBands); err != nil {
			return fail(fmt.Errorf("failed to apply vocal EQ: %w", err))
		}
	}
	if err := checkFinite(vocals, music); err != nil {
		return fail(err)
	}
	m.advance()

	// Step 4: Duck the music under the vocals
	if cfg.Sidechain.Enabled {
		if music, err = dynamics.Duck(music, vocals, cfg.DuckParams()); err != nil {
			return fail(fmt.Errorf("failed to apply sidechain: %w", err))
		}
		if err := checkFinite(music); err != nil {
			return fail(err)
		}
	}
	m.advance()

	// Step 5: Overlay vocals and image the combined buffer
	combined, err := audio.Sum(music, vocals)
	if err != nil {
		return fail(fmt.Errorf("failed to combine vocals and music: %w", err))
	}
	if combined, err = stereo.Apply(combined, cfg.Stereo); err != nil {
		return fail(fmt.Errorf("failed to apply stereo imaging: %w", err))
	}
	if err := checkFinite(combined); err != nil {
		return fail(err)
	}
	m.advance()

	// Step 6: Master loudness and limit peaks
	mastered, err := dynamics.Master(combined, o.config.Master)
	if err != nil {
		if !audio.IsWarning(err) {
			return fail(fmt.Errorf("failed to master mix: %w", err))
		}
		warn(err)
	}
	if err := checkFinite(mastered); err != nil {
		return fail(err)
	}
	if peak := audio.Peak(mastered); peak > audio.DBToLinear(o.config.Master.Limiter.CeilingDBFS)+1e-9 {
		return fail(audio.NewProcessingError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("mastered peak %.2f dBFS above ceiling", audio.LinearToDB(peak)), audio.ErrInvalidParameter))
	}
	m.advance()

	// Step 7: Score the mastered buffer
	metrics, err := o.estimator.Score(mastered, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to score mix: %w", err))
	}
	m.advance()

	// Step 8: Hand the completed mix to the sink and index without blocking the caller
	m.advance()
	result.Buffer = mastered
	result.Quality = metrics
	result.Transitions = m.transitions
	result.Duration = time.Since(m.start)

	if o.sink != nil || o.indexer != nil {
		o.handOff(ctx, MixRecord{
			MixID:         result.ID,
			Genre:         resolution.Genre,
			Configuration: cfg,
			Source:        resolution.Source,
			Quality:       metrics,
		}, mastered)
	}

	o.logger.Debug("Mix completed", logging.Fields{
		"mix_id":      result.ID,
		"genre":       resolution.Genre,
		"config_id":   cfg.ID,
		"source":      string(resolution.Source),
		"signal_mode": string(class.Mode),
		"mos":         metrics.MOS,
		"warnings":    len(result.Warnings),
		"duration_ms": result.Duration.Milliseconds(),
	})

	return result, nil
}

// normalize applies the mixing preconditions: the highest input sample rate,
// stereo, a common length and fixed headroom
func (o *Orchestrator) normalize(req *Request) (*audio.Buffer, *audio.Buffer, error) {
	if req.Vocals == nil || req.Music == nil {
		return nil, nil, audio.NewInputError(audio.ErrCodeEmptyBuffer, "mix requires vocals and music", audio.ErrEmptyBuffer)
	}

	prepared, err := audio.PrepareForMix(req.Vocals, req.Music)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize inputs: %w", err)
	}
	vocals, music := prepared[0], prepared[1]

	frames := max(vocals.Frames(), music.Frames())
	if req.TargetDuration > 0 {
		frames = int(req.TargetDuration.Seconds() * float64(music.SampleRate))
		if frames <= 0 {
			return nil, nil, audio.NewInputError(audio.ErrCodeInvalidParameter,
				fmt.Sprintf("target duration %s is shorter than one sample", req.TargetDuration), audio.ErrInvalidParameter)
		}
	}
	vocals = audio.GainDB(audio.FitLength(vocals, frames), -o.config.HeadroomDB)
	music = audio.GainDB(audio.FitLength(music, frames), -o.config.HeadroomDB)
	return vocals, music, nil
}

// handOff indexes the mastered buffer and runs the sink on its own
// goroutine, detached from cancellation of ctx
func (o *Orchestrator) handOff(ctx context.Context, rec MixRecord, mastered *audio.Buffer) {
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx := context.WithoutCancel(ctx)

		if o.indexer != nil {
			if err := o.indexMix(ctx, rec, mastered); err != nil {
				o.logger.Error(err, "Failed to index mix", logging.Fields{
					"mix_id": rec.MixID,
					"genre":  rec.Genre,
				})
			}
		}
		if o.sink != nil {
			if err := o.sink.RecordMix(ctx, rec); err != nil {
				o.logger.Error(err, "Failed to record mix", logging.Fields{
					"mix_id": rec.MixID,
					"genre":  rec.Genre,
				})
			}
		}
	}()
}

// indexMix stores one feature vector per feature type for a mastered mix
func (o *Orchestrator) indexMix(ctx context.Context, rec MixRecord, mastered *audio.Buffer) error {
	profile, err := o.analyzer.Analyze(mastered)
	if err != nil {
		return fmt.Errorf("failed to analyze mix: %w", err)
	}
	for _, t := range analysis.FeatureTypes {
		values, err := analysis.Vector(profile, t)
		if err != nil {
			return fmt.Errorf("failed to extract %s vector: %w", t, err)
		}
		if err := o.indexer.Index(ctx, &store.FeatureVector{
			TrackID:     rec.MixID,
			TrackKind:   store.TrackMix,
			Genre:       rec.Genre,
			FeatureType: t,
			Values:      values,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every pending sink hand-off has finished
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func checkFinite(buffers ...*audio.Buffer) error {
	for _, b := range buffers {
		if err := audio.CheckFinite(b); err != nil {
			return err
		}
	}
	return nil
}
