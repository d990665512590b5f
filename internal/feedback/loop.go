package feedback

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/google/uuid"

	"github.com/RyanBlaney/mixdown/internal/quality"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// Optimization policy defaults
const (
	DefaultMinEntries   = 3
	DefaultMargin       = 0.5
	DefaultNeutralPrior = 3.0

	subjectiveShare = 0.7
	objectiveShare  = 0.3
	// objectiveWeight counts entries with measured scores more heavily
	objectiveWeight = 1.5
)

// Config controls when the loop promotes a new default
type Config struct {
	MinEntries   int     `mapstructure:"min_entries" json:"min_entries" yaml:"min_entries"`
	Margin       float64 `mapstructure:"margin" json:"margin" yaml:"margin"`
	NeutralPrior float64 `mapstructure:"neutral_prior" json:"neutral_prior" yaml:"neutral_prior"`
}

// DefaultConfig returns the default optimization policy
func DefaultConfig() *Config {
	return &Config{
		MinEntries:   DefaultMinEntries,
		Margin:       DefaultMargin,
		NeutralPrior: DefaultNeutralPrior,
	}
}

// Store is what the loop needs from persistence
type Store interface {
	store.ConfigStore
	store.QualityStore
	store.FeedbackStore
}

// Submission is one user rating of a completed mix
type Submission struct {
	ConfigID  string           `json:"config_id"`
	MixID     string           `json:"mix_id"`
	Ratings   store.Ratings    `json:"ratings"`
	Objective *quality.Metrics `json:"objective,omitempty"`
}

// ConfigScore is the aggregated feedback of one configuration
type ConfigScore struct {
	ConfigID  string              `json:"config_id"`
	IsDefault bool                `json:"is_default"`
	Stats     *quality.ScoreStats `json:"stats"`
}

// Outcome describes what an optimization pass decided
type Outcome struct {
	Genre      string        `json:"genre"`
	Entries    int           `json:"entries"`
	Promoted   bool          `json:"promoted"`
	Reason     string        `json:"reason"`
	DefaultID  string        `json:"default_id,omitempty"`
	BestID     string        `json:"best_id,omitempty"`
	DerivedID  string        `json:"derived_id,omitempty"`
	Baseline   float64       `json:"baseline"`
	BestScore  float64       `json:"best_score"`
	Scores     []ConfigScore `json:"scores,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Loop ingests feedback and promotes better configurations per genre
type Loop struct {
	config *Config
	store  Store
	locks  *store.ScopeLocks
	logger logging.Logger
	now    func() time.Time
}

// NewLoop creates a feedback loop. Share locks with the preset resolver so
// default changes for a genre are serialized.
func NewLoop(config *Config, st Store, locks *store.ScopeLocks, logger logging.Logger) *Loop {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MinEntries < DefaultMinEntries {
		config.MinEntries = DefaultMinEntries
	}
	if locks == nil {
		locks = store.NewScopeLocks()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Loop{
		config: config,
		store:  st,
		locks:  locks,
		logger: logger.WithFields(logging.Fields{"component": "feedback_loop"}),
		now:    time.Now,
	}
}

// SubmitFeedback appends a rating and then runs an optimization pass for the
// configuration's genre. Optimization failures are logged and do not fail
// the submission.
func (l *Loop) SubmitFeedback(ctx context.Context, sub Submission) (*store.MixingFeedback, *Outcome, error) {
	if err := sub.Ratings.Validate(); err != nil {
		return nil, nil, err
	}
	if sub.ConfigID == "" {
		return nil, nil, audio.NewInputError(audio.ErrCodeInvalidParameter, "feedback requires a configuration id", audio.ErrInvalidParameter)
	}

	cfg, err := l.store.GetConfig(ctx, sub.ConfigID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rated configuration: %w", err)
	}

	fb := &store.MixingFeedback{
		ConfigID:  cfg.ID,
		MixID:     sub.MixID,
		Genre:     cfg.Scope.Genre,
		Ratings:   sub.Ratings,
		Objective: sub.Objective,
	}
	if err := l.store.AppendFeedback(ctx, fb); err != nil {
		return nil, nil, fmt.Errorf("failed to append feedback: %w", err)
	}

	l.logger.Info("Feedback recorded", logging.Fields{
		"feedback_id": fb.ID,
		"config_id":   fb.ConfigID,
		"genre":       fb.Genre,
		"mean_rating": fb.Ratings.Mean(),
	})

	outcome, err := l.MaybeOptimize(ctx, fb.Genre)
	if err != nil {
		l.logger.Error(err, "Optimization skipped", logging.Fields{"genre": fb.Genre})
		return fb, nil, nil
	}
	return fb, outcome, nil
}

// Score combines the ratings and objective MOS of one entry into a 1-5 score
// and its aggregation weight
func Score(fb *store.MixingFeedback) (float64, float64) {
	subjective := fb.Ratings.Mean()
	if fb.Objective == nil {
		return subjective, 1
	}
	mos := max(quality.MinOpinion, min(quality.MaxOpinion, fb.Objective.MOS))
	return subjectiveShare*subjective + objectiveShare*mos, objectiveWeight
}

// Summarize aggregates the feedback of a genre per configuration, ordered by
// mean score descending and then by configuration id
func (l *Loop) Summarize(ctx context.Context, genre string) ([]ConfigScore, int, error) {
	entries, err := l.store.ListFeedback(ctx, genre)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list feedback: %w", err)
	}
	defaultID, err := l.currentDefault(ctx, genre)
	if err != nil {
		return nil, 0, err
	}
	return aggregate(entries, defaultID), len(entries), nil
}

// MaybeOptimize promotes a configuration derived from the best-rated one
// once the genre has enough feedback and the winner beats the current
// default by the configured margin. Runs under the genre scope lock.
func (l *Loop) MaybeOptimize(ctx context.Context, genre string) (*Outcome, error) {
	unlock := l.locks.Lock(store.Scope{Genre: genre}.Key())
	defer unlock()

	outcome := &Outcome{Genre: genre, OccurredAt: l.now()}

	// Step 1: Enforce the minimum sample size
	entries, err := l.store.ListFeedback(ctx, genre)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	outcome.Entries = len(entries)
	if len(entries) < l.config.MinEntries {
		outcome.Reason = fmt.Sprintf("need %d feedback entries, have %d", l.config.MinEntries, len(entries))
		return outcome, nil
	}

	// Step 2: Aggregate per configuration and find the baseline
	defaultID, err := l.currentDefault(ctx, genre)
	if err != nil {
		return nil, err
	}
	scores := aggregate(entries, defaultID)
	outcome.Scores = scores
	outcome.DefaultID = defaultID
	outcome.Baseline = l.config.NeutralPrior
	for _, s := range scores {
		if s.ConfigID == defaultID {
			outcome.Baseline = s.Stats.Mean
		}
	}

	best := scores[0]
	outcome.BestID = best.ConfigID
	outcome.BestScore = best.Stats.Mean

	// Step 3: Decide whether the best performer clearly wins
	if best.ConfigID == defaultID {
		outcome.Reason = "current default is the best performer"
		return outcome, nil
	}
	if best.Stats.Mean-outcome.Baseline < l.config.Margin {
		outcome.Reason = fmt.Sprintf("best mean %.2f within %.2f of baseline %.2f",
			best.Stats.Mean, l.config.Margin, outcome.Baseline)
		return outcome, nil
	}
	if defaultID != "" {
		current, err := l.store.GetConfig(ctx, defaultID)
		if err != nil {
			return nil, fmt.Errorf("failed to load current default: %w", err)
		}
		if current.ParentID == best.ConfigID {
			outcome.Reason = "already promoted a configuration derived from the best performer"
			return outcome, nil
		}
	}

	// Step 4: Derive and promote a new configuration
	source, err := l.store.GetConfig(ctx, best.ConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to load best configuration: %w", err)
	}
	derived := Derive(source)
	if err := l.store.CreateConfig(ctx, derived); err != nil {
		return nil, fmt.Errorf("failed to create optimized configuration: %w", err)
	}
	reason := fmt.Sprintf("feedback: mean %.2f over %d entries vs baseline %.2f",
		best.Stats.Mean, best.Stats.Count, outcome.Baseline)
	if err := l.store.SetDefault(ctx, genre, derived.ID, reason); err != nil {
		return nil, fmt.Errorf("failed to promote optimized configuration: %w", err)
	}

	outcome.Promoted = true
	outcome.DerivedID = derived.ID
	outcome.Reason = reason

	l.logger.Info("Promoted optimized configuration", logging.Fields{
		"genre":      genre,
		"derived_id": derived.ID,
		"parent_id":  source.ID,
		"previous":   defaultID,
		"best_mean":  best.Stats.Mean,
		"baseline":   outcome.Baseline,
		"entries":    len(entries),
	})
	return outcome, nil
}

// Derive copies cfg into a new record one version later. The parent is
// never modified so its feedback stays attributable.
func Derive(cfg *store.MixingConfiguration) *store.MixingConfiguration {
	out := cfg.Clone()
	out.ID = uuid.NewString()
	out.Name = fmt.Sprintf("%s (optimized v%d)", cfg.Scope.Genre, cfg.Version+1)
	out.ParentID = cfg.ID
	out.Version = cfg.Version + 1
	out.Origin = store.OriginFeedback
	out.UsageCount = 0
	out.IsDefault = false
	out.CreatedAt = time.Time{}
	return out
}

func (l *Loop) currentDefault(ctx context.Context, genre string) (string, error) {
	history, err := l.store.DefaultHistory(ctx, genre)
	if err != nil {
		return "", fmt.Errorf("failed to load default history: %w", err)
	}
	if len(history) == 0 {
		return "", nil
	}
	return history[len(history)-1].ConfigID, nil
}

func aggregate(entries []*store.MixingFeedback, defaultID string) []ConfigScore {
	values := make(map[string][]float64)
	weights := make(map[string][]float64)
	for _, fb := range entries {
		v, w := Score(fb)
		values[fb.ConfigID] = append(values[fb.ConfigID], v)
		weights[fb.ConfigID] = append(weights[fb.ConfigID], w)
	}

	scores := make([]ConfigScore, 0, len(values))
	for id, v := range values {
		scores = append(scores, ConfigScore{
			ConfigID:  id,
			IsDefault: id == defaultID,
			Stats:     quality.CalculateStats(v, weights[id]),
		})
	}
	slices.SortFunc(scores, func(a, b ConfigScore) int {
		if c := cmp.Compare(b.Stats.Mean, a.Stats.Mean); c != 0 {
			return c
		}
		return cmp.Compare(a.ConfigID, b.ConfigID)
	})
	return scores
}
