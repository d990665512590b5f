package mixing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/mixdown/internal/preset"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
)

func tone(freq, amplitude float64, frames, rate int) *audio.Buffer {
	samples := make([]float64, frames)
	for i := range samples {
		t := float64(i) / float64(rate)
		samples[i] = amplitude * (math.Sin(2*math.Pi*freq*t) + 0.3*math.Sin(2*math.Pi*2*freq*t)) * (0.7 + 0.3*math.Sin(2*math.Pi*2*t))
	}
	return audio.NewMonoBuffer(samples, rate)
}

func newTestOrchestrator(t *testing.T, repo store.Repository, sink Sink, enhancers ...Enhancer) *Orchestrator {
	t.Helper()
	var configs store.ConfigStore
	if repo != nil {
		configs = repo
	}
	o, err := NewOrchestrator(nil, Dependencies{
		Resolver:  preset.NewResolver(preset.Dependencies{Configs: configs}, nil),
		Enhancers: enhancers,
		Sink:      sink,
	}, nil)
	require.NoError(t, err)
	return o
}

func TestMixNormalizesRatesAndChannels(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)

	result, err := o.Mix(context.Background(), &Request{
		Vocals: tone(440, 0.4, 24000, 24000),
		Music:  tone(110, 0.5, 32000, 32000),
		Genre:  "pop",
	})
	require.NoError(t, err)

	assert.Equal(t, 32000, result.Buffer.SampleRate)
	assert.Equal(t, 2, result.Buffer.Channels())
	assert.Equal(t, 32000, result.Buffer.Frames())
	assert.NoError(t, audio.CheckFinite(result.Buffer))
	assert.Equal(t, preset.SourceBuiltin, result.ConfigSource)
	assert.Equal(t, "dsp-highpass", result.Enhancer)

	last := result.Transitions[len(result.Transitions)-1]
	assert.Equal(t, StateDone, last.To)
	assert.Len(t, result.Transitions, 8)
}

func TestMixPeakWithinCeiling(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)

	result, err := o.Mix(context.Background(), &Request{
		Vocals: tone(330, 0.95, 44100, 44100),
		Music:  tone(82, 0.95, 44100, 44100),
		Genre:  "electronic",
	})
	require.NoError(t, err)

	ceiling := audio.DBToLinear(o.config.Master.Limiter.CeilingDBFS)
	assert.LessOrEqual(t, audio.Peak(result.Buffer), ceiling+1e-9)
	assert.GreaterOrEqual(t, result.Quality.MOS, 1.0)
	assert.LessOrEqual(t, result.Quality.MOS, 5.0)
}

func TestMixSilentInputsWarn(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)

	result, err := o.Mix(context.Background(), &Request{
		Vocals: audio.NewBuffer(1, 22050, 22050),
		Music:  audio.NewBuffer(2, 22050, 22050),
		Genre:  "jazz",
	})
	require.NoError(t, err)
	assert.True(t, result.HasWarning(audio.ErrSilentBuffer))
	assert.Len(t, result.Warnings, 1)
	assert.Zero(t, audio.Peak(result.Buffer))
}

func TestMixIsDeterministic(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)
	req := func() *Request {
		return &Request{
			Vocals: tone(440, 0.4, 22050, 22050),
			Music:  tone(110, 0.5, 22050, 22050),
			Genre:  "rock",
		}
	}

	first, err := o.Mix(context.Background(), req())
	require.NoError(t, err)
	second, err := o.Mix(context.Background(), req())
	require.NoError(t, err)

	assert.Equal(t, first.Buffer.Samples, second.Buffer.Samples)
	assert.Equal(t, first.Quality.MOS, second.Quality.MOS)
	assert.Equal(t, first.SignalMode, second.SignalMode)
}

func TestMixTargetDuration(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)

	result, err := o.Mix(context.Background(), &Request{
		Vocals:         tone(440, 0.4, 22050, 22050),
		Music:          tone(110, 0.5, 44100, 22050),
		Genre:          "country",
		TargetDuration: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 11025, result.Buffer.Frames())
}

func TestMixStoreBackedGenre(t *testing.T) {
	repo := store.NewMemoryStore()
	o := newTestOrchestrator(t, repo, nil)

	result, err := o.Mix(context.Background(), &Request{
		Vocals: tone(440, 0.4, 22050, 22050),
		Music:  tone(110, 0.5, 22050, 22050),
		Genre:  "Pop",
	})
	require.NoError(t, err)
	assert.Equal(t, preset.SourceBuiltin, result.ConfigSource)
	assert.Equal(t, preset.BuiltinID(preset.GenrePop), result.Configuration.ID)

	// The seeded built-in is served from the store afterwards
	again, err := o.Mix(context.Background(), &Request{
		Vocals: tone(440, 0.4, 22050, 22050),
		Music:  tone(110, 0.5, 22050, 22050),
		Genre:  "pop",
	})
	require.NoError(t, err)
	assert.Equal(t, preset.SourceStore, again.ConfigSource)
}

func TestMixFailures(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)

	nan := tone(440, 0.4, 22050, 22050)
	nan.Samples[0][100] = math.NaN()

	tests := []struct {
		name  string
		req   *Request
		state State
		cause error
	}{
		{
			name:  "non-finite vocals",
			req:   &Request{Vocals: nan, Music: tone(110, 0.5, 22050, 22050), Genre: "pop"},
			state: StateReceived,
			cause: audio.ErrNonFiniteSample,
		},
		{
			name:  "missing music",
			req:   &Request{Vocals: tone(440, 0.4, 22050, 22050), Genre: "pop"},
			state: StateReceived,
			cause: audio.ErrEmptyBuffer,
		},
		{
			name:  "unknown genre",
			req:   &Request{Vocals: tone(440, 0.4, 22050, 22050), Music: tone(110, 0.5, 22050, 22050), Genre: "polka"},
			state: StateAnalyzed,
			cause: audio.ErrUnknownGenre,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := o.Mix(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, result)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, tt.state, stageErr.State)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestMixUnknownGenreWithFallback(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)
	result, err := o.Mix(context.Background(), &Request{
		Vocals:        tone(440, 0.4, 22050, 22050),
		Music:         tone(110, 0.5, 22050, 22050),
		Genre:         "polka",
		AllowFallback: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "polka", result.Configuration.Scope.Genre)
}

func TestMixCancelled(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Mix(ctx, &Request{
		Vocals: tone(440, 0.4, 22050, 22050),
		Music:  tone(110, 0.5, 22050, 22050),
		Genre:  "pop",
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type stubEnhancer struct {
	name string
	err  error
	gain float64
}

func (s stubEnhancer) Name() string { return s.name }

func (s stubEnhancer) Enhance(_ context.Context, buf *audio.Buffer) (*audio.Buffer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return audio.Scale(buf, s.gain), nil
}

func TestChainFallsBack(t *testing.T) {
	buf := tone(440, 0.4, 4096, 16000)
	stereoBuf, err := audio.ToChannels(buf, 2)
	require.NoError(t, err)

	t.Run("unavailable enhancers are skipped", func(t *testing.T) {
		chain := NewChain(nil,
			stubEnhancer{name: "remote", err: fmt.Errorf("no endpoint: %w", ErrEnhancerUnavailable)},
			stubEnhancer{name: "model", err: ErrEnhancerUnavailable},
		)
		assert.Equal(t, []string{"remote", "model", "dsp-highpass"}, chain.Names())

		out, name, err := chain.Enhance(context.Background(), stereoBuf)
		require.NoError(t, err)
		assert.Equal(t, "dsp-highpass", name)
		assert.Equal(t, stereoBuf.Frames(), out.Frames())
	})

	t.Run("first available enhancer wins", func(t *testing.T) {
		chain := NewChain(nil, stubEnhancer{name: "half", gain: 0.5})
		out, name, err := chain.Enhance(context.Background(), stereoBuf)
		require.NoError(t, err)
		assert.Equal(t, "half", name)
		assert.InDelta(t, audio.Peak(stereoBuf)/2, audio.Peak(out), 1e-12)
	})

	t.Run("hard failures stop the chain", func(t *testing.T) {
		boom := errors.New("boom")
		chain := NewChain(nil, stubEnhancer{name: "broken", err: boom})
		_, name, err := chain.Enhance(context.Background(), stereoBuf)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "broken", name)
	})
}

type recordingSink struct {
	mu      sync.Mutex
	records []MixRecord
	err     error
}

func (s *recordingSink) RecordMix(_ context.Context, rec MixRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func TestMixHandsOffToSink(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	o := newTestOrchestrator(t, nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	result, err := o.Mix(ctx, &Request{
		ID:     "mix-1",
		Vocals: tone(440, 0.4, 22050, 22050),
		Music:  tone(110, 0.5, 22050, 22050),
		Genre:  "hip hop",
	})
	cancel()
	require.NoError(t, err, "sink failures never fail the mix")
	o.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, "mix-1", rec.MixID)
	assert.Equal(t, preset.GenreHipHop, rec.Genre)
	assert.Equal(t, result.Configuration.ID, rec.Configuration.ID)
	assert.Equal(t, result.Quality, rec.Quality)
}

type recordingIndexer struct {
	mu      sync.Mutex
	vectors []*store.FeatureVector
}

func (x *recordingIndexer) Index(_ context.Context, v *store.FeatureVector) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = append(x.vectors, v)
	return nil
}

func TestMixIndexesMasteredBuffer(t *testing.T) {
	indexer := &recordingIndexer{}
	o, err := NewOrchestrator(nil, Dependencies{
		Resolver: preset.NewResolver(preset.Dependencies{}, nil),
		Indexer:  indexer,
	}, nil)
	require.NoError(t, err)

	result, err := o.Mix(context.Background(), &Request{
		ID:     "mix-7",
		Vocals: tone(440, 0.4, 22050, 22050),
		Music:  tone(110, 0.5, 22050, 22050),
		Genre:  "Jazz",
	})
	require.NoError(t, err)
	o.Wait()

	indexer.mu.Lock()
	defer indexer.mu.Unlock()
	require.Len(t, indexer.vectors, len(analysis.FeatureTypes))
	for i, v := range indexer.vectors {
		assert.Equal(t, result.ID, v.TrackID)
		assert.Equal(t, store.TrackMix, v.TrackKind)
		assert.Equal(t, preset.GenreJazz, v.Genre)
		assert.Equal(t, analysis.FeatureTypes[i], v.FeatureType)
		assert.Len(t, v.Values, analysis.VectorSize(v.FeatureType))
	}
}

func TestMixRejectsNilRequest(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)

	result, err := o.Mix(context.Background(), nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, audio.ErrEmptyBuffer)
	assert.Equal(t, audio.KindInput, audio.KindOf(err))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateReceived, stageErr.State)
}

func TestMixBatch(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil)

	reqs := []*Request{
		{Vocals: tone(440, 0.4, 22050, 22050), Music: tone(110, 0.5, 22050, 22050), Genre: "pop"},
		{Vocals: tone(440, 0.4, 22050, 22050), Music: tone(110, 0.5, 22050, 22050), Genre: "polka"},
		{Vocals: tone(523, 0.3, 16000, 16000), Music: tone(98, 0.5, 22050, 22050), Genre: "jazz"},
	}
	items, summary := o.MixBatch(context.Background(), reqs, 2)

	require.Len(t, items, 3)
	assert.Equal(t, BatchSummary{Total: 3, Succeeded: 2, Failed: 1, Duration: summary.Duration}, summary)
	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
	assert.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, audio.ErrUnknownGenre)
	require.NoError(t, items[2].Err)
	assert.Equal(t, 22050, items[2].Result.Buffer.SampleRate)
}

func TestNewOrchestratorRequiresResolver(t *testing.T) {
	_, err := NewOrchestrator(nil, Dependencies{}, nil)
	assert.Error(t, err)
}
