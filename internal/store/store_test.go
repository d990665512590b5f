package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/mixdown/internal/quality"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/stereo"
)

func testConfig(genre, name string) *MixingConfiguration {
	return &MixingConfiguration{
		Name:  name,
		Scope: Scope{Genre: genre},
		Compression: Compression{
			ThresholdDB: -24,
			Ratio:       3,
			AttackMs:    10,
			ReleaseMs:   150,
		},
		Sidechain: Sidechain{Enabled: true, MaxReductionDB: 8},
		Stereo:    stereo.Settings{Width: 1.2},
		Origin:    OriginPreset,
	}
}

type RepositoryTestSuite struct {
	suite.Suite
	open func() Repository
	repo Repository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.open()
}

func (s *RepositoryTestSuite) TearDownTest() {
	s.NoError(s.repo.Close())
}

func (s *RepositoryTestSuite) TestCreateAndGet() {
	cfg := testConfig("pop", "bright")
	s.Require().NoError(s.repo.CreateConfig(s.ctx, cfg))
	s.NotEmpty(cfg.ID)
	s.Equal(1, cfg.Version)

	got, err := s.repo.GetConfig(s.ctx, cfg.ID)
	s.Require().NoError(err)
	s.Equal(cfg.Name, got.Name)
	s.Equal(cfg.Compression, got.Compression)
	s.Equal(cfg.Stereo, got.Stereo)
	s.False(got.IsDefault)
	s.True(cfg.CreatedAt.Equal(got.CreatedAt))
}

func (s *RepositoryTestSuite) TestGetMissing() {
	_, err := s.repo.GetConfig(s.ctx, "missing")
	s.ErrorIs(err, audio.ErrNotFound)
	s.True(audio.IsKind(err, audio.KindConfiguration))
}

func (s *RepositoryTestSuite) TestCreateRejectsInvalid() {
	cfg := testConfig("pop", "too wide")
	cfg.Stereo.Width = 3
	s.ErrorIs(s.repo.CreateConfig(s.ctx, cfg), audio.ErrWidthOutOfRange)
}

func (s *RepositoryTestSuite) TestListByGenreOrdering() {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := testConfig("rock", "a")
	a.CreatedAt = base
	b := testConfig("rock", "b")
	b.CreatedAt = base.Add(time.Hour)
	c := testConfig("rock", "c")
	c.CreatedAt = base.Add(2 * time.Hour)
	other := testConfig("jazz", "other")

	for _, cfg := range []*MixingConfiguration{a, b, c, other} {
		s.Require().NoError(s.repo.CreateConfig(s.ctx, cfg))
	}
	s.Require().NoError(s.repo.IncrementUsage(s.ctx, a.ID))
	s.Require().NoError(s.repo.IncrementUsage(s.ctx, a.ID))

	list, err := s.repo.ListByGenre(s.ctx, "rock")
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal([]string{a.ID, c.ID, b.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	s.Equal(int64(2), list[0].UsageCount)

	s.Require().NoError(s.repo.SetDefault(s.ctx, "rock", b.ID, "manual"))
	list, err = s.repo.ListByGenre(s.ctx, "rock")
	s.Require().NoError(err)
	s.Equal(b.ID, list[0].ID)
	s.True(list[0].IsDefault)
	s.False(list[1].IsDefault)
}

func (s *RepositoryTestSuite) TestDefaultHistoryIsAppendOnly() {
	a := testConfig("country", "a")
	b := testConfig("country", "b")
	s.Require().NoError(s.repo.CreateConfig(s.ctx, a))
	s.Require().NoError(s.repo.CreateConfig(s.ctx, b))

	s.Require().NoError(s.repo.SetDefault(s.ctx, "country", a.ID, "seed"))
	s.Require().NoError(s.repo.SetDefault(s.ctx, "country", b.ID, "optimized"))

	history, err := s.repo.DefaultHistory(s.ctx, "country")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(a.ID, history[0].ConfigID)
	s.Equal(b.ID, history[1].ConfigID)
	s.Equal("optimized", history[1].Reason)

	got, err := s.repo.GetConfig(s.ctx, b.ID)
	s.Require().NoError(err)
	s.True(got.IsDefault)

	s.ErrorIs(s.repo.SetDefault(s.ctx, "jazz", a.ID, "wrong genre"), audio.ErrNotFound)
	s.ErrorIs(s.repo.SetDefault(s.ctx, "country", "missing", ""), audio.ErrNotFound)
}

func (s *RepositoryTestSuite) TestIncrementUsageMissing() {
	s.ErrorIs(s.repo.IncrementUsage(s.ctx, "missing"), audio.ErrNotFound)
}

func (s *RepositoryTestSuite) TestReferences() {
	ref := &ReferenceTrack{
		Name:        "anthem",
		Genre:       "pop",
		StereoWidth: 0.4,
		Profile:     &analysis.FrequencyProfile{SampleRate: 44100, CrestFactorDB: 11},
	}
	s.Require().NoError(s.repo.CreateReference(s.ctx, ref))

	got, err := s.repo.GetReference(s.ctx, ref.ID)
	s.Require().NoError(err)
	s.Equal("anthem", got.Name)
	s.Equal(44100, got.Profile.SampleRate)

	list, err := s.repo.ListReferences(s.ctx, "pop")
	s.Require().NoError(err)
	s.Len(list, 1)
	list, err = s.repo.ListReferences(s.ctx, "rock")
	s.Require().NoError(err)
	s.Empty(list)

	_, err = s.repo.GetReference(s.ctx, "missing")
	s.ErrorIs(err, audio.ErrNotFound)
}

func (s *RepositoryTestSuite) TestVectors() {
	v := &FeatureVector{
		TrackID:     "track-1",
		TrackKind:   TrackReference,
		Genre:       "pop",
		FeatureType: analysis.FeatureFrequency,
		Values:      []float64{0.1, 0.2, 0.3},
	}
	s.Require().NoError(s.repo.SaveVector(s.ctx, v))

	list, err := s.repo.ListVectors(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(v.Values, list[0].Values)
	s.Equal(analysis.FeatureFrequency, list[0].FeatureType)
}

func (s *RepositoryTestSuite) TestFeedbackAndQuality() {
	mos := &quality.Metrics{MOS: 4.2, Naturalness: 4, Intelligibility: 0.8}
	for i, genre := range []string{"pop", "pop", "rock"} {
		fb := &MixingFeedback{
			ConfigID:  "cfg",
			MixID:     "mix",
			Genre:     genre,
			Ratings:   Ratings{Overall: i + 1, Vocals: 3, Instrumental: 3, Clarity: 3, Balance: 3},
			Objective: mos,
		}
		s.Require().NoError(s.repo.AppendFeedback(s.ctx, fb))
	}

	pop, err := s.repo.ListFeedback(s.ctx, "pop")
	s.Require().NoError(err)
	s.Require().Len(pop, 2)
	s.Equal(1, pop[0].Ratings.Overall)
	s.Equal(2, pop[1].Ratings.Overall)
	s.Require().NotNil(pop[0].Objective)
	s.InDelta(4.2, pop[0].Objective.MOS, 1e-12)

	all, err := s.repo.ListFeedback(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 3)

	s.Require().NoError(s.repo.SaveQuality(s.ctx, &QualityRecord{MixID: "m1", ConfigID: "cfg", Genre: "pop", Metrics: *mos}))
	recs, err := s.repo.ListQuality(s.ctx, "cfg")
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.InDelta(4.2, recs[0].Metrics.MOS, 1e-12)
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{open: func() Repository { return NewMemoryStore() }})
}

func TestSQLStore(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{open: func() Repository {
		s, err := OpenSQLStore(context.Background(), ":memory:", nil)
		require.NoError(t, err)
		return s
	}})
}

func TestCachedStore(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{open: func() Repository {
		return NewCachedStore(NewMemoryStore(), nil, nil)
	}})
}

// countingStore counts configuration reads reaching the backend
type countingStore struct {
	*MemoryStore
	gets  atomic.Int64
	lists atomic.Int64
	gate  chan struct{}
}

func (c *countingStore) GetConfig(ctx context.Context, id string) (*MixingConfiguration, error) {
	c.gets.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.MemoryStore.GetConfig(ctx, id)
}

func (c *countingStore) ListByGenre(ctx context.Context, genre string) ([]*MixingConfiguration, error) {
	c.lists.Add(1)
	return c.MemoryStore.ListByGenre(ctx, genre)
}

func TestCachedStoreReadThroughAndInvalidation(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore()}
	cache := NewCachedStore(backend, &CacheConfig{Size: 8, TTL: time.Minute}, nil)

	cfg := testConfig("pop", "a")
	require.NoError(t, cache.CreateConfig(ctx, cfg))

	for range 3 {
		_, err := cache.GetConfig(ctx, cfg.ID)
		require.NoError(t, err)
		_, err = cache.ListByGenre(ctx, "pop")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), backend.gets.Load())
	assert.Equal(t, int64(1), backend.lists.Load())

	require.NoError(t, cache.IncrementUsage(ctx, cfg.ID))
	got, err := cache.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
	list, err := cache.ListByGenre(ctx, "pop")
	require.NoError(t, err)
	assert.Equal(t, int64(1), list[0].UsageCount)
	assert.Equal(t, int64(2), backend.gets.Load())
	assert.Equal(t, int64(2), backend.lists.Load())

	require.NoError(t, cache.SetDefault(ctx, "pop", cfg.ID, "test"))
	got, err = cache.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	// Returned values are copies
	got.Name = "mutated"
	again, err := cache.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Name)
}

func TestCachedStoreCoalescesMisses(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore(), gate: make(chan struct{})}
	cache := NewCachedStore(backend, nil, nil)

	cfg := testConfig("jazz", "a")
	require.NoError(t, backend.CreateConfig(ctx, cfg))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetConfig(ctx, cfg.ID)
			assert.NoError(t, err)
		}()
	}

	// Let the single in-flight backend call finish once every caller waits on it
	time.Sleep(50 * time.Millisecond)
	close(backend.gate)
	wg.Wait()

	assert.Equal(t, int64(1), backend.gets.Load())
}

// blockingStore holds its first ListByGenre call after the backend read
// until release is closed
type blockingStore struct {
	*MemoryStore
	calls   atomic.Int64
	fetched chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListByGenre(ctx context.Context, genre string) ([]*MixingConfiguration, error) {
	list, err := b.MemoryStore.ListByGenre(ctx, genre)
	if b.calls.Add(1) == 1 {
		close(b.fetched)
		<-b.release
	}
	return list, err
}

func defaultID(list []*MixingConfiguration) string {
	for _, cfg := range list {
		if cfg.IsDefault {
			return cfg.ID
		}
	}
	return ""
}

func TestCachedStoreDropsListReadAcrossDefaultChange(t *testing.T) {
	ctx := context.Background()
	backend := &blockingStore{
		MemoryStore: NewMemoryStore(),
		fetched:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	cache := NewCachedStore(backend, &CacheConfig{Size: 8, TTL: time.Minute}, nil)

	current, promoted := testConfig("pop", "current"), testConfig("pop", "promoted")
	require.NoError(t, backend.CreateConfig(ctx, current))
	require.NoError(t, backend.CreateConfig(ctx, promoted))
	require.NoError(t, backend.SetDefault(ctx, "pop", current.ID, "seed"))

	done := make(chan []*MixingConfiguration)
	go func() {
		list, err := cache.ListByGenre(ctx, "pop")
		assert.NoError(t, err)
		done <- list
	}()

	// The reader holds the pre-promotion list while the default changes
	<-backend.fetched
	require.NoError(t, cache.SetDefault(ctx, "pop", promoted.ID, "feedback"))

	// A reader arriving now must not share the in-flight read
	list, err := cache.ListByGenre(ctx, "pop")
	require.NoError(t, err)
	assert.Equal(t, promoted.ID, defaultID(list))

	close(backend.release)
	assert.Equal(t, current.ID, defaultID(<-done))

	list, err = cache.ListByGenre(ctx, "pop")
	require.NoError(t, err)
	assert.Equal(t, promoted.ID, defaultID(list))
	// Served from the post-promotion read; the stale one was never cached
	assert.Equal(t, int64(2), backend.calls.Load())
}

func TestCachedStoreDropsConfigReadAcrossDefaultChange(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{MemoryStore: NewMemoryStore(), gate: make(chan struct{})}
	cache := NewCachedStore(backend, nil, nil)

	cfg := testConfig("rock", "a")
	require.NoError(t, backend.CreateConfig(ctx, cfg))

	done := make(chan *MixingConfiguration)
	go func() {
		got, err := cache.GetConfig(ctx, cfg.ID)
		assert.NoError(t, err)
		done <- got
	}()
	require.Eventually(t, func() bool { return backend.gets.Load() == 1 }, time.Second, time.Millisecond)

	// The gated read may observe either state; its result must not be cached
	require.NoError(t, cache.SetDefault(ctx, "rock", cfg.ID, "promote"))
	close(backend.gate)
	<-done

	got, err := cache.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
	assert.Equal(t, int64(2), backend.gets.Load())
}

func TestScopeLocksSerialize(t *testing.T) {
	locks := NewScopeLocks()
	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		overlap atomic.Bool
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("pop")
			defer unlock()
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load())
}

func TestRatingsValidate(t *testing.T) {
	ok := Ratings{Overall: 5, Vocals: 1, Instrumental: 3, Clarity: 4, Balance: 2}
	assert.NoError(t, ok.Validate())
	assert.InDelta(t, 3.0, ok.Mean(), 1e-12)

	bad := ok
	bad.Clarity = 6
	assert.ErrorIs(t, bad.Validate(), audio.ErrInvalidParameter)
}
