package preset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/mixdown/internal/index"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pop", GenrePop},
		{"  HIP HOP ", GenreHipHop},
		{"HipHop", GenreHipHop},
		{"R&B", GenreRnB},
		{"rnb", GenreRnB},
		{"Rhythm  and   Blues", GenreRnB},
		{"EDM", GenreElectronic},
		{"Polka", "polka"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonicalize(tt.in), tt.in)
	}
}

func TestBuiltinsAreValid(t *testing.T) {
	table := Builtins()
	for _, genre := range []string{GenrePop, GenreRock, GenreHipHop, GenreJazz, GenreElectronic, GenreCountry, GenreClassical, GenreRnB, FallbackName} {
		cfg, ok := table[genre]
		require.True(t, ok, genre)
		assert.NoError(t, cfg.Validate(), genre)
		assert.Equal(t, BuiltinID(genre), cfg.ID)

		sum := 0.0
		for _, v := range cfg.TargetCurve {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, genre)
	}

	// Builtins hands out independent copies
	table[GenrePop].Stereo.Width = 2
	assert.NotEqual(t, 2.0, Builtins()[GenrePop].Stereo.Width)
}

func TestResolveEmptyStoreUsesBuiltin(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore()
	r := NewResolver(Dependencies{Configs: repo}, nil)

	res, err := r.Resolve(ctx, Request{Genre: "Pop"})
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, res.Source)
	assert.Equal(t, GenrePop, res.Genre)
	assert.Equal(t, BuiltinID(GenrePop), res.Configuration.ID)
	assert.Equal(t, Builtins()[GenrePop].TargetCurve, res.Configuration.TargetCurve)

	// The built-in was seeded as the genre default
	history, err := repo.DefaultHistory(ctx, GenrePop)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, BuiltinID(GenrePop), history[0].ConfigID)

	again, err := r.Resolve(ctx, Request{Genre: "pop"})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, again.Source)
	assert.Equal(t, BuiltinID(GenrePop), again.Configuration.ID)
	assert.True(t, again.Configuration.IsDefault)
}

func TestResolveWithoutStore(t *testing.T) {
	r := NewResolver(Dependencies{}, nil)
	res, err := r.Resolve(context.Background(), Request{Genre: "jazz"})
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, res.Source)
	assert.Equal(t, 1.0, res.Configuration.Stereo.Width)
}

func TestResolveUnknownGenre(t *testing.T) {
	r := NewResolver(Dependencies{}, nil)

	_, err := r.Resolve(context.Background(), Request{Genre: "polka"})
	assert.ErrorIs(t, err, audio.ErrUnknownGenre)
	assert.True(t, audio.IsKind(err, audio.KindConfiguration))

	res, err := r.Resolve(context.Background(), Request{Genre: "polka", AllowFallback: true})
	require.NoError(t, err)
	assert.Equal(t, "polka", res.Genre)
	assert.Equal(t, "polka", res.Configuration.Scope.Genre)
	assert.Equal(t, Builtins()[FallbackName].TargetCurve, res.Configuration.TargetCurve)
}

func TestResolvePrefersStoredDefault(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore()

	custom := Builtins()[GenreRock].Clone()
	custom.ID = ""
	custom.Name = "loud rock"
	custom.Origin = store.OriginFeedback
	custom.Stereo.Width = 1.6
	require.NoError(t, repo.CreateConfig(ctx, custom))
	require.NoError(t, repo.SetDefault(ctx, GenreRock, custom.ID, "test"))

	r := NewResolver(Dependencies{Configs: repo}, nil)
	res, err := r.Resolve(ctx, Request{Genre: "rock"})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, res.Source)
	assert.Equal(t, custom.ID, res.Configuration.ID)
	assert.Equal(t, 1.6, res.Configuration.Stereo.Width)
}

type failingConfigs struct {
	store.ConfigStore
}

func (failingConfigs) ListByGenre(context.Context, string) ([]*store.MixingConfiguration, error) {
	return nil, audio.NewStorageError("database is locked", errors.New("busy"))
}

func TestResolveStorageFailureFallsBack(t *testing.T) {
	r := NewResolver(Dependencies{Configs: failingConfigs{}}, nil)
	res, err := r.Resolve(context.Background(), Request{Genre: "country"})
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, res.Source)
	assert.Equal(t, BuiltinID(GenreCountry), res.Configuration.ID)
}

func referenceProfile(bands [analysis.NumBands]float64, width, crest float64) *analysis.FrequencyProfile {
	p := &analysis.FrequencyProfile{SampleRate: 44100, StereoWidth: width, CrestFactorDB: crest}
	sum := 0.0
	for _, v := range bands {
		sum += v
	}
	for i, v := range bands {
		p.BandRatios[i] = v / sum
	}
	return p
}

func TestResolveFromReference(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore()
	idx := index.NewMemoryIndex(repo, nil)

	bassy := NewReferenceTrack("bassy", "hip hop", referenceProfile([7]float64{0.3, 0.4, 0.1, 0.1, 0.05, 0.03, 0.02}, 1.0, 8))
	require.NoError(t, repo.CreateReference(ctx, bassy))
	vectors, err := ReferenceVectors(bassy)
	require.NoError(t, err)
	for _, v := range vectors {
		require.NoError(t, idx.Index(ctx, v))
	}

	r := NewResolver(Dependencies{Configs: repo, References: repo, Index: idx}, nil)
	res, err := r.Resolve(ctx, Request{Genre: "hip-hop", ReferenceTrackID: bassy.ID})
	require.NoError(t, err)
	assert.Equal(t, SourceReference, res.Source)
	assert.Equal(t, bassy.ID, res.ReferenceID)
	assert.InDelta(t, 1.0, res.Similarity, 1e-9)

	cfg := res.Configuration
	base := Builtins()[GenreHipHop]
	assert.Equal(t, store.OriginReference, cfg.Origin)
	assert.Equal(t, base.ID, cfg.ParentID)
	assert.NoError(t, cfg.Validate())

	// Half way toward the reference: more sub-bass than the base, less than the reference
	sub := analysis.BandIndex("sub-bass")
	assert.Greater(t, cfg.TargetCurve[sub], base.TargetCurve[sub])
	assert.Less(t, cfg.TargetCurve[sub], bassy.Recommendations.TargetCurve[sub])
	assert.Greater(t, cfg.Stereo.Width, base.Stereo.Width)

	// The derived configuration was persisted
	_, err = repo.GetConfig(ctx, cfg.ID)
	assert.NoError(t, err)
}

func TestResolveMissingReferenceFallsBack(t *testing.T) {
	repo := store.NewMemoryStore()
	idx := index.NewMemoryIndex(repo, nil)
	r := NewResolver(Dependencies{Configs: repo, References: repo, Index: idx}, nil)

	res, err := r.Resolve(context.Background(), Request{Genre: "pop", ReferenceTrackID: "missing"})
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, res.Source)
}

func TestRecommend(t *testing.T) {
	dense := Recommend(referenceProfile([7]float64{1, 1, 1, 1, 1, 1, 1}, 0.25, 6))
	open := Recommend(referenceProfile([7]float64{1, 1, 1, 1, 1, 1, 1}, 0.0625, 18))

	assert.InDelta(t, 1.0, dense.Width, 1e-12)
	assert.InDelta(t, 0.5, open.Width, 1e-12)
	assert.Greater(t, dense.Compression.Ratio, open.Compression.Ratio)
	assert.InDelta(t, 1.0/7, dense.TargetCurve[0], 1e-12)
}
