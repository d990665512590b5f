package app

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/mixdown/configs"
	"github.com/RyanBlaney/mixdown/internal/feedback"
	"github.com/RyanBlaney/mixdown/internal/preset"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/wavio"
)

func writeTone(t *testing.T, dir, name string, freq float64, channels, rate int) string {
	t.Helper()
	buf := audio.NewBuffer(channels, rate, rate)
	for ch := range buf.Samples {
		for i := range buf.Samples[ch] {
			ts := float64(i) / float64(rate)
			buf.Samples[ch][i] = 0.4 * math.Sin(2*math.Pi*freq*ts) * (0.8 + 0.2*math.Sin(2*math.Pi*3*ts))
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, wavio.WriteFile(path, buf, 16))
	return path
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(context.Background(), &Context{
		OutputFormat: "json",
		Logger:       logging.NewDefaultLogger(),
		Config:       configs.DevelopmentConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestMixFilesWritesOutput(t *testing.T) {
	dir := t.TempDir()
	app := newTestApp(t)

	out := filepath.Join(dir, "out", "mix.wav")
	result, err := app.MixFiles(context.Background(), MixFiles{
		VocalsPath: writeTone(t, dir, "vocals.wav", 440, 1, 22050),
		MusicPath:  writeTone(t, dir, "music.wav", 110, 2, 44100),
		OutputPath: out,
		Genre:      "Rock",
	})
	require.NoError(t, err)
	assert.Equal(t, preset.BuiltinID(preset.GenreRock), result.Configuration.ID)

	written, err := wavio.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 44100, written.SampleRate)
	assert.Equal(t, 2, written.Channels())

	summary := MixSummary(result)
	assert.Equal(t, preset.GenreRock, summary["genre"])
	assert.Equal(t, "builtin", summary["config_source"])
}

func TestMixRecordsUsageThroughFeedbackSink(t *testing.T) {
	dir := t.TempDir()
	app := newTestApp(t)
	ctx := context.Background()

	result, err := app.MixFiles(ctx, MixFiles{
		VocalsPath: writeTone(t, dir, "vocals.wav", 440, 1, 22050),
		MusicPath:  writeTone(t, dir, "music.wav", 110, 1, 22050),
		Genre:      "jazz",
	})
	require.NoError(t, err)
	app.orchestrator.Wait()

	configs, err := app.StoredConfigurations(ctx, "jazz")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, result.Configuration.ID, configs[0].ID)
	assert.Equal(t, int64(1), configs[0].UsageCount)

	vectors, err := app.repo.ListVectors(ctx)
	require.NoError(t, err)
	require.Len(t, vectors, len(analysis.FeatureTypes))
	for _, v := range vectors {
		assert.Equal(t, result.ID, v.TrackID)
		assert.Equal(t, store.TrackMix, v.TrackKind)
	}
	assert.Equal(t, 1, app.index.Len(analysis.FeatureFull))

	fb, outcome, err := app.SubmitFeedback(ctx, feedback.Submission{
		ConfigID:  result.Configuration.ID,
		MixID:     result.ID,
		Ratings:   store.Ratings{Overall: 4, Vocals: 4, Instrumental: 4, Clarity: 4, Balance: 4},
		Objective: result.Quality,
	})
	require.NoError(t, err)
	assert.Equal(t, preset.GenreJazz, fb.Genre)
	assert.False(t, outcome.Promoted)

	scores, entries, err := app.FeedbackSummary(ctx, "Jazz")
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
	require.Len(t, scores, 1)
	assert.True(t, scores[0].IsDefault)
}

func TestAddReferenceIndexesVectors(t *testing.T) {
	dir := t.TempDir()
	app := newTestApp(t)
	ctx := context.Background()

	ref, err := app.AddReference(ctx, "", "hip hop", writeTone(t, dir, "bass-heavy.wav", 60, 2, 22050))
	require.NoError(t, err)
	assert.Equal(t, "bass-heavy", ref.Name)
	assert.Equal(t, preset.GenreHipHop, ref.Genre)
	assert.Equal(t, 1, app.index.Len("full"))

	refs, err := app.ListReferences(ctx, "Hip-Hop")
	require.NoError(t, err)
	require.Len(t, refs, 1)

	result, err := app.MixFiles(ctx, MixFiles{
		VocalsPath:       writeTone(t, dir, "vocals.wav", 440, 1, 22050),
		MusicPath:        writeTone(t, dir, "music.wav", 110, 1, 22050),
		Genre:            "hip-hop",
		ReferenceTrackID: ref.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, preset.SourceReference, result.ConfigSource)

	_, err = app.AddReference(ctx, "x", " ", filepath.Join(dir, "bass-heavy.wav"))
	assert.ErrorIs(t, err, audio.ErrInvalidParameter)
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	app := newTestApp(t)

	report, err := app.Analyze(writeTone(t, dir, "tone.wav", 220, 2, 22050))
	require.NoError(t, err)
	assert.Equal(t, 22050, report.SampleRate)
	assert.InDelta(t, 1.0, report.Duration, 1e-9)
	assert.NotNil(t, report.Quality)
}

func TestPresetFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"presets.yaml", "presets.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, ExportPresetFile(path, preset.Builtins()))

		file, err := LoadPresetFile(path)
		require.NoError(t, err, name)
		assert.Len(t, file.Presets, len(preset.Builtins()))

		table, err := file.Apply(preset.Table{})
		require.NoError(t, err, name)
		for genre, cfg := range preset.Builtins() {
			require.Contains(t, table, genre)
			assert.Equal(t, cfg.Stereo, table[genre].Stereo, genre)
			assert.InDeltaSlice(t, cfg.TargetCurve[:], table[genre].TargetCurve[:], 1e-9, genre)
		}
	}
}

func TestPresetFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
presets:
  - name: loud pop
    scope:
      genre: " POP "
    target_curve: [2, 2, 1, 1, 1, 1, 2]
    compression:
      threshold_db: -20
      ratio: 4
      attack_ms: 5
      release_ms: 120
    sidechain:
      enabled: true
      knee_db: 6
      max_reduction_db: 9
    stereo:
      width: 1.4
`), 0644))

	file, err := LoadPresetFile(path)
	require.NoError(t, err)
	table, err := file.Apply(preset.Builtins())
	require.NoError(t, err)

	pop := table[preset.GenrePop]
	assert.Equal(t, "loud pop", pop.Name)
	assert.Equal(t, preset.BuiltinID(preset.GenrePop), pop.ID)
	assert.Equal(t, store.OriginPreset, pop.Origin)
	assert.Equal(t, 1.4, pop.Stereo.Width)
	assert.InDelta(t, 0.2, pop.TargetCurve[0], 1e-12)

	_, err = LoadPresetFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := &PresetFile{Presets: []*store.MixingConfiguration{{Name: "no genre"}}}
	_, err = bad.Apply(preset.Builtins())
	assert.Error(t, err)
}

func TestWriteOutputSanitizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	data := map[string]any{
		"peak":   math.Inf(-1),
		"values": []float64{1, math.NaN()},
	}
	require.NoError(t, WriteOutput(data, "json", path, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 0.0, decoded["peak"])
}

func TestMixFilesBatch(t *testing.T) {
	dir := t.TempDir()
	app := newTestApp(t)
	app.config.Output.Directory = filepath.Join(dir, "mixes")

	vocals := writeTone(t, dir, "vocals.wav", 440, 1, 22050)
	music := writeTone(t, dir, "music.wav", 110, 2, 22050)
	jobs := []MixFiles{
		{VocalsPath: vocals, MusicPath: music, Genre: "pop", OutputPath: "a.wav"},
		{VocalsPath: filepath.Join(dir, "missing.wav"), MusicPath: music, Genre: "pop"},
		{VocalsPath: vocals, MusicPath: music, Genre: "polka"},
		{VocalsPath: vocals, MusicPath: music, Genre: "jazz"},
	}

	items, summary := app.MixFilesBatch(context.Background(), jobs)
	require.Len(t, items, len(jobs))
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
	assert.NoError(t, items[0].Err)
	assert.Error(t, items[1].Err)
	assert.ErrorIs(t, items[2].Err, audio.ErrUnknownGenre)
	assert.Nil(t, items[2].Result)
	assert.Equal(t, preset.GenreJazz, items[3].Result.Configuration.Scope.Genre)

	_, err := os.Stat(filepath.Join(dir, "mixes", "a.wav"))
	assert.NoError(t, err)

	report := app.MixReport(items[0].Result)
	assert.Equal(t, items[0].Result.ID, report["mix_id"])
}
