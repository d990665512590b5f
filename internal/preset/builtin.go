package preset

import (
	"maps"
	"slices"
	"time"

	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio/eq"
	"github.com/RyanBlaney/mixdown/pkg/audio/stereo"
)

// FallbackName names the generic profile used for unknown genres
const FallbackName = "default"

// Table maps canonical genre names to their base configuration
type Table map[string]*store.MixingConfiguration

// Genres returns the genres of the table in sorted order
func (t Table) Genres() []string {
	return slices.Sorted(maps.Keys(t))
}

// Clone returns a deep copy of the table
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for genre, cfg := range t {
		out[genre] = cfg.Clone()
	}
	return out
}

// BuiltinID returns the stable identifier of a built-in configuration
func BuiltinID(genre string) string {
	return "builtin-" + genre
}

var builtinEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var vocalBands = []eq.Band{
	{Type: eq.HighPass, Frequency: 90, Q: 0.707},
	{Type: eq.Peaking, Frequency: 3000, GainDB: 1.5, Q: 1.0},
}

func builtin(genre string, curve eq.Curve, comp store.Compression, maxReduction float64, s stereo.Settings, bands []eq.Band) *store.MixingConfiguration {
	return &store.MixingConfiguration{
		ID:           BuiltinID(genre),
		Name:         genre + " (built-in)",
		Scope:        store.Scope{Genre: genre},
		TargetCurve:  curve.Normalized(),
		EQBands:      bands,
		VocalEQBands: slices.Clone(vocalBands),
		Compression:  comp,
		Sidechain:    store.Sidechain{Enabled: true, KneeDB: 6, MaxReductionDB: maxReduction},
		Stereo:       s,
		Origin:       store.OriginBuiltin,
		Version:      1,
		CreatedAt:    builtinEpoch,
	}
}

// Builtins returns a fresh copy of the static per-genre table, including the
// generic fallback profile under FallbackName
func Builtins() Table {
	return Table{
		GenrePop: builtin(GenrePop,
			eq.Curve{0.06, 0.22, 0.14, 0.28, 0.14, 0.11, 0.05},
			store.Compression{ThresholdDB: -22, Ratio: 3, AttackMs: 10, ReleaseMs: 150}, 8,
			stereo.Settings{Width: 1.2, Reverb: stereo.ReverbParams{RoomSize: 0.4, WetMix: 0.12, Damping: 0.5}},
			nil),
		GenreRock: builtin(GenreRock,
			eq.Curve{0.07, 0.24, 0.16, 0.27, 0.14, 0.09, 0.03},
			store.Compression{ThresholdDB: -20, Ratio: 4, AttackMs: 5, ReleaseMs: 120}, 9,
			stereo.Settings{Width: 1.3, Reverb: stereo.ReverbParams{RoomSize: 0.5, WetMix: 0.1, Damping: 0.4}},
			nil),
		GenreHipHop: builtin(GenreHipHop,
			eq.Curve{0.14, 0.30, 0.12, 0.22, 0.11, 0.08, 0.03},
			store.Compression{ThresholdDB: -24, Ratio: 4, AttackMs: 5, ReleaseMs: 100}, 10,
			stereo.Settings{Width: 1.1, Reverb: stereo.ReverbParams{RoomSize: 0.2, WetMix: 0.06, Damping: 0.6}},
			[]eq.Band{{Type: eq.LowShelf, Frequency: 80, GainDB: 2, Q: 0.707}}),
		GenreJazz: builtin(GenreJazz,
			eq.Curve{0.04, 0.20, 0.18, 0.30, 0.15, 0.10, 0.03},
			store.Compression{ThresholdDB: -28, Ratio: 2, AttackMs: 20, ReleaseMs: 250}, 5,
			stereo.Settings{Width: 1.0, Reverb: stereo.ReverbParams{RoomSize: 0.6, WetMix: 0.18, Damping: 0.3}},
			nil),
		GenreElectronic: builtin(GenreElectronic,
			eq.Curve{0.12, 0.26, 0.12, 0.22, 0.12, 0.11, 0.05},
			store.Compression{ThresholdDB: -22, Ratio: 5, AttackMs: 5, ReleaseMs: 80}, 12,
			stereo.Settings{
				Width:  1.5,
				Reverb: stereo.ReverbParams{RoomSize: 0.5, WetMix: 0.1, Damping: 0.4},
				Delay:  stereo.DelayParams{DelayMs: 375, Feedback: 0.3, WetMix: 0.12},
			},
			[]eq.Band{{Type: eq.HighShelf, Frequency: 12000, GainDB: 1.5, Q: 0.707}}),
		GenreCountry: builtin(GenreCountry,
			eq.Curve{0.05, 0.20, 0.17, 0.30, 0.15, 0.10, 0.03},
			store.Compression{ThresholdDB: -24, Ratio: 3, AttackMs: 10, ReleaseMs: 180}, 7,
			stereo.Settings{Width: 1.15, Reverb: stereo.ReverbParams{RoomSize: 0.35, WetMix: 0.1, Damping: 0.5}},
			nil),
		GenreClassical: builtin(GenreClassical,
			eq.Curve{0.04, 0.18, 0.18, 0.30, 0.16, 0.10, 0.04},
			store.Compression{ThresholdDB: -30, Ratio: 1.5, AttackMs: 30, ReleaseMs: 400}, 3,
			stereo.Settings{Width: 1.0, Reverb: stereo.ReverbParams{RoomSize: 0.75, WetMix: 0.22, Damping: 0.3}},
			nil),
		GenreRnB: builtin(GenreRnB,
			eq.Curve{0.09, 0.26, 0.15, 0.26, 0.12, 0.09, 0.03},
			store.Compression{ThresholdDB: -24, Ratio: 3, AttackMs: 10, ReleaseMs: 200}, 8,
			stereo.Settings{Width: 1.25, Reverb: stereo.ReverbParams{RoomSize: 0.45, WetMix: 0.14, Damping: 0.5}},
			nil),
		FallbackName: builtin(FallbackName,
			eq.Curve{0.06, 0.22, 0.15, 0.28, 0.14, 0.11, 0.04},
			store.Compression{ThresholdDB: -24, Ratio: 3, AttackMs: 10, ReleaseMs: 150}, 8,
			stereo.Settings{Width: 1.1, Reverb: stereo.ReverbParams{RoomSize: 0.3, WetMix: 0.08, Damping: 0.5}},
			nil),
	}
}
