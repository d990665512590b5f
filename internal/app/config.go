package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/mixdown/configs"
	"github.com/RyanBlaney/mixdown/internal/feedback"
	"github.com/RyanBlaney/mixdown/internal/mixing"
	"github.com/RyanBlaney/mixdown/internal/preset"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/dynamics"
	"github.com/RyanBlaney/mixdown/pkg/audio/eq"
)

// PresetFile is the on-disk form of genre preset overrides
type PresetFile struct {
	Presets []*store.MixingConfiguration `json:"presets" yaml:"presets"`
}

// LoadPresetFile loads genre preset overrides from a YAML or JSON file
func LoadPresetFile(filePath string) (*PresetFile, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("preset file does not exist: %s", filePath)
	}

	// Determine file format
	ext := filepath.Ext(filePath)
	switch ext {
	case ".yaml", ".yml":
		return loadPresetFileFromYAML(filePath)
	case ".json":
		return loadPresetFileFromJSON(filePath)
	default:
		// Try YAML first, then JSON
		if file, err := loadPresetFileFromYAML(filePath); err == nil {
			return file, nil
		}
		return loadPresetFileFromJSON(filePath)
	}
}

// loadPresetFileFromYAML loads presets from a YAML file
func loadPresetFileFromYAML(filePath string) (*PresetFile, error) {
	data, err := readFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML preset file: %w", err)
	}

	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML preset file: %w", err)
	}
	return &file, nil
}

// loadPresetFileFromJSON loads presets from a JSON file
func loadPresetFileFromJSON(filePath string) (*PresetFile, error) {
	data, err := readFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON preset file: %w", err)
	}

	var file PresetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse JSON preset file: %w", err)
	}
	return &file, nil
}

func readFile(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// Apply overlays the file's presets on table. Genres are canonicalized,
// missing identifiers get the built-in id of their genre and every preset
// must validate.
func (f *PresetFile) Apply(table preset.Table) (preset.Table, error) {
	out := table.Clone()
	for i, cfg := range f.Presets {
		if cfg == nil {
			continue
		}
		override := cfg.Clone()
		genre := preset.Canonicalize(override.Scope.Genre)
		if genre == "" {
			return nil, fmt.Errorf("preset %d has no genre", i)
		}
		override.Scope.Genre = genre
		if override.ID == "" {
			override.ID = preset.BuiltinID(genre)
		}
		if override.Name == "" {
			override.Name = genre
		}
		if override.Origin == "" {
			override.Origin = store.OriginPreset
		}
		if override.Version == 0 {
			override.Version = 1
		}
		override.TargetCurve = override.TargetCurve.Normalized()
		if err := override.Validate(); err != nil {
			return nil, fmt.Errorf("invalid preset for genre %s: %w", genre, err)
		}
		out[genre] = override
	}
	return out, nil
}

// ExportPresetFile writes a preset table as YAML or JSON depending on the extension
func ExportPresetFile(filePath string, table preset.Table) error {
	file := PresetFile{}
	for _, genre := range table.Genres() {
		file.Presets = append(file.Presets, table[genre])
	}

	var (
		data []byte
		err  error
	)
	switch filepath.Ext(filePath) {
	case ".json":
		data, err = json.MarshalIndent(file, "", "  ")
	default:
		data, err = yaml.Marshal(file)
	}
	if err != nil {
		return fmt.Errorf("failed to encode presets: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}
	return nil
}

// mixingConfig converts application settings into pipeline policies
func mixingConfig(c *configs.Config) *mixing.Config {
	return &mixing.Config{
		HeadroomDB:   c.Mixing.HeadroomDB,
		ApplyVocalEQ: c.Mixing.ApplyVocalEQ,
		EnhanceVocal: c.Mixing.EnhanceVocals,
		Analysis:     analysisConfig(c),
		EQ: &eq.Options{
			ThresholdDB:   c.EQ.ThresholdDB,
			MaxGainDB:     c.EQ.MaxGainDB,
			Strength:      c.EQ.Strength,
			NoisyStrength: c.EQ.NoisyStrength,
		},
		Master: dynamics.MasterParams{
			TargetRMSDB: c.Mastering.TargetRMSDB,
			MaxGainDB:   c.Mastering.MaxGainDB,
			Limiter: dynamics.LimiterParams{
				CeilingDBFS: c.Mastering.CeilingDBFS,
				LookaheadMs: c.Mastering.LookaheadMs,
				ReleaseMs:   c.Mastering.ReleaseMs,
			},
		},
	}
}

func analysisConfig(c *configs.Config) *analysis.Config {
	return &analysis.Config{
		WindowSize: c.Audio.WindowSize,
		HopSize:    c.Audio.HopSize,
	}
}

func feedbackConfig(c *configs.Config) *feedback.Config {
	return &feedback.Config{
		MinEntries:   c.Feedback.MinEntries,
		Margin:       c.Feedback.Margin,
		NeutralPrior: c.Feedback.NeutralPrior,
	}
}

func cacheConfig(c *configs.Config) *store.CacheConfig {
	return &store.CacheConfig{
		Size: c.Cache.Size,
		TTL:  c.Cache.TTL,
	}
}
