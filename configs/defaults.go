package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults sets default configuration values for all components
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "mixdown")

	// Application defaults
	if !v.IsSet("verbose") {
		v.SetDefault("verbose", false)
	}
	if !v.IsSet("log_level") {
		v.SetDefault("log_level", "info")
	}
	if !v.IsSet("output_format") {
		v.SetDefault("output_format", "table")
	}
	if !v.IsSet("data_dir") {
		v.SetDefault("data_dir", dataDir)
	}

	// Analysis defaults
	if !v.IsSet("audio.window_size") {
		v.SetDefault("audio.window_size", 2048)
	}
	if !v.IsSet("audio.hop_size") {
		v.SetDefault("audio.hop_size", 1024)
	}

	setMixingDefaults(v)
	setPersistenceDefaults(v, dataDir)

	// Output defaults
	if !v.IsSet("output.precision") {
		v.SetDefault("output.precision", 3)
	}
	if !v.IsSet("output.bit_depth") {
		v.SetDefault("output.bit_depth", 16)
	}
	if !v.IsSet("output.directory") {
		v.SetDefault("output.directory", ".")
	}

	// Metrics defaults
	if !v.IsSet("metrics.enabled") {
		v.SetDefault("metrics.enabled", false)
	}
	if !v.IsSet("metrics.log_file") {
		v.SetDefault("metrics.log_file", "/tmp/mixdown-metrics.log")
	}
}

// setMixingDefaults sets the signal chain defaults
func setMixingDefaults(v *viper.Viper) {
	if !v.IsSet("mixing.headroom_db") {
		v.SetDefault("mixing.headroom_db", 3.0)
	}
	if !v.IsSet("mixing.apply_vocal_eq") {
		v.SetDefault("mixing.apply_vocal_eq", true)
	}
	if !v.IsSet("mixing.enhance_vocals") {
		v.SetDefault("mixing.enhance_vocals", true)
	}
	if !v.IsSet("mixing.allow_fallback") {
		v.SetDefault("mixing.allow_fallback", false)
	}
	if !v.IsSet("mixing.max_workers") {
		v.SetDefault("mixing.max_workers", 4)
	}
	if !v.IsSet("mixing.presets_file") {
		v.SetDefault("mixing.presets_file", "")
	}

	if !v.IsSet("mastering.target_rms_db") {
		v.SetDefault("mastering.target_rms_db", -14.0)
	}
	if !v.IsSet("mastering.max_gain_db") {
		v.SetDefault("mastering.max_gain_db", 12.0)
	}
	if !v.IsSet("mastering.ceiling_dbfs") {
		v.SetDefault("mastering.ceiling_dbfs", -0.3)
	}
	if !v.IsSet("mastering.lookahead_ms") {
		v.SetDefault("mastering.lookahead_ms", 5.0)
	}
	if !v.IsSet("mastering.release_ms") {
		v.SetDefault("mastering.release_ms", 80.0)
	}

	if !v.IsSet("eq.threshold_db") {
		v.SetDefault("eq.threshold_db", 3.0)
	}
	if !v.IsSet("eq.max_gain_db") {
		v.SetDefault("eq.max_gain_db", 4.0)
	}
	if !v.IsSet("eq.strength") {
		v.SetDefault("eq.strength", 0.5)
	}
	if !v.IsSet("eq.noisy_strength") {
		v.SetDefault("eq.noisy_strength", 0.3)
	}
}

// setPersistenceDefaults sets store, cache and feedback defaults
func setPersistenceDefaults(v *viper.Viper, dataDir string) {
	if !v.IsSet("store.driver") {
		v.SetDefault("store.driver", "sqlite")
	}
	if !v.IsSet("store.path") {
		v.SetDefault("store.path", filepath.Join(dataDir, "mixdown.db"))
	}

	if !v.IsSet("cache.enabled") {
		v.SetDefault("cache.enabled", true)
	}
	if !v.IsSet("cache.size") {
		v.SetDefault("cache.size", 256)
	}
	if !v.IsSet("cache.ttl") {
		v.SetDefault("cache.ttl", 5*time.Minute)
	}

	if !v.IsSet("feedback.min_entries") {
		v.SetDefault("feedback.min_entries", 3)
	}
	if !v.IsSet("feedback.margin") {
		v.SetDefault("feedback.margin", 0.5)
	}
	if !v.IsSet("feedback.neutral_prior") {
		v.SetDefault("feedback.neutral_prior", 3.0)
	}
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "mixdown")

	return &Config{
		// Application settings defaults
		Verbose:      false,
		LogLevel:     "info",
		OutputFormat: "table",
		DataDir:      dataDir,

		Audio: AudioConfig{
			WindowSize: 2048,
			HopSize:    1024,
		},

		Mixing: MixingConfig{
			HeadroomDB:    3,
			ApplyVocalEQ:  true,
			EnhanceVocals: true,
			MaxWorkers:    4,
		},

		Mastering: MasteringConfig{
			TargetRMSDB: -14,
			MaxGainDB:   12,
			CeilingDBFS: -0.3,
			LookaheadMs: 5,
			ReleaseMs:   80,
		},

		EQ: EQConfig{
			ThresholdDB:   3,
			MaxGainDB:     4,
			Strength:      0.5,
			NoisyStrength: 0.3,
		},

		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dataDir, "mixdown.db"),
		},

		Cache: CacheConfig{
			Enabled: true,
			Size:    256,
			TTL:     5 * time.Minute,
		},

		Feedback: FeedbackConfig{
			MinEntries:   3,
			Margin:       0.5,
			NeutralPrior: 3,
		},

		Output: OutputConfig{
			Precision: 3,
			BitDepth:  16,
			Directory: ".",
		},

		Metrics: MetricsConfig{
			LogFile: "/tmp/mixdown-metrics.log",
		},
	}
}

// DevelopmentConfig keeps everything in memory with verbose logging
func DevelopmentConfig() *Config {
	config := GetDefaultConfig()
	config.Verbose = true
	config.LogLevel = "debug"
	config.Store = StoreConfig{Driver: "memory"}
	config.Cache.Enabled = false
	return config
}
