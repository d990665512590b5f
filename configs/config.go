package configs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose"`
	LogLevel     string `mapstructure:"log_level"`
	OutputFormat string `mapstructure:"output_format"`
	DataDir      string `mapstructure:"data_dir"`

	// Analysis window configuration
	Audio AudioConfig `mapstructure:"audio"`

	// Mixing pipeline policies
	Mixing MixingConfig `mapstructure:"mixing"`

	// Final loudness and limiting
	Mastering MasteringConfig `mapstructure:"mastering"`

	// Dynamic EQ settings
	EQ EQConfig `mapstructure:"eq"`

	// Persistence
	Store StoreConfig `mapstructure:"store"`

	// Configuration read cache
	Cache CacheConfig `mapstructure:"cache"`

	// Feedback loop policy
	Feedback FeedbackConfig `mapstructure:"feedback"`

	// Output configuration
	Output OutputConfig `mapstructure:"output"`

	// Runtime metrics
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AudioConfig contains analysis settings
type AudioConfig struct {
	WindowSize int `mapstructure:"window_size"`
	HopSize    int `mapstructure:"hop_size"`
}

// MixingConfig contains mixing pipeline settings
type MixingConfig struct {
	HeadroomDB    float64 `mapstructure:"headroom_db"`
	ApplyVocalEQ  bool    `mapstructure:"apply_vocal_eq"`
	EnhanceVocals bool    `mapstructure:"enhance_vocals"`
	AllowFallback bool    `mapstructure:"allow_fallback"`
	MaxWorkers    int     `mapstructure:"max_workers"`
	PresetsFile   string  `mapstructure:"presets_file"`
}

// MasteringConfig contains loudness and limiter settings
type MasteringConfig struct {
	TargetRMSDB float64 `mapstructure:"target_rms_db"`
	MaxGainDB   float64 `mapstructure:"max_gain_db"`
	CeilingDBFS float64 `mapstructure:"ceiling_dbfs"`
	LookaheadMs float64 `mapstructure:"lookahead_ms"`
	ReleaseMs   float64 `mapstructure:"release_ms"`
}

// EQConfig contains dynamic EQ settings
type EQConfig struct {
	ThresholdDB   float64 `mapstructure:"threshold_db"`
	MaxGainDB     float64 `mapstructure:"max_gain_db"`
	Strength      float64 `mapstructure:"strength"`
	NoisyStrength float64 `mapstructure:"noisy_strength"`
}

// StoreConfig selects the repository backend
type StoreConfig struct {
	// Driver is "sqlite" or "memory"
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// CacheConfig contains read-through cache settings
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// FeedbackConfig contains optimization policy settings
type FeedbackConfig struct {
	MinEntries   int     `mapstructure:"min_entries"`
	Margin       float64 `mapstructure:"margin"`
	NeutralPrior float64 `mapstructure:"neutral_prior"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Precision int    `mapstructure:"precision"`
	BitDepth  int    `mapstructure:"bit_depth"`
	Directory string `mapstructure:"directory"`
}

// MetricsConfig contains runtime metric settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogFile string `mapstructure:"log_file"`
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if config.Audio.WindowSize <= 0 || config.Audio.WindowSize&(config.Audio.WindowSize-1) != 0 {
		return fmt.Errorf("audio window size must be a positive power of two")
	}

	if config.Audio.HopSize <= 0 || config.Audio.HopSize > config.Audio.WindowSize {
		return fmt.Errorf("audio hop size must be between 1 and the window size")
	}

	if config.Mixing.HeadroomDB < 0 {
		return fmt.Errorf("mixing headroom cannot be negative")
	}

	if config.Mastering.CeilingDBFS > 0 {
		return fmt.Errorf("mastering ceiling must not exceed 0 dBFS")
	}

	if config.EQ.Strength < 0 || config.EQ.Strength > 1 || config.EQ.NoisyStrength < 0 || config.EQ.NoisyStrength > 1 {
		return fmt.Errorf("eq strengths must be between 0 and 1")
	}

	switch config.Store.Driver {
	case "sqlite":
		if config.Store.Path == "" {
			return fmt.Errorf("sqlite store requires a path")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}

	if config.Cache.Enabled && (config.Cache.Size <= 0 || config.Cache.TTL <= 0) {
		return fmt.Errorf("cache size and ttl must be positive")
	}

	if config.Feedback.MinEntries < 3 {
		return fmt.Errorf("feedback minimum entries cannot be below 3")
	}

	switch config.Output.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported output bit depth %d", config.Output.BitDepth)
	}

	return nil
}
