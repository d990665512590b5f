package configs

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsRoundTripThroughViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	config := &Config{}
	require.NoError(t, v.Unmarshal(config))
	require.NoError(t, ValidateConfig(config))

	defaults := GetDefaultConfig()
	assert.Equal(t, defaults.Mixing, config.Mixing)
	assert.Equal(t, defaults.Mastering, config.Mastering)
	assert.Equal(t, defaults.EQ, config.EQ)
	assert.Equal(t, defaults.Feedback, config.Feedback)
	assert.Equal(t, 5*time.Minute, config.Cache.TTL)
	assert.Equal(t, "sqlite", config.Store.Driver)
}

func TestSetDefaultsKeepsExplicitValues(t *testing.T) {
	v := viper.New()
	v.Set("mixing.headroom_db", 6.0)
	v.Set("store.driver", "memory")
	SetDefaults(v)

	assert.Equal(t, 6.0, v.GetFloat64("mixing.headroom_db"))
	assert.Equal(t, "memory", v.GetString("store.driver"))
	assert.Equal(t, -0.3, v.GetFloat64("mastering.ceiling_dbfs"))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"window not power of two", func(c *Config) { c.Audio.WindowSize = 1000 }},
		{"hop larger than window", func(c *Config) { c.Audio.HopSize = 4096 }},
		{"negative headroom", func(c *Config) { c.Mixing.HeadroomDB = -1 }},
		{"positive ceiling", func(c *Config) { c.Mastering.CeilingDBFS = 0.5 }},
		{"strength above one", func(c *Config) { c.EQ.Strength = 1.5 }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"empty cache", func(c *Config) { c.Cache.Size = 0 }},
		{"too few feedback entries", func(c *Config) { c.Feedback.MinEntries = 2 }},
		{"odd bit depth", func(c *Config) { c.Output.BitDepth = 12 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)
			assert.Error(t, ValidateConfig(config))
		})
	}

	assert.NoError(t, ValidateConfig(DevelopmentConfig()))
}
