package app

import (
	"sync"
	"syscall"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/tunein/go-logging/v7/pkg/logger"
	"github.com/tunein/go-logging/v7/pkg/logger/logtypes"
	"github.com/tunein/go-logging/v7/pkg/rootcollector"
	"github.com/tunein/go-logging/v7/pkg/rootlogger"

	"github.com/RyanBlaney/mixdown/configs"
	"github.com/RyanBlaney/mixdown/internal/mixing"
	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// metricsCollector sends per-mix runtime metrics to rootcollector
type metricsCollector struct {
	config    configs.MetricsConfig
	logger    logging.Logger
	configure sync.Once
}

func newMetricsCollector(config configs.MetricsConfig, logger logging.Logger) *metricsCollector {
	return &metricsCollector{config: config, logger: logger}
}

// recordMix emits duration, score and outcome metrics for one mix
func (m *metricsCollector) recordMix(genre string, result *mixing.MixResult, err error) {
	if m == nil || !m.config.Enabled {
		return
	}

	m.configure.Do(func() {
		err := rootlogger.Configure(logger.LogOptions{
			Out:          m.config.LogFile,
			ReopenSignal: syscall.SIGHUP,
			Level:        logtypes.InfoLevel,
		})
		if err != nil {
			m.logger.Error(err, "Failed configuring metrics log writer")
		}
	})

	tags := []string{"genre:" + genre}
	if err != nil {
		kind := string(audio.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		rootcollector.Metric("mixdown.mix.failed", 1, append(tags, "kind:"+kind))
		return
	}

	tags = append(tags,
		"source:"+string(result.ConfigSource),
		"signal_mode:"+string(result.SignalMode),
	)
	rootcollector.Metric("mixdown.mix.duration.milliseconds", result.Duration.Milliseconds(), tags)
	rootcollector.Metric("mixdown.mix.mos.milli", int64(result.Quality.MOS*1000), tags)
	rootcollector.Metric("mixdown.mix.intelligibility.milli", int64(result.Quality.Intelligibility*1000), tags)
	if len(result.Warnings) > 0 {
		rootcollector.Metric("mixdown.mix.warnings", int64(len(result.Warnings)), tags)
	}
}
