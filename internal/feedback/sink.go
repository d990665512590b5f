package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/mixdown/internal/mixing"
	"github.com/RyanBlaney/mixdown/internal/store"
)

// RecordMix persists the quality metrics of a completed mix and counts one
// use of its configuration. It implements mixing.Sink.
func (l *Loop) RecordMix(ctx context.Context, rec mixing.MixRecord) error {
	if rec.Configuration == nil || rec.Quality == nil {
		return errors.New("mix record is missing its configuration or metrics")
	}

	var errs []error
	if err := l.store.SaveQuality(ctx, &store.QualityRecord{
		MixID:    rec.MixID,
		ConfigID: rec.Configuration.ID,
		Genre:    rec.Genre,
		Metrics:  *rec.Quality,
	}); err != nil {
		errs = append(errs, fmt.Errorf("failed to save quality metrics: %w", err))
	}
	if err := l.store.IncrementUsage(ctx, rec.Configuration.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to increment usage: %w", err))
	}

	if len(errs) == 0 {
		l.logger.Debug("Recorded mix", logging.Fields{
			"mix_id":    rec.MixID,
			"config_id": rec.Configuration.ID,
			"genre":     rec.Genre,
			"mos":       rec.Quality.MOS,
		})
	}
	return errors.Join(errs...)
}

var _ mixing.Sink = (*Loop)(nil)
