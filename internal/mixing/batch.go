package mixing

import (
	"context"
	"runtime"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/sourcegraph/conc/pool"
)

// BatchItem is the outcome of one request of a batch
type BatchItem struct {
	Index  int        `json:"index"`
	Result *MixResult `json:"result,omitempty"`
	Err    error      `json:"-"`
}

// BatchSummary counts the outcomes of a batch
type BatchSummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// MixBatch mixes independent requests concurrently with at most maxWorkers
// in flight. Items come back in request order; one failure does not stop
// the others.
func (o *Orchestrator) MixBatch(ctx context.Context, reqs []*Request, maxWorkers int) ([]BatchItem, BatchSummary) {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	start := time.Now()
	items := make([]BatchItem, len(reqs))

	p := pool.New().WithMaxGoroutines(maxWorkers)
	for i, req := range reqs {
		p.Go(func() {
			result, err := o.Mix(ctx, req)
			items[i] = BatchItem{Index: i, Result: result, Err: err}
		})
	}
	p.Wait()

	summary := BatchSummary{Total: len(reqs), Duration: time.Since(start)}
	for _, item := range items {
		if item.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	o.logger.Info("Batch completed", logging.Fields{
		"total":       summary.Total,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"workers":     maxWorkers,
		"duration_ms": summary.Duration.Milliseconds(),
	})
	return items, summary
}
