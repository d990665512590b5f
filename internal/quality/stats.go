package quality

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ScoreStats summarizes a series of scores
type ScoreStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// CalculateStats computes summary statistics; weights may be nil
func CalculateStats(data, weights []float64) *ScoreStats {
	if len(data) == 0 {
		return &ScoreStats{Count: 0}
	}

	sortedData := slices.Clone(data)
	slices.Sort(sortedData)

	stats := &ScoreStats{
		Count:  len(data),
		Min:    sortedData[0],
		Max:    sortedData[len(sortedData)-1],
		Median: percentile(sortedData, 50),
		P95:    percentile(sortedData, 95),
	}

	stats.Mean = stat.Mean(data, weights)
	if len(data) > 1 {
		stats.StdDev = math.Sqrt(stat.PopVariance(data, weights))
	}

	return sanitizeStats(stats)
}

// sanitizeStats removes infinite and NaN values to prevent JSON serialization errors
func sanitizeStats(stats *ScoreStats) *ScoreStats {
	for _, v := range []*float64{&stats.Mean, &stats.Median, &stats.P95, &stats.Min, &stats.Max, &stats.StdDev} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	return stats
}

// percentile calculates the specified percentile of sorted data
func percentile(sortedData []float64, p float64) float64 {
	if len(sortedData) == 0 {
		return 0
	}

	if len(sortedData) == 1 {
		return sortedData[0]
	}

	index := (p / 100.0) * float64(len(sortedData)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sortedData[lower]
	}

	weight := index - float64(lower)
	return sortedData[lower]*(1-weight) + sortedData[upper]*weight
}
