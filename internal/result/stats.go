package result

import (
	"math"
	"sort"
)

// QueryStats summarizes one engine's runs of one query. Timing fields
// cover successful runs only.
type QueryStats struct {
	Counts
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Max    float64 `json:"max"`
	Stddev float64 `json:"stddev"`
}

func (s QueryStats) HasTimings() bool { return s.Success > 0 }

// ComputeStats derives min/median/mean/max and the sample standard
// deviation of elapsed seconds.
func ComputeStats(samples []float64) QueryStats {
	if len(samples) == 0 {
		return QueryStats{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	stats := QueryStats{
		Counts: Counts{Success: len(sorted)},
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: median(sorted),
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	stats.Mean = sum / float64(len(sorted))

	if len(sorted) > 1 {
		var sumSquares float64
		for _, v := range sorted {
			diff := v - stats.Mean
			sumSquares += diff * diff
		}
		stats.Stddev = math.Sqrt(sumSquares / float64(len(sorted)-1))
	}
	return stats
}

// StatsFor computes QueryStats over a set of runs.
func StatsFor(runs []RunResult) QueryStats {
	var samples []float64
	var counts Counts
	for _, r := range runs {
		counts.Add(r)
		if r.Status == StatusSuccess && r.ElapsedSeconds != nil {
			samples = append(samples, *r.ElapsedSeconds)
		}
	}
	stats := ComputeStats(samples)
	stats.Counts = counts
	return stats
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
