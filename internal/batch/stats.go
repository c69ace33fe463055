package batch

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the final value of one recorded column across the
// successful runs of a batch.
type Stats struct {
	N    int
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

func summarize(results []RunResult) map[string]Stats {
	finals := make(map[string][]float64)
	for _, r := range results {
		if r.Err != nil || r.Result == nil {
			continue
		}
		for col, v := range r.Result.Final() {
			finals[col] = append(finals[col], v)
		}
	}
	if len(finals) == 0 {
		return nil
	}
	summary := make(map[string]Stats, len(finals))
	for col, vals := range finals {
		s := Stats{
			N:    len(vals),
			Mean: stat.Mean(vals, nil),
			Min:  floats.Min(vals),
			Max:  floats.Max(vals),
		}
		if len(vals) > 1 {
			s.Std = stat.StdDev(vals, nil)
		}
		summary[col] = s
	}
	return summary
}
