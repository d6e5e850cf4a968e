package domain

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PeriodStatistic summarises every present sample that resolved to one
// canonical period. Min, Max and StdDev are only set for spatial series.
type PeriodStatistic struct {
	Period Period `json:"period"`
	Count  int    `json:"count"`
	Mean   Value  `json:"mean"`
	Min    Value  `json:"min,omitzero"`
	Max    Value  `json:"max,omitzero"`
	StdDev Value  `json:"std_dev,omitzero"`
}

// Accumulator pools individual samples and ignores absent ones. It is the
// only place skip semantics live; every aggregation path goes through it.
//
// Samples are kept rather than folded into running sums so that pooling two
// partitions with Merge is exactly equivalent to adding the samples directly.
type Accumulator struct {
	values  []float64
	weights []float64
}

// Add contributes a sample with weight 1.
func (a *Accumulator) Add(v Value) bool {
	return a.AddWeighted(v, 1)
}

// AddWeighted contributes a sample with the given weight. Absent values,
// non-finite values and non-positive weights are skipped; the return value
// reports whether the sample was counted.
func (a *Accumulator) AddWeighted(v Value, w float64) bool {
	if !v.Valid || math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
		return false
	}
	if !(w > 0) || math.IsInf(w, 0) {
		return false
	}
	a.values = append(a.values, v.Float)
	a.weights = append(a.weights, w)
	return true
}

// Merge pools another accumulator's samples into a.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	a.values = append(a.values, other.values...)
	a.weights = append(a.weights, other.weights...)
}

// Count is the number of present samples.
func (a *Accumulator) Count() int { return len(a.values) }

// Statistic reduces the pooled samples. With zero samples the mean is absent.
// Standard deviation is the weighted population deviation.
func (a *Accumulator) Statistic(period Period, spatial bool) PeriodStatistic {
	st := PeriodStatistic{Period: period, Count: len(a.values)}
	if st.Count == 0 {
		return st
	}

	mean, std := stat.PopMeanStdDev(a.values, a.weights)
	st.Mean = Present(mean)
	if spatial {
		st.Min = Present(floats.Min(a.values))
		st.Max = Present(floats.Max(a.values))
		st.StdDev = Present(std)
	}
	return st
}
