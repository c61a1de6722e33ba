package convergence

// plateauTau is the number of consecutive rounds a dimension's EMA must move
// by less than plateauThreshold before that dimension is considered
// plateaued.
const plateauTau = 3

// DimensionSummary is one dimension's derived state after an Observe call.
type DimensionSummary struct {
	Dimension     string
	EMA           float64
	RawScore      float64
	PlateauStreak int
	Plateaued     bool
	Pressure      float64 // weight * (1 - EMA): how much attention this dimension still needs
}

// Summary is the full convergence picture for a scope after an Observe call.
type Summary struct {
	Round                   int
	Overall                 float64 // weighted mean of dimension EMAs
	Dimensions              map[string]DimensionSummary
	Monotonic               bool // true iff every dimension's EMA has been non-decreasing across all rounds so far
	Plateaued               bool // true iff every dimension has plateaued
	Slope                   float64
	EstimatedRoundsToTarget *int
}

func (t *Tracker) summarize(weights map[string]float64) Summary {
	dims := make(map[string]DimensionSummary, len(t.dims))

	var weightedSum, weightSum float64
	monotonic := true
	plateaued := true

	for name, state := range t.dims {
		w := 1.0
		if weights != nil {
			if ww, ok := weights[name]; ok {
				w = ww
			}
		}

		dims[name] = DimensionSummary{
			Dimension:     name,
			EMA:           state.EMA,
			RawScore:      state.LastRawScore,
			PlateauStreak: state.PlateauStreak,
			Plateaued:     state.PlateauStreak >= plateauTau,
			Pressure:      w * (1 - state.EMA),
		}

		weightedSum += w * state.EMA
		weightSum += w

		if !isMonotonic(state.History) {
			monotonic = false
		}
		if state.PlateauStreak < plateauTau {
			plateaued = false
		}
	}

	overall := 0.0
	if weightSum > 0 {
		overall = weightedSum / weightSum
	}

	slope := overallSlope(t.dims, weights)

	var eta *int
	if slope > 0 {
		roundsToOne := int((1 - overall) / slope)
		if roundsToOne < 0 {
			roundsToOne = 0
		}
		eta = &roundsToOne
	}

	return Summary{
		Round:                   t.rounds,
		Overall:                 overall,
		Dimensions:              dims,
		Monotonic:               monotonic,
		Plateaued:               plateaued,
		Slope:                   slope,
		EstimatedRoundsToTarget: eta,
	}
}

// isMonotonic reports whether series is non-decreasing, allowing float
// noise up to 1e-9.
func isMonotonic(series []float64) bool {
	for i := 1; i < len(series); i++ {
		if series[i] < series[i-1]-1e-9 {
			return false
		}
	}
	return true
}

// overallSlope computes the least-squares linear-regression slope of the
// weighted-overall EMA series across rounds observed so far.
func overallSlope(dims map[string]*DimensionState, weights map[string]float64) float64 {
	n := 0
	for _, state := range dims {
		if len(state.History) > n {
			n = len(state.History)
		}
	}
	if n < 2 {
		return 0
	}

	overallSeries := make([]float64, n)
	var weightSum float64
	for name, state := range dims {
		w := 1.0
		if weights != nil {
			if ww, ok := weights[name]; ok {
				w = ww
			}
		}
		weightSum += w
		for i := 0; i < n; i++ {
			idx := i
			if idx >= len(state.History) {
				idx = len(state.History) - 1
			}
			overallSeries[i] += w * state.History[idx]
		}
	}
	if weightSum == 0 {
		return 0
	}
	for i := range overallSeries {
		overallSeries[i] /= weightSum
	}

	return linearRegressionSlope(overallSeries)
}

// linearRegressionSlope fits y = a + b*x over x = 0..len(y)-1 and returns b.
func linearRegressionSlope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
