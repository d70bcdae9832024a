package scheduler

// Trend classifies the recent behaviour of a run.
type Trend string

const (
	TrendExploring  Trend = "exploring"
	TrendPlateau    Trend = "plateau"
	TrendConverging Trend = "converging"
	TrendConverged  Trend = "converged"
	TrendPremature  Trend = "premature"
)

const (
	convergenceWindow = 5
	plateauVariance   = 1e-6
)

// convergenceMonitor keeps a sliding window of generation-best scores and
// diversity readings.
type convergenceMonitor struct {
	scores    []float64
	diversity []float64
}

func (m *convergenceMonitor) observe(score, diversity float64) {
	m.scores = appendWindow(m.scores, score)
	m.diversity = appendWindow(m.diversity, diversity)
}

func (m *convergenceMonitor) reset() {
	m.scores = m.scores[:0]
	m.diversity = m.diversity[:0]
}

// classify reads the window together with how long the best score has
// been stuck and how far into the generation budget the run is.
func (m *convergenceMonitor) classify(gen, budget, stagnation int, cfg Config) Trend {
	if len(m.scores) < convergenceWindow {
		return TrendExploring
	}
	_, std := meanStdDev(m.scores)
	meanDiv, _ := meanStdDev(m.diversity)
	stuck := stagnation >= 2*cfg.StagnationThreshold
	flat := std*std < plateauVariance
	switch {
	case stuck && meanDiv < cfg.DiversityThreshold && gen < budget/2:
		return TrendPremature
	case stuck && flat:
		return TrendConverged
	case flat:
		return TrendPlateau
	case meanDiv < 2*cfg.DiversityThreshold:
		return TrendConverging
	default:
		return TrendExploring
	}
}

func appendWindow(window []float64, v float64) []float64 {
	window = append(window, v)
	if len(window) > convergenceWindow {
		window = window[len(window)-convergenceWindow:]
	}
	return window
}
