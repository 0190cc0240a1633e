package estimator

// FlatWindowPolicy decides how a window with zero variance is handled. A
// perfectly flat signal can mean a very stable system or a stuck sensor and
// the measurement alone cannot tell them apart.
type FlatWindowPolicy string

const (
	// FlatWindowStable treats a flat window as maximal stability.
	FlatWindowStable FlatWindowPolicy = "stable"
	// FlatWindowFault skips learning on a flat window so the caller can
	// raise a sensor alarm instead.
	FlatWindowFault FlatWindowPolicy = "fault"
)

type Regime string

const (
	RegimeUndersupplied Regime = "undersupplied"
	RegimeOverreacting  Regime = "overreacting"
	RegimeOptimal       Regime = "optimal"
	RegimeDefault       Regime = "default"
)

type Config struct {
	BaseLearningRate float64

	LowerBound float64
	UpperBound float64

	LowMeanThreshold  float64
	HighMeanThreshold float64

	LowStabilityThreshold  float64
	HighStabilityThreshold float64

	OptimalLow  float64
	OptimalHigh float64

	AggressiveMultiplier float64
	DampingFactor        float64
	ConvergenceWeight    float64

	FlatWindowPolicy FlatWindowPolicy
}

// DefaultConfig is tuned for the flow/return spread of a hydronic loop in
// degrees celsius.
func DefaultConfig() Config {
	return Config{
		BaseLearningRate:       0.02,
		LowerBound:             0.3,
		UpperBound:             1.7,
		LowMeanThreshold:       7.0,
		HighMeanThreshold:      15.0,
		LowStabilityThreshold:  0.4,
		HighStabilityThreshold: 0.6,
		OptimalLow:             8.0,
		OptimalHigh:            12.0,
		AggressiveMultiplier:   2.0,
		DampingFactor:          0.95,
		ConvergenceWeight:      0.99,
		FlatWindowPolicy:       FlatWindowStable,
	}
}

type Result struct {
	Mean      float64
	Variance  float64
	Stability float64
	Factor    float64
	Regime    Regime

	// FlatWindow is set when the window had zero variance.
	FlatWindow bool
}

type Estimator struct {
	cfg Config
}

func New(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate computes a stability score for window and folds it into
// previousFactor. It is a pure function: the persisted factor lives with the
// caller and the same inputs always give the same result. The caller is
// responsible for supplying a window large enough to be meaningful, a single
// sample is still mathematically valid here.
func (e *Estimator) Estimate(window []float64, previousFactor float64) Result {
	if len(window) == 0 {
		return Result{
			Factor: e.clamp(previousFactor),
			Regime: RegimeDefault,
		}
	}

	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(window))

	// variance 0 gives stability 1, large variance approaches 0.
	stability := 1.0 / (1.0 + variance)

	res := Result{
		Mean:       mean,
		Variance:   variance,
		Stability:  stability,
		FlatWindow: variance == 0,
	}

	if res.FlatWindow && e.cfg.FlatWindowPolicy == FlatWindowFault {
		res.Factor = e.clamp(previousFactor)
		res.Regime = RegimeDefault
		return res
	}

	factor := previousFactor

	// first match wins, the regimes overlap by construction.
	switch {
	case mean < e.cfg.LowMeanThreshold && stability < e.cfg.LowStabilityThreshold:
		// system is failing to respond, correct proportionally to how far
		// under the threshold we are.
		factor += ((e.cfg.LowMeanThreshold - mean) / e.cfg.LowMeanThreshold) * e.cfg.BaseLearningRate * e.cfg.AggressiveMultiplier
		res.Regime = RegimeUndersupplied
	case mean > e.cfg.HighMeanThreshold && stability > e.cfg.HighStabilityThreshold:
		factor *= e.cfg.DampingFactor
		res.Regime = RegimeOverreacting
	case mean >= e.cfg.OptimalLow && mean <= e.cfg.OptimalHigh && stability > e.cfg.HighStabilityThreshold:
		// slow exponential convergence toward neutral.
		factor = factor*e.cfg.ConvergenceWeight + (1.0 - e.cfg.ConvergenceWeight)
		res.Regime = RegimeOptimal
	default:
		factor += (1.0 - factor) * e.cfg.BaseLearningRate * stability
		res.Regime = RegimeDefault
	}

	res.Factor = e.clamp(factor)
	return res
}

func (e *Estimator) clamp(f float64) float64 {
	if f < e.cfg.LowerBound {
		return e.cfg.LowerBound
	}
	if f > e.cfg.UpperBound {
		return e.cfg.UpperBound
	}
	return f
}
