package curve

type RecommenderConfig struct {
	// RoomBase is the indoor reference the slope pivots around.
	RoomBase float64
	// MaxStep limits how far any curve point may move per invocation.
	MaxStep float64
	MinSetpoint float64
	MaxSetpoint float64

	// LevelStep is the parallel offset nudge when the spread sits outside
	// the target band.
	LevelStep float64
	MinLevel  float64
	MaxLevel  float64

	TargetSpreadLow  float64
	TargetSpreadHigh float64
}

func DefaultRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{
		RoomBase:         20.0,
		MaxStep:          1.0,
		MinSetpoint:      15.0,
		MaxSetpoint:      65.0,
		LevelStep:        0.5,
		MinLevel:         -10.0,
		MaxLevel:         10.0,
		TargetSpreadLow:  8.0,
		TargetSpreadHigh: 12.0,
	}
}

type Recommendation struct {
	Curve  Curve
	Adjust float64
}

type Recommender struct {
	cfg RecommenderConfig
}

func NewRecommender(cfg RecommenderConfig) *Recommender {
	return &Recommender{cfg: cfg}
}

// Recommend scales the curve slope by the learned performance factor and
// nudges the level offset toward the target spread band. Each curve point is
// pulled toward its compensated setpoint but moves at most MaxStep per
// invocation, so a factor far from neutral converges over several cycles
// instead of jumping.
func (r *Recommender) Recommend(current Curve, adjust float64, factor float64, spreadMean float64) Recommendation {
	rec := Recommendation{Adjust: adjust}

	for i, y := range current {
		target := Compensated(current, 0, factor, Breakpoints[i], r.cfg.RoomBase)
		delta := target - y
		if delta > r.cfg.MaxStep {
			delta = r.cfg.MaxStep
		}
		if delta < -r.cfg.MaxStep {
			delta = -r.cfg.MaxStep
		}
		rec.Curve[i] = clamp(y+delta, r.cfg.MinSetpoint, r.cfg.MaxSetpoint)
	}

	if spreadMean > 0 {
		if spreadMean < r.cfg.TargetSpreadLow {
			rec.Adjust = clamp(adjust+r.cfg.LevelStep, r.cfg.MinLevel, r.cfg.MaxLevel)
		} else if spreadMean > r.cfg.TargetSpreadHigh {
			rec.Adjust = clamp(adjust-r.cfg.LevelStep, r.cfg.MinLevel, r.cfg.MaxLevel)
		}
	}

	return rec
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
