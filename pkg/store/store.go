package store

import (
	"context"
	"time"
)

// Well known datapoint keys owned by the controller.
const (
	KeyPerformanceFactor = "heating.performanceFactor"
	KeyStabilityScore    = "heating.stabilityScore"
	KeyHeatingPeriod     = "heating.period"
	KeyRecommendedAdjust = "heating.recommendedAdjust"
)

// Value is a single named datapoint. Bool datapoints store 1/0.
type Value struct {
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// Store is the external state the controller reads its learned factor from
// and writes it back to. Get returns found=false for an absent key. Set with
// ack waits for the write to be confirmed before returning.
type Store interface {
	Get(ctx context.Context, key string) (Value, bool, error)
	Set(ctx context.Context, key string, value float64, ack bool) error
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetBool stores a boolean datapoint as 1/0.
func SetBool(ctx context.Context, s Store, key string, b bool, ack bool) error {
	return s.Set(ctx, key, boolToFloat(b), ack)
}
