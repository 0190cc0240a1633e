package config

import (
	"fmt"
	"time"

	"github.com/heatwise-se/controller/pkg/curve"
	"github.com/heatwise-se/controller/pkg/estimator"
)

// CliConfig is loaded with multiconfig from flags and environment.
type CliConfig struct {
	LogLevel string `default:"info"`

	// external state store
	RedisAddress  string `default:"127.0.0.1:6379"`
	RedisPassword string
	RedisDB       int

	// history service
	InfluxURL      string `default:"http://127.0.0.1:8086"`
	InfluxDatabase string `default:"heating"`
	SpreadSensor   string `default:"heatpump.spread"`
	OutdoorSensor  string `default:"heatpump.outdoor"`

	// estimation cycle
	IntervalMinutes int     `default:"30"`
	CooldownMinutes int     `default:"5"`
	WindowHours     int     `default:"6"`
	MinSamples      int     `default:"3"`
	SpreadFloor     float64 `default:"0.5"`

	// estimator tunables
	BaseLearningRate       float64 `default:"0.02"`
	FactorLowerBound       float64 `default:"0.3"`
	FactorUpperBound       float64 `default:"1.7"`
	LowMeanThreshold       float64 `default:"7.0"`
	HighMeanThreshold      float64 `default:"15.0"`
	LowStabilityThreshold  float64 `default:"0.4"`
	HighStabilityThreshold float64 `default:"0.6"`
	OptimalLow             float64 `default:"8.0"`
	OptimalHigh            float64 `default:"12.0"`
	AggressiveMultiplier   float64 `default:"2.0"`
	DampingFactor          float64 `default:"0.95"`
	ConvergenceWeight      float64 `default:"0.99"`
	FlatWindowPolicy       string  `default:"stable"`

	// seasonal heating mode
	SeasonStopTemperature float64 `default:"13.0"`

	// heat pump, empty address disables the modbus source
	PumpAddress  string
	PumpReadonly bool `default:"true"`

	// m-bus heat meter, empty device disables it
	MbusDevice          string
	MbusModel           string `default:"kamstrup-multical-403"`
	MbusPrimaryID       string `default:"1"`
	MbusIntervalMinutes int    `default:"10"`

	MQTTAddress    string `default:":1883"`
	MetricsAddress string `default:":9090"`
}

func (c *CliConfig) Validate() error {
	if c.MinSamples < 1 {
		return fmt.Errorf("MinSamples must be at least 1, got %d", c.MinSamples)
	}
	if c.IntervalMinutes < 1 {
		return fmt.Errorf("IntervalMinutes must be at least 1, got %d", c.IntervalMinutes)
	}
	switch estimator.FlatWindowPolicy(c.FlatWindowPolicy) {
	case estimator.FlatWindowStable, estimator.FlatWindowFault:
	default:
		return fmt.Errorf("unknown FlatWindowPolicy %q", c.FlatWindowPolicy)
	}
	return nil
}

func (c *CliConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c *CliConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func (c *CliConfig) MbusInterval() time.Duration {
	return time.Duration(c.MbusIntervalMinutes) * time.Minute
}

func (c *CliConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

func (c *CliConfig) EstimatorConfig() estimator.Config {
	return estimator.Config{
		BaseLearningRate:       c.BaseLearningRate,
		LowerBound:             c.FactorLowerBound,
		UpperBound:             c.FactorUpperBound,
		LowMeanThreshold:       c.LowMeanThreshold,
		HighMeanThreshold:      c.HighMeanThreshold,
		LowStabilityThreshold:  c.LowStabilityThreshold,
		HighStabilityThreshold: c.HighStabilityThreshold,
		OptimalLow:             c.OptimalLow,
		OptimalHigh:            c.OptimalHigh,
		AggressiveMultiplier:   c.AggressiveMultiplier,
		DampingFactor:          c.DampingFactor,
		ConvergenceWeight:      c.ConvergenceWeight,
		FlatWindowPolicy:       estimator.FlatWindowPolicy(c.FlatWindowPolicy),
	}
}

func (c *CliConfig) RecommenderConfig() curve.RecommenderConfig {
	cfg := curve.DefaultRecommenderConfig()
	cfg.TargetSpreadLow = c.OptimalLow
	cfg.TargetSpreadHigh = c.OptimalHigh
	return cfg
}
