package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/heatwise-se/controller/pkg/alarm"
	"github.com/heatwise-se/controller/pkg/api/v1/config"
	"github.com/heatwise-se/controller/pkg/curve"
	"github.com/heatwise-se/controller/pkg/estimator"
	"github.com/heatwise-se/controller/pkg/heatpump"
	"github.com/heatwise-se/controller/pkg/history"
	"github.com/heatwise-se/controller/pkg/mbus"
	"github.com/heatwise-se/controller/pkg/metrics"
	"github.com/heatwise-se/controller/pkg/mqtt"
	"github.com/heatwise-se/controller/pkg/store"
	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// CycleResult is published on the result topic after every completed cycle.
type CycleResult struct {
	Time           time.Time        `json:"time"`
	Mean           float64          `json:"mean"`
	Stability      float64          `json:"stability"`
	Factor         float64          `json:"factor"`
	Regime         estimator.Regime `json:"regime"`
	Samples        int              `json:"samples"`
	HeatingPeriod  *bool            `json:"heatingPeriod,omitempty"`
	RecommendedAdj *float64         `json:"recommendedAdjust,omitempty"`
}

type App struct {
	wg          *sync.WaitGroup
	config      *config.CliConfig
	store       store.Store
	history     history.Querier
	estimator   *estimator.Estimator
	recommender *curve.Recommender
	metrics     *metrics.Metrics
	alarms      *alarm.ActiveAlarms

	pump   *heatpump.Pump
	meter  *mbus.Mbus
	broker *mqttv2.Server

	readings heatpump.Cache

	mutex sync.Mutex // serializes cycles

	runMu   sync.Mutex
	lastRun time.Time
}

func New(c *config.CliConfig, s store.Store, q history.Querier, m *metrics.Metrics) *App {
	return &App{
		wg:          &sync.WaitGroup{},
		config:      c,
		store:       s,
		history:     q,
		estimator:   estimator.New(c.EstimatorConfig()),
		recommender: curve.NewRecommender(c.RecommenderConfig()),
		metrics:     m,
		alarms:      &alarm.ActiveAlarms{},
	}
}

// SetPump attaches an optional heat pump for live readings and curve writes.
func (a *App) SetPump(p *heatpump.Pump) {
	a.pump = p
}

func (a *App) Start(ctx context.Context) error {
	if a.config.MQTTAddress != "" {
		broker, err := mqtt.Start(ctx, a.wg, a.config.MQTTAddress)
		if err != nil {
			return fmt.Errorf("error starting mqtt broker: %w", err)
		}
		a.broker = broker

		err = broker.Subscribe(mqtt.TopicSpread, 1, func(cl *mqttv2.Client, sub packets.Subscription, pk packets.Packet) {
			a.onSpreadEvent(ctx)
		})
		if err != nil {
			return fmt.Errorf("error subscribing to %s: %w", mqtt.TopicSpread, err)
		}
	}

	if a.config.MetricsAddress != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			err := http.ListenAndServe(a.config.MetricsAddress, nil)
			if err != nil {
				logrus.Error(err)
			}
		}()
	}

	if a.config.MbusDevice != "" {
		a.meter = mbus.New(a.config.MbusDevice)
		a.wg.Add(1)
		go a.meterLoop(ctx)
	}

	a.wg.Add(1)
	go a.controllerLoop(ctx)
	return nil
}

// meterLoop polls the m-bus heat meter and publishes its spread on the
// sensor topic, which feeds the event triggered estimation path.
func (a *App) meterLoop(ctx context.Context) {
	defer a.wg.Done()
	defer a.meter.Close()
	ticker := time.NewTicker(a.config.MbusInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			data, err := a.meter.ReadValues(a.config.MbusModel, a.config.MbusPrimaryID)
			if err != nil {
				logrus.Error(fmt.Errorf("error reading heat meter: %w", err))
				a.metrics.RecordError("mbus")
				continue
			}
			if data.Spread() < a.config.SpreadFloor {
				logrus.Debugf("meter spread %.2f below floor, pump idle", data.Spread())
				continue
			}
			if a.broker != nil {
				err = mqtt.PublishJSON(a.broker, mqtt.TopicSpread, data)
				if err != nil {
					logrus.Error(err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) Wait() {
	a.wg.Wait()
}

func (a *App) controllerLoop(ctx context.Context) {
	defer a.wg.Done()
	delay := nextDelay(a.config.Interval())
	timer := time.NewTimer(delay)
	logrus.Debug("scheduling first run in ", delay)
	a.DoCycle(ctx)
	for {
		select {
		case <-timer.C:
			timer.Reset(nextDelay(a.config.Interval()))
			a.DoCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// onSpreadEvent runs an early cycle when a sensor update arrives, unless the
// cooldown since the last run has not passed yet. The slot is claimed under
// runMu before the cycle is spawned so two near-simultaneous events cannot
// both pass the check.
func (a *App) onSpreadEvent(ctx context.Context) {
	a.runMu.Lock()
	since := time.Since(a.lastRun)
	if since < a.config.Cooldown() {
		a.runMu.Unlock()
		logrus.Debugf("spread event %s after last run, within cooldown", since)
		return
	}
	a.lastRun = time.Now()
	a.runMu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.DoCycle(ctx)
	}()
}

// DoCycle runs one estimation cycle. Cycles are serialized so concurrent
// triggers cannot race the read-compute-write of the performance factor.
func (a *App) DoCycle(ctx context.Context) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.runMu.Lock()
	a.lastRun = time.Now()
	started := a.lastRun
	a.runMu.Unlock()

	err := a.runCycle(ctx, started)
	if err != nil {
		// keep previous state and retry on the next tick.
		logrus.Error(err)
		a.metrics.RecordError("cycle")
	}
}

func (a *App) runCycle(ctx context.Context, started time.Time) error {
	end := time.Now()
	samples, err := a.history.Query(ctx, a.config.SpreadSensor, end.Add(-a.config.Window()), end)
	if err != nil {
		return fmt.Errorf("error querying spread history: %w", err)
	}

	window := history.Window(samples, a.config.SpreadFloor)
	if len(window) < a.config.MinSamples {
		logrus.Infof("skipping cycle, only %d of %d required samples", len(window), a.config.MinSamples)
		a.metrics.CyclesSkipped.Inc()
		return nil
	}

	previous := 1.0 // neutral until something was learned
	v, found, err := a.store.Get(ctx, store.KeyPerformanceFactor)
	if err != nil {
		return fmt.Errorf("error reading previous factor: %w", err)
	}
	if found {
		previous = v.Value
	}

	res := a.estimator.Estimate(window, previous)

	if res.FlatWindow && a.config.FlatWindowPolicy == string(estimator.FlatWindowFault) {
		if a.alarms.Add("flat spread window, possible stuck sensor") {
			logrus.Warn("flat spread window, possible stuck sensor")
		}
		a.metrics.RecordError("sensor")
		return nil
	}
	if a.alarms.Clear() {
		logrus.Info("sensor alarms cleared")
	}

	err = a.store.Set(ctx, store.KeyPerformanceFactor, res.Factor, true)
	if err != nil {
		return fmt.Errorf("error persisting factor: %w", err)
	}
	err = a.store.Set(ctx, store.KeyStabilityScore, res.Stability, false)
	if err != nil {
		return fmt.Errorf("error persisting stability: %w", err)
	}

	a.metrics.ObserveCycle(res.Stability, res.Factor, res.Mean, len(window), string(res.Regime))
	logrus.WithFields(logrus.Fields{
		"mean":      res.Mean,
		"stability": res.Stability,
		"factor":    res.Factor,
		"regime":    res.Regime,
		"samples":   len(window),
	}).Info("estimation cycle done")

	result := &CycleResult{
		Time:      started,
		Mean:      res.Mean,
		Stability: res.Stability,
		Factor:    res.Factor,
		Regime:    res.Regime,
		Samples:   len(window),
	}

	if active, ok := a.heatingPeriod(ctx); ok {
		result.HeatingPeriod = &active
	}

	if a.pump != nil {
		adjust, err := a.reconcilePump(ctx, res)
		if err != nil {
			logrus.Error(fmt.Errorf("error reconciling pump: %w", err))
			a.metrics.RecordError("pump")
		} else {
			result.RecommendedAdj = &adjust
		}
	}

	if a.broker != nil {
		err = mqtt.PublishJSON(a.broker, mqtt.TopicResult, result)
		if err != nil {
			logrus.Error(fmt.Errorf("error publishing result: %w", err))
		}
	}

	return nil
}

// heatingPeriod derives the seasonal heating mode from the outdoor daily
// mean. Missing outdoor history just leaves the mode untouched.
func (a *App) heatingPeriod(ctx context.Context) (bool, bool) {
	end := time.Now()
	samples, err := a.history.Query(ctx, a.config.OutdoorSensor, end.Add(-24*time.Hour), end)
	if err != nil {
		logrus.Debugf("no outdoor history: %s", err)
		return false, false
	}
	if len(samples) == 0 {
		return false, false
	}

	mean := 0.0
	for _, s := range samples {
		mean += s.Value
	}
	mean /= float64(len(samples))

	// prefer the season stop the pump itself is configured with.
	stop := a.config.SeasonStopTemperature
	if a.pump != nil {
		s, err := a.pump.SeasonStopTemperature()
		if err != nil {
			logrus.Debugf("falling back to configured season stop: %s", err)
		} else {
			stop = s
		}
	}

	active := curve.SeasonActive(mean, stop)
	err = store.SetBool(ctx, a.store, store.KeyHeatingPeriod, active, false)
	if err != nil {
		logrus.Error(fmt.Errorf("error persisting heating period: %w", err))
		return false, false
	}
	a.metrics.SetHeatingPeriod(active)
	return active, true
}

// reconcilePump reads the live curve, recommends a new one based on the
// learned factor and writes it back.
func (a *App) reconcilePump(ctx context.Context, res estimator.Result) (float64, error) {
	reading, err := a.pump.Read()
	if err != nil {
		return 0, err
	}
	a.readings.Set(reading)
	if a.broker != nil {
		err = mqtt.PublishJSON(a.broker, mqtt.TopicState, reading.Map())
		if err != nil {
			logrus.Error(err)
		}
	}

	cur, adjust, err := a.pump.HeatCurve()
	if err != nil {
		return 0, err
	}

	rec := a.recommender.Recommend(cur, adjust, res.Factor, res.Mean)
	err = a.pump.Apply(rec)
	if err != nil {
		return 0, err
	}

	err = a.store.Set(ctx, store.KeyRecommendedAdjust, rec.Adjust, false)
	if err != nil {
		return 0, err
	}
	return rec.Adjust, nil
}

// LastReading returns the latest live pump reading, nil before the first.
func (a *App) LastReading() *heatpump.Reading {
	return a.readings.Get()
}

// Alarms returns the currently raised alarms.
func (a *App) Alarms() []string {
	return a.alarms.Active()
}
