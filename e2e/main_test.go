package e2e

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/heatwise-se/controller/pkg/api/v1/config"
	"github.com/heatwise-se/controller/pkg/app"
	"github.com/heatwise-se/controller/pkg/heatpump"
	"github.com/heatwise-se/controller/pkg/history"
	"github.com/heatwise-se/controller/pkg/metrics"
	"github.com/heatwise-se/controller/pkg/modbusclient"
	"github.com/heatwise-se/controller/pkg/store"
	"github.com/koding/multiconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/tbrandon/mbserver"
)

// fakeInflux answers spread and outdoor range queries with canned values.
func fakeInflux(t *testing.T, spread, outdoor []float64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		values := spread
		if strings.Contains(q, "outdoor") {
			values = outdoor
		}
		rows := make([]string, len(values))
		now := time.Now().Unix()
		for i, v := range values {
			rows[i] = fmt.Sprintf("[%d,%g]", now-int64(len(values)-i)*1800, v)
		}
		fmt.Fprintf(w, `{"results":[{"statement_id":0,"series":[{"name":"x","columns":["time","value"],"values":[%s]}]}]}`, strings.Join(rows, ","))
	}))
}

func TestFullCycleAgainstFakePump(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)

	influx := fakeInflux(t,
		[]float64{17.8, 18.2, 17.9, 18.1, 18.0, 18.0}, // stable and too wide
		[]float64{-6.0, -5.5, -5.0},
	)
	defer influx.Close()

	serv := mbserver.NewServer()
	serv.InputRegisters[9] = 4250          // flow 42.50
	serv.InputRegisters[8] = 3310          // return 33.10
	serv.InputRegisters[13] = toUint(-550) // outdoor -5.50
	serv.HoldingRegisters[5] = 2000        // comfort wheel 20.0
	pumpCurve := []float64{19, 26, 31, 35, 38, 45, 52}
	for i, temp := range pumpCurve {
		serv.HoldingRegisters[i+6] = uint16(temp * 100)
	}
	serv.HoldingRegisters[16] = 1300 // season stop 13.0
	err := serv.ListenTCP("127.0.0.1:1502")
	assert.NoError(t, err)
	defer serv.Close()

	conf := &config.CliConfig{}
	assert.NoError(t, (&multiconfig.TagLoader{}).Load(conf))
	conf.InfluxURL = influx.URL
	conf.MQTTAddress = ""
	conf.MetricsAddress = ""
	conf.PumpAddress = "127.0.0.1:1502"
	conf.PumpReadonly = false
	assert.NoError(t, conf.Validate())

	s := store.NewMemoryStore()
	assert.NoError(t, s.Set(context.TODO(), store.KeyPerformanceFactor, 1.2, true))

	querier := &history.InfluxQuerier{URL: conf.InfluxURL, Database: conf.InfluxDatabase}
	a := app.New(conf, s, querier, metrics.New(prometheus.NewRegistry()))

	handler := modbus.NewTCPClientHandler(conf.PumpAddress)
	handler.Timeout = 5 * time.Second
	client := modbusclient.New(modbus.NewClient(handler), handler.Close)
	defer handler.Close()
	a.SetPump(heatpump.New(client, conf.PumpReadonly))

	a.DoCycle(context.TODO())

	// overreacting regime dampens the persisted factor.
	v, found, err := s.Get(context.TODO(), store.KeyPerformanceFactor)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 1.2*0.95, v.Value, 1e-9)

	v, found, err = s.Get(context.TODO(), store.KeyStabilityScore)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Greater(t, v.Value, 0.6)

	// outdoor mean -5.5 is well below the season stop.
	v, found, err = s.Get(context.TODO(), store.KeyHeatingPeriod)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1.0, v.Value)

	// spread 18 is over the target band so the level was nudged down.
	v, found, err = s.Get(context.TODO(), store.KeyRecommendedAdjust)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 0.5, v.Value, 1e-9)

	// the live reading was cached.
	r := a.LastReading()
	assert.NotNil(t, r)
	assert.InDelta(t, 9.4, *r.Spread, 1e-9)

	// the pump received a new curve: factor 1.14 steepens every point
	// toward roomBase + factor*(y-roomBase), capped at one step. The 0.5
	// level offset lands in the comfort wheel only, so a later read derives
	// the same cumulative adjust back.
	assert.InDelta(t, 1936, float64(serv.HoldingRegisters[5]), 1)  // (18.86+0.5)*100
	assert.InDelta(t, 1886, float64(serv.HoldingRegisters[6]), 1)  // points written raw
	assert.InDelta(t, 5300, float64(serv.HoldingRegisters[12]), 1) // 52 moved one step
}

func TestCycleSkipsWhenPumpIsOff(t *testing.T) {
	influx := fakeInflux(t,
		[]float64{0.1, 0.2, 0.1, 0.0}, // below floor, system inactive
		nil,
	)
	defer influx.Close()

	conf := &config.CliConfig{}
	assert.NoError(t, (&multiconfig.TagLoader{}).Load(conf))
	conf.InfluxURL = influx.URL
	conf.MQTTAddress = ""
	conf.MetricsAddress = ""

	s := store.NewMemoryStore()
	querier := &history.InfluxQuerier{URL: conf.InfluxURL, Database: conf.InfluxDatabase}
	a := app.New(conf, s, querier, metrics.New(prometheus.NewRegistry()))

	a.DoCycle(context.TODO())

	_, found, err := s.Get(context.TODO(), store.KeyPerformanceFactor)
	assert.NoError(t, err)
	assert.False(t, found)
}

func toUint(i int16) uint16 {
	var arr [2]byte
	binary.BigEndian.PutUint16(arr[0:2], uint16(i))
	var result uint16
	for i := 0; i < 2; i++ {
		result = result << 8
		result += uint16(arr[i])
	}
	return result
}
