package history

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// Sample is one historical measurement.
type Sample struct {
	Time  time.Time
	Value float64
}

// Querier fetches the recent history of a sensor. An empty result is not an
// error, the caller skips the cycle instead.
type Querier interface {
	Query(ctx context.Context, sensor string, start, end time.Time) ([]Sample, error)
}

// InfluxQuerier reads sensor history from the InfluxDB 1.x HTTP API. Each
// sensor is a measurement with a single "value" field, which is how the
// home automation hosts lay their history out.
type InfluxQuerier struct {
	URL      string
	Database string

	// HTTPClient is optional, a default client with timeout is used if nil.
	HTTPClient *http.Client
}

func (q *InfluxQuerier) Query(ctx context.Context, sensor string, start, end time.Time) ([]Sample, error) {
	if q.URL == "" || q.Database == "" {
		return nil, fmt.Errorf("influx querier: URL and Database are required")
	}

	u, err := url.Parse(q.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid influx URL: %w", err)
	}
	u.Path = "/query"

	query := fmt.Sprintf(`SELECT "value" FROM %q WHERE time >= %ds AND time <= %ds`,
		sensor, start.Unix(), end.Unix())

	vals := u.Query()
	vals.Set("db", q.Database)
	vals.Set("epoch", "s")
	vals.Set("q", query)
	u.RawQuery = vals.Encode()

	cli := q.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("influx: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if e := gjson.GetBytes(body, "results.0.error"); e.Exists() {
		return nil, fmt.Errorf("influx: %s", e.String())
	}

	rows := gjson.GetBytes(body, "results.0.series.0.values")
	samples := []Sample{}
	rows.ForEach(func(_, row gjson.Result) bool {
		pair := row.Array()
		if len(pair) != 2 {
			return true
		}
		if pair[1].Type == gjson.Null {
			return true
		}
		samples = append(samples, Sample{
			Time:  time.Unix(pair[0].Int(), 0).UTC(),
			Value: pair[1].Float(),
		})
		return true
	})

	return samples, nil
}

// Window filters samples down to the value window the estimator consumes.
// NaN, infinite and below-floor values are dropped, a value under the
// physical floor means the system was not running when it was sampled.
func Window(samples []Sample, floor float64) []float64 {
	window := make([]float64, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		if s.Value < floor {
			continue
		}
		window = append(window, s.Value)
	}
	return window
}
