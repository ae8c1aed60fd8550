package publish

import (
	"context"
	"strconv"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"

	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

// Influx writes one point per observation, tagged by stop, provider and town.
type Influx struct {
	client      influx.Client
	database    string
	measurement string
}

func NewInflux(cfg config.InfluxConfig, timeout time.Duration) (*Influx, error) {
	c, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, failure.New(failure.Config, "influx client", err)
	}
	return &Influx{client: c, database: cfg.Database, measurement: cfg.Measurement}, nil
}

func (i *Influx) Name() string { return "influx" }

// Ping checks the server answers within timeout.
func (i *Influx) Ping(timeout time.Duration) error {
	if _, _, err := i.client.Ping(timeout); err != nil {
		return failure.New(failure.Network, "influx ping", err)
	}
	return nil
}

// Point converts an observation into a line-protocol point.
func Point(measurement string, loc weather.Location, obs weather.Observation) (*influx.Point, error) {
	tags := map[string]string{
		"stop_id":  strconv.FormatInt(loc.StopID, 10),
		"provider": obs.Provider,
	}
	if loc.Town != "" {
		tags["town"] = loc.Town
	}
	return influx.NewPoint(measurement, tags, Fields(obs.Measurements), obs.FetchedAt)
}

// Publish does not take ctx into account; the client has its own timeout.
func (i *Influx) Publish(_ context.Context, loc weather.Location, obs weather.Observation) error {
	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:  i.database,
		Precision: "s",
	})
	if err != nil {
		return failure.New(failure.Config, "influx batch", err)
	}

	pt, err := Point(i.measurement, loc, obs)
	if err != nil {
		return failure.New(failure.Decode, "influx point", err)
	}
	bp.AddPoint(pt)

	if err := i.client.Write(bp); err != nil {
		return failure.New(failure.Network, "influx write", err)
	}
	return nil
}

func (i *Influx) Close() error {
	return i.client.Close()
}
