package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/expeditorhq/expeditor/core/metrics"
	"github.com/expeditorhq/expeditor/infra/logger"
)

// InfluxSink writes queue events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRebalance writes the tick as a line-protocol event.
func (s *InfluxSink) RecordRebalance(rec coremetrics.RebalanceRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("rebalance_tick").
		AddTag("queue_id", rec.QueueID).
		AddTag("degraded", strconv.FormatBool(rec.Degraded)).
		AddTag("component", "rebalancer").
		AddField("moved", rec.Moved).
		AddField("recomputed", rec.Recomputed).
		AddField("deferred", rec.Deferred).
		AddField("depth", rec.Depth).
		AddField("duration_ms", rec.Duration.Milliseconds()).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTransition writes one lifecycle transition.
func (s *InfluxSink) RecordTransition(rec coremetrics.TransitionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("item_transition").
		AddTag("queue_id", rec.QueueID).
		AddTag("from", rec.From).
		AddTag("to", rec.To).
		AddField("item_id", rec.ItemID).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFairness persists the per-period fairness summary.
func (s *InfluxSink) RecordFairness(rec coremetrics.FairnessRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("queue_fairness").
		AddTag("queue_id", rec.QueueID).
		AddField("gini", round3(rec.Gini)).
		AddField("max_wait_variance", round3(rec.MaxWaitVariance)).
		AddField("rebalance_count", rec.RebalanceCount).
		AddField("avg_abs_position_delta", round3(rec.AvgAbsPositionDelta)).
		AddField("manual_adjustments", rec.ManualAdjustments).
		AddField("cache_hit_rate", round3(rec.CacheHitRate)).
		SetTime(rec.PeriodEnd)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
