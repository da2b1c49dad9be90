package metrics

import (
	"ParityBot/internal/domain/models"
	"ParityBot/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions *prometheus.CounterVec
	trades    *prometheus.CounterVec
	errors    *prometheus.CounterVec
	lastPrice *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
	matchRate prometheus.Gauge
}

var _ repository.Metrics = (*Recorder)(nil)

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paritybot_decisions_total",
				Help: "Decisions emitted per primary candle close",
			},
			[]string{"symbol", "action"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paritybot_trades_total",
				Help: "Trade records written to a trade log",
			},
			[]string{"source", "side"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paritybot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paritybot_last_price",
				Help: "Close of the last evaluated primary candle",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paritybot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		matchRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "paritybot_match_rate",
			Help: "Match rate of the most recent parity check",
		}),
	}
}

func (r *Recorder) RecordDecision(symbol string, action models.Action) {
	r.decisions.WithLabelValues(symbol, string(action)).Inc()
}

func (r *Recorder) RecordTrade(source models.TradeSource, side models.Side) {
	r.trades.WithLabelValues(string(source), string(side)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordMatchRate(rate float64) {
	r.matchRate.Set(rate)
}

// Nop discards all measurements.
type Nop struct{}

var _ repository.Metrics = Nop{}

func (Nop) RecordDecision(string, models.Action) {}
func (Nop) RecordTrade(models.TradeSource, models.Side) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordMatchRate(float64) {}
