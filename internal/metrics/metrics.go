package metrics

import (
	"time"

	"dtk-go/internal/dtk"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the token ledger and the balance
// watcher. It implements dtk.Metrics.
type Metrics struct {
	TokensMinted  *prometheus.CounterVec
	MintFailures  *prometheus.CounterVec
	MintDuration  prometheus.Histogram
	UsageEvents   prometheus.Counter
	TokensDeleted prometheus.Counter
	CorruptBlobs  prometheus.Counter
	WalletBalance prometheus.Gauge
}

var _ dtk.Metrics = (*Metrics)(nil)

// New registers all ledger metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TokensMinted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dtk_tokens_minted_total",
			Help: "Total number of data tokens minted, by data type",
		}, []string{"data_type"}),
		MintFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dtk_mint_failures_total",
			Help: "Total number of failed mint attempts, by data type",
		}, []string{"data_type"}),
		MintDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dtk_mint_duration_seconds",
			Help:    "Duration of ledger backend mint calls including confirmation",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		UsageEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "dtk_token_usage_total",
			Help: "Total usage events recorded across all tokens",
		}),
		TokensDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dtk_tokens_deleted_total",
			Help: "Total number of tokens removed from the ledger",
		}),
		CorruptBlobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "dtk_corrupt_blobs_evicted_total",
			Help: "Total number of unreadable token blobs discarded on load",
		}),
		WalletBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dtk_wallet_balance_sol",
			Help: "Last observed wallet balance in SOL",
		}),
	}
}

func (m *Metrics) TokenMinted(dataType string) {
	m.TokensMinted.WithLabelValues(dataType).Inc()
}

func (m *Metrics) MintFailed(dataType string) {
	m.MintFailures.WithLabelValues(dataType).Inc()
}

// ObserveMint records the duration of a mint call.
func (m *Metrics) ObserveMint(elapsed time.Duration) {
	m.MintDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) UsageRecorded(usage int) {
	m.UsageEvents.Add(float64(usage))
}

func (m *Metrics) TokenDeleted() {
	m.TokensDeleted.Inc()
}

func (m *Metrics) CorruptEvicted() {
	m.CorruptBlobs.Inc()
}

func (m *Metrics) BalanceObserved(sol float64) {
	m.WalletBalance.Set(sol)
}
