// Package telemetry exposes engine counters as Prometheus metrics on an
// optional /metrics listener.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brabsmit/kalshi-arb/internal/sim"
)

// Metrics holds every exported series.
type Metrics struct {
	EntriesAttempted prometheus.Counter
	EntriesFilled    prometheus.Counter
	EntriesMissed    prometheus.Counter
	EntriesRejected  prometheus.Counter
	ExitsFilled      prometheus.Counter
	ExitsTimedOut    prometheus.Counter

	EntrySlippageCents prometheus.Counter
	ExitSlippageCents  prometheus.Counter

	OpenPositions prometheus.Gauge
	ExposureCents prometheus.Gauge
	BalanceCents  prometheus.Gauge
	WSConnected   prometheus.Gauge

	PollFailures *prometheus.CounterVec
	TickDuration prometheus.Histogram

	reg *prometheus.Registry

	last sim.Counters
}

// New registers all series on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		EntriesAttempted: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_entries_attempted_total", Help: "Entry signals submitted to the fill simulator."}),
		EntriesFilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_entries_filled_total", Help: "Simulated entries filled."}),
		EntriesMissed: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_entries_missed_total", Help: "Entries missed after latency."}),
		EntriesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_entries_rejected_total", Help: "Entries rejected by the break-even guard."}),
		ExitsFilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_exits_filled_total", Help: "Maker exits filled at target."}),
		ExitsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_exits_timed_out_total", Help: "Forced taker exits after max hold."}),
		EntrySlippageCents: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_entry_slippage_cents_total", Help: "Cumulative adverse entry slippage."}),
		ExitSlippageCents: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_sim_exit_slippage_cents_total", Help: "Cumulative adverse exit slippage."}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arb_open_positions", Help: "Currently open simulated positions."}),
		ExposureCents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arb_exposure_cents", Help: "Aggregate exposure at entry prices."}),
		BalanceCents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arb_balance_cents", Help: "Working bankroll."}),
		WSConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "arb_ws_connected", Help: "1 when the venue order-book feed is up."}),
		PollFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_poll_failures_total", Help: "Upstream poll failures."}, []string{"source"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_tick_duration_seconds",
			Help:    "Wall time of one scheduler iteration.",
			Buckets: prometheus.DefBuckets,
		}),
		reg: reg,
	}
}

// ObserveSim advances the monotonic counters to match a Counters snapshot.
func (m *Metrics) ObserveSim(c sim.Counters) {
	m.EntriesAttempted.Add(float64(c.EntriesAttempted - m.last.EntriesAttempted))
	m.EntriesFilled.Add(float64(c.EntriesFilled - m.last.EntriesFilled))
	m.EntriesMissed.Add(float64(c.EntriesMissed - m.last.EntriesMissed))
	m.EntriesRejected.Add(float64(c.EntriesRejected - m.last.EntriesRejected))
	m.ExitsFilled.Add(float64(c.ExitsFilled - m.last.ExitsFilled))
	m.ExitsTimedOut.Add(float64(c.ExitsTimedOut - m.last.ExitsTimedOut))
	m.EntrySlippageCents.Add(float64(c.EntrySlippageCents - m.last.EntrySlippageCents))
	m.ExitSlippageCents.Add(float64(c.ExitSlippageCents - m.last.ExitSlippageCents))
	m.OpenPositions.Set(float64(c.ExitsPending))
	m.last = c
}

// Serve runs the /metrics listener until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("telemetry listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
