package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"triscan/internal/model"
)

// Metrics holds the scan collectors.
type Metrics struct {
	Scans         *prometheus.CounterVec
	Cycles        *prometheus.CounterVec
	BestMultiple  prometheus.Gauge
	Opportunities prometheus.Gauge
	ScanDuration  prometheus.Histogram

	threshold float64
}

// New registers the collectors on reg. threshold is the multiple above which a cycle counts as an opportunity.
func New(reg prometheus.Registerer, threshold float64) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triscan_scans_total",
			Help: "Scans attempted, by result",
		}, []string{"result"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triscan_cycles_total",
			Help: "Cycles evaluated, by status",
		}, []string{"status"}),
		BestMultiple: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triscan_best_profit_multiple",
			Help: "Highest profit multiple seen in the last completed scan",
		}),
		Opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triscan_opportunities",
			Help: "Cycles above the profit threshold in the last completed scan",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triscan_scan_duration_seconds",
			Help:    "Wall time of a scan including metadata fetch",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		threshold: threshold,
	}
	reg.MustRegister(m.Scans, m.Cycles, m.BestMultiple, m.Opportunities, m.ScanDuration)
	return m
}

// Observe records one scan attempt.
func (m *Metrics) Observe(report *model.ScanReport, elapsed time.Duration, err error) {
	m.ScanDuration.Observe(elapsed.Seconds())
	if report != nil {
		for _, res := range report.Results {
			m.Cycles.WithLabelValues(string(res.Status)).Inc()
		}
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.Scans.WithLabelValues("cancelled").Inc()
		return
	case err != nil:
		m.Scans.WithLabelValues("error").Inc()
		return
	}

	m.Scans.WithLabelValues("ok").Inc()
	m.Opportunities.Set(float64(len(report.Opportunities(m.threshold))))
	best, ok := report.Best()
	if !ok {
		m.BestMultiple.Set(0)
		return
	}
	m.BestMultiple.Set(best.ProfitMultiple)
}

// Handler serves /healthz and the registry on /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	return mux
}

// Serve starts the metrics and health-check HTTP server and stops it when ctx is done.
// An empty addr disables it.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	if addr == "" {
		logger.Info("metrics disabled: empty addr")
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(reg),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", "error", err)
		} else {
			logger.Info("metrics server stopped")
		}
	}()
}
