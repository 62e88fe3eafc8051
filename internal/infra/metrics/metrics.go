package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ProgressFlushSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "progress_flush_seconds",
		Help:    "Длительность записи позиции чтения",
		Buckets: prometheus.DefBuckets,
	})
	ProgressFlushErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_flush_errors_total",
		Help: "Ошибки записи позиции чтения",
	})
	ProgressSaves = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_saves_total",
		Help: "Количество сохранённых позиций чтения",
	})
	SessionResumes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_resumes_total",
		Help: "Количество сессий, продолженных с сохранённой страницы",
	})
	BookOpens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "book_opens_total",
		Help: "Количество обработанных событий открытия книг",
	})
	HeatmapQuerySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "heatmap_query_seconds",
		Help:    "Длительность выборки посуточной активности",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ProgressFlushSeconds,
		ProgressFlushErrors,
		ProgressSaves,
		SessionResumes,
		BookOpens,
		HeatmapQuerySeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveProgressFlush записывает длительность и исход одной записи прогресса.
func ObserveProgressFlush(start time.Time, err error) {
	ProgressFlushSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		ProgressFlushErrors.Inc()
	}
}

// ObserveHeatmapQuery записывает длительность выборки активности.
func ObserveHeatmapQuery(start time.Time, err error) {
	if err != nil {
		return
	}
	HeatmapQuerySeconds.Observe(time.Since(start).Seconds())
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
