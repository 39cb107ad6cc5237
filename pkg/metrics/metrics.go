// Package metrics exposes classification counters over Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zpam_cat"

// Collector holds the categorizer metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	Classified *prometheus.CounterVec // by predicted category
	Fallbacks  prometheus.Counter     // documents with no known feature
	Outcomes   *prometheus.CounterVec // by result: correct, incorrect
	Errors     *prometheus.CounterVec // by stage
	Latency    prometheus.Histogram
}

// New creates a collector with Go runtime and process metrics registered
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,
		Classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_classified_total",
			Help:      "Documents classified, by predicted category",
		}, []string{"category"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "default_category_total",
			Help:      "Documents that shared no feature with the model",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_outcomes_total",
			Help:      "Evaluated documents, by result",
		}, []string{"result"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Classification failures, by stage",
		}, []string{"stage"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time spent classifying one document",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}),
	}

	reg.MustRegister(c.Classified, c.Fallbacks, c.Outcomes, c.Errors, c.Latency)
	return c
}

func (c *Collector) ObserveClassification(predicted string, evidence bool, elapsed time.Duration) {
	c.Classified.WithLabelValues(predicted).Inc()
	if !evidence {
		c.Fallbacks.Inc()
	}
	c.Latency.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveOutcome(trueLabel, predicted string) {
	if trueLabel == predicted {
		c.Outcomes.WithLabelValues("correct").Inc()
	} else {
		c.Outcomes.WithLabelValues("incorrect").Inc()
	}
}

// ObserveError counts a failure at stage
func (c *Collector) ObserveError(stage string) {
	c.Errors.WithLabelValues(stage).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler serving the registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes the registry on addr under path until ctx is done
func (c *Collector) Serve(ctx context.Context, addr, path string, logger *slog.Logger) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "address", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
