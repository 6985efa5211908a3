package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventbus/internal/logging"
)

const namespace = "eventbus"

var (
	RecordsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "producer", Name: "records_published_total",
		Help: "Records handed to the broker client",
	}, []string{"topic"})

	RecordsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "producer", Name: "records_delivered_total",
		Help: "Records acknowledged by the broker",
	}, []string{"topic"})

	DeliveryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "producer", Name: "delivery_errors_total",
		Help: "Records the broker failed to accept",
	}, []string{"topic"})

	SerializationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "producer", Name: "serialization_errors_total",
		Help: "Publish calls rejected because the payload does not fit the schema",
	}, []string{"topic"})

	TopicsProvisioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "admin", Name: "topics_provisioned_total",
		Help: "Topics recorded as existing, by how they were found",
	}, []string{"topic", "outcome"}) // outcome: existing|created

	ProvisioningErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "admin", Name: "provisioning_errors_total",
		Help: "Failed topic existence checks or creations",
	}, []string{"topic"})

	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "consumer", Name: "messages_total",
		Help: "Consumed messages by outcome",
	}, []string{"topic", "outcome"}) // outcome: handled|malformed
)

// Expose serves /metrics on port until ctx is done.
func Expose(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server stopped", "port", port, "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
