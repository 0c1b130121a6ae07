// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	// RebuildsTotal tracks finished rebuilds by outcome
	RebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rebuild",
			Name:      "total",
			Help:      "Total number of rebuilds by outcome",
		},
		[]string{"outcome"},
	)

	// RebuildDuration tracks rebuild duration in seconds
	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "rebuild",
			Name:      "duration_seconds",
			Help:      "Duration of rebuilds in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// RebuildSkippedRows tracks rows a rebuild could not write, by failure kind
	RebuildSkippedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rebuild",
			Name:      "skipped_rows_total",
			Help:      "Total number of rows skipped by rebuilds",
		},
		[]string{"kind"},
	)

	// RebuildsRejected counts rebuild requests refused because another rebuild held the lock
	RebuildsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rebuild",
			Name:      "rejected_total",
			Help:      "Total number of rebuild requests rejected while another rebuild was running",
		},
	)

	// RebuildLastSize tracks record counts written by the most recent rebuild
	RebuildLastSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "rebuild",
			Name:      "last_records",
			Help:      "Number of records written by the most recent rebuild",
		},
		[]string{"record"},
	)

	// KafkaMessagesTotal tracks Kafka publishes and consumed trigger messages
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of Kafka messages by topic, direction and status",
		},
		[]string{"topic", "direction", "status"},
	)
)

// RecordRebuild records the outcome, duration and skipped rows of a finished rebuild.
func RecordRebuild(result *models.RebuildResult) {
	if result == nil {
		return
	}
	RebuildsTotal.WithLabelValues(string(result.Outcome)).Inc()
	if !result.FinishedAt.IsZero() {
		RebuildDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	}
	for _, f := range result.Skipped {
		kind := f.Kind
		if kind == "" {
			kind = clovererrors.KindUnknown
		}
		RebuildSkippedRows.WithLabelValues(string(kind)).Inc()
	}
	if result.Outcome != models.RebuildAborted {
		RebuildLastSize.WithLabelValues("customers").Set(float64(result.Customers))
		RebuildLastSize.WithLabelValues("purchases").Set(float64(result.Purchases))
		RebuildLastSize.WithLabelValues("friend_lists").Set(float64(result.FriendLists))
		RebuildLastSize.WithLabelValues("recommendations").Set(float64(result.Recommendations))
	}
}

func RecordRebuildRejected() {
	RebuildsRejected.Inc()
}

func RecordKafkaMessage(topic, direction, status string) {
	KafkaMessagesTotal.WithLabelValues(topic, direction, status).Inc()
}
