// Copyright 2025 The Ember Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package peerbook

import (
	m "github.com/embernode/ember/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	EntriesAdded prometheus.Counter
	KnownEntries prometheus.Gauge

	AttemptsRecorded   prometheus.Counter
	SuccessesRecorded  prometheus.Counter
	HandshakesRecorded prometheus.Counter

	CandidatesSelected prometheus.Counter
	SelectionsEmpty    prometheus.Counter

	RecordsLoaded    prometheus.Counter
	RecordsSkipped   prometheus.Counter
	RecordsPersisted prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "peerbook"

	return metrics{
		EntriesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "entries_added_count",
			Help:      "Number of endpoints added to the book.",
		}),
		KnownEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "known_entries",
			Help:      "Number of endpoints currently tracked.",
		}),
		AttemptsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "attempts_recorded_count",
			Help:      "Number of dial attempts reported.",
		}),
		SuccessesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "successes_recorded_count",
			Help:      "Number of successful connections reported.",
		}),
		HandshakesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "handshakes_recorded_count",
			Help:      "Number of completed handshakes reported.",
		}),
		CandidatesSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "candidates_selected_count",
			Help:      "Number of dial candidates handed out.",
		}),
		SelectionsEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "selections_empty_count",
			Help:      "Number of candidate selections with no eligible endpoint.",
		}),
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "records_loaded_count",
			Help:      "Number of persisted records restored.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "records_skipped_count",
			Help:      "Number of persisted records skipped as malformed.",
		}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "records_persisted_count",
			Help:      "Number of records written to the statestore.",
		}),
	}
}

// Metrics returns the prometheus collectors of the book.
func (b *Book) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(b.metrics)
}
