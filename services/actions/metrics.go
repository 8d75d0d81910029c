// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package actions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analyzeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "actionizer",
		Subsystem: "analyzer",
		Name:      "analyze_latency_seconds",
		Help:      "End-to-end latency of one analyze call including the model round-trip",
		Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})

	suggestionsPerAnalyze = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "actionizer",
		Subsystem: "analyzer",
		Name:      "suggestions_per_analyze",
		Help:      "Valid suggestions returned per analyze call",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
	})

	droppedSuggestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionizer",
		Subsystem: "analyzer",
		Name:      "dropped_suggestions_total",
		Help:      "Model suggestion records dropped during validation, by reason",
	}, []string{"reason"})

	repairedReplies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "actionizer",
		Subsystem: "analyzer",
		Name:      "repaired_replies_total",
		Help:      "Model replies that only parsed after JSON repair",
	})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionizer",
		Subsystem: "dispatcher",
		Name:      "dispatch_total",
		Help:      "Dispatched executions by tool and outcome",
	}, []string{"tool", "outcome"})

	dispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "actionizer",
		Subsystem: "dispatcher",
		Name:      "dispatch_latency_seconds",
		Help:      "Latency of adapter calls by tool",
		Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
	}, []string{"tool"})

	registrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "actionizer",
		Subsystem: "registry",
		Name:      "stored_actions",
		Help:      "Actions currently stored in the registry (memory registry only)",
	})
)
