// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder records authorization outcomes to Prometheus and OpenTelemetry.
type Recorder struct {
	decisions      *prometheus.CounterVec
	decisionTime   prometheus.Histogram
	boundaryChecks *prometheus.CounterVec
	principalCache *prometheus.CounterVec

	otelDecisions metric.Int64Counter
	otelLatency   metric.Float64Histogram
}

// NewRecorder creates the recorder and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer, m *Meter) (*Recorder, error) {
	r := &Recorder{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_authz_decisions_total",
				Help: "Permission checks by outcome",
			},
			[]string{"allowed", "reason"},
		),
		decisionTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantguard_authz_decision_duration_seconds",
				Help:    "Permission check latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
		),
		boundaryChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_boundary_checks_total",
				Help: "Data boundary checks by outcome",
			},
			[]string{"allowed"},
		),
		principalCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_principal_cache_lookups_total",
				Help: "Principal cache lookups by result",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{r.decisions, r.decisionTime, r.boundaryChecks, r.principalCache} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	if m != nil {
		var err error
		if r.otelDecisions, err = m.CreateCounter("authz.decisions", "Permission checks by outcome"); err != nil {
			return nil, err
		}
		if r.otelLatency, err = m.CreateHistogram("authz.decision.duration", "Permission check latency", "s"); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveDecision records one permission check.
func (r *Recorder) ObserveDecision(ctx context.Context, allowed bool, reason string, elapsed time.Duration) {
	r.decisions.WithLabelValues(strconv.FormatBool(allowed), reason).Inc()
	r.decisionTime.Observe(elapsed.Seconds())

	if r.otelDecisions != nil {
		attrs := metric.WithAttributes(attribute.Bool("allowed", allowed), attribute.String("reason", reason))
		r.otelDecisions.Add(ctx, 1, attrs)
		r.otelLatency.Record(ctx, elapsed.Seconds())
	}
}

// ObserveBoundary records one boundary check.
func (r *Recorder) ObserveBoundary(_ context.Context, allowed bool) {
	r.boundaryChecks.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

// ObservePrincipalCache records a principal cache hit or miss.
func (r *Recorder) ObservePrincipalCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.principalCache.WithLabelValues(result).Inc()
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
