/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics holds the Prometheus metrics emitted by the component
// host: component loads/unloads, tool call outcomes, permission denials,
// and compilation cache effectiveness.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// HostMetrics holds Prometheus metrics for the component host's lifecycle
// and dispatch operations.
type HostMetrics struct {
	// ComponentLoadsTotal is the total number of load attempts.
	ComponentLoadsTotal *prometheus.CounterVec
	// ComponentLoadDuration is the histogram of load durations.
	ComponentLoadDuration *prometheus.HistogramVec
	// ComponentUnloadsTotal is the total number of unload attempts.
	ComponentUnloadsTotal *prometheus.CounterVec
	// ComponentsLoaded is the current number of fully loaded components.
	ComponentsLoaded prometheus.Gauge

	// ToolCallsTotal is the total number of dispatched tool calls.
	ToolCallsTotal *prometheus.CounterVec
	// ToolCallDuration is the histogram of tool call durations.
	ToolCallDuration *prometheus.HistogramVec

	// PermissionDenialsTotal is the total number of sandbox permission denials.
	PermissionDenialsTotal *prometheus.CounterVec

	// CompileCacheHitsTotal counts compilations served from the on-disk cache.
	CompileCacheHitsTotal prometheus.Counter
	// CompileCacheMissesTotal counts compilations that parsed wasm bytes fresh.
	CompileCacheMissesTotal prometheus.Counter
}

// DefaultLoadDurationBuckets are the default histogram buckets for component
// load durations: resolving, staging, and compiling a component typically
// takes longer than a single tool call.
var DefaultLoadDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60}

// DefaultToolCallDurationBuckets are the default histogram buckets for tool
// call durations.
var DefaultToolCallDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10}

// Config configures the namespace metrics are registered under.
type Config struct {
	Namespace string
}

// New creates and registers all Prometheus metrics for the component host
// against the default global registry.
func New(cfg Config) *HostMetrics {
	return newWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// newWithRegistry is factored out so tests can register against a scratch
// prometheus.Registry instead of the global one.
func newWithRegistry(cfg Config, reg prometheus.Registerer) *HostMetrics {
	labels := prometheus.Labels{"namespace": cfg.Namespace}
	f := promauto.With(reg)

	return &HostMetrics{
		ComponentLoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "componenthost_component_loads_total",
			Help:        "Total number of component load attempts",
			ConstLabels: labels,
		}, []string{"status"}),

		ComponentLoadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "componenthost_component_load_duration_seconds",
			Help:        "Component load duration in seconds",
			ConstLabels: labels,
			Buckets:     DefaultLoadDurationBuckets,
		}, []string{"status"}),

		ComponentUnloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "componenthost_component_unloads_total",
			Help:        "Total number of component unload attempts",
			ConstLabels: labels,
		}, []string{"status"}),

		ComponentsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name:        "componenthost_components_loaded",
			Help:        "Number of currently loaded components",
			ConstLabels: labels,
		}),

		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "componenthost_tool_calls_total",
			Help:        "Total number of dispatched tool calls",
			ConstLabels: labels,
		}, []string{"tool", "status"}),

		ToolCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "componenthost_tool_call_duration_seconds",
			Help:        "Tool call duration in seconds",
			ConstLabels: labels,
			Buckets:     DefaultToolCallDurationBuckets,
		}, []string{"tool"}),

		PermissionDenialsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "componenthost_permission_denials_total",
			Help:        "Total number of sandbox permission denials",
			ConstLabels: labels,
		}, []string{"kind"}),

		CompileCacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name:        "componenthost_compile_cache_hits_total",
			Help:        "Total number of component compilations served from the on-disk cache",
			ConstLabels: labels,
		}),

		CompileCacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name:        "componenthost_compile_cache_misses_total",
			Help:        "Total number of component compilations that parsed wasm bytes fresh",
			ConstLabels: labels,
		}),
	}
}

// RecordLoad records the outcome of a component load attempt.
func (m *HostMetrics) RecordLoad(durationSeconds float64, success bool) {
	status := statusOf(success)
	m.ComponentLoadsTotal.WithLabelValues(status).Inc()
	m.ComponentLoadDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordUnload records the outcome of a component unload attempt.
func (m *HostMetrics) RecordUnload(success bool) {
	m.ComponentUnloadsTotal.WithLabelValues(statusOf(success)).Inc()
}

// RecordToolCall records the outcome of a dispatched tool call.
func (m *HostMetrics) RecordToolCall(tool string, durationSeconds float64, success bool) {
	status := statusOf(success)
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordPermissionDenial records a sandbox permission denial of the given kind
// (e.g. "network", "storage").
func (m *HostMetrics) RecordPermissionDenial(kind string) {
	m.PermissionDenialsTotal.WithLabelValues(kind).Inc()
}

// RecordCompileCacheHit records a compilation served from the on-disk cache.
func (m *HostMetrics) RecordCompileCacheHit() { m.CompileCacheHitsTotal.Inc() }

// RecordCompileCacheMiss records a compilation that parsed wasm bytes fresh.
func (m *HostMetrics) RecordCompileCacheMiss() { m.CompileCacheMissesTotal.Inc() }

func statusOf(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusError
}

// Recorder is the interface components use to emit metrics, so a no-op
// implementation can stand in when metrics collection is disabled.
type Recorder interface {
	RecordLoad(durationSeconds float64, success bool)
	RecordUnload(success bool)
	RecordToolCall(tool string, durationSeconds float64, success bool)
	RecordPermissionDenial(kind string)
	RecordCompileCacheHit()
	RecordCompileCacheMiss()
}

// NoOp is a Recorder that discards every observation, used when metrics are
// disabled.
type NoOp struct{}

func (NoOp) RecordLoad(float64, bool)          {}
func (NoOp) RecordUnload(bool)                 {}
func (NoOp) RecordToolCall(string, float64, bool) {}
func (NoOp) RecordPermissionDenial(string)     {}
func (NoOp) RecordCompileCacheHit()            {}
func (NoOp) RecordCompileCacheMiss()           {}
