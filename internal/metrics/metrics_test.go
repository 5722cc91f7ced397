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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newWithRegistry(Config{Namespace: "test"}, reg)

	if m.ComponentLoadsTotal == nil || m.ComponentLoadDuration == nil {
		t.Fatal("expected load metrics to be initialized")
	}
	if m.ToolCallsTotal == nil || m.ToolCallDuration == nil {
		t.Fatal("expected tool call metrics to be initialized")
	}
	if m.CompileCacheHitsTotal == nil || m.CompileCacheMissesTotal == nil {
		t.Fatal("expected compile cache metrics to be initialized")
	}
}

func TestRecordLoadIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newWithRegistry(Config{Namespace: "test"}, reg)

	m.RecordLoad(1.5, true)
	m.RecordLoad(0.2, false)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasCounterSample(families, "componenthost_component_loads_total", 2) {
		t.Fatal("expected two load attempts recorded")
	}
}

func TestRecordToolCallLabelsByToolAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newWithRegistry(Config{Namespace: "test"}, reg)

	m.RecordToolCall("search-components", 0.01, true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasCounterSample(families, "componenthost_tool_calls_total", 1) {
		t.Fatal("expected one tool call recorded")
	}
	labeled := false
	for _, fam := range families {
		if fam.GetName() != "componenthost_tool_calls_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["tool"] == "search-components" && labels["status"] == StatusSuccess {
				labeled = true
			}
		}
	}
	if !labeled {
		t.Fatal("expected a tool call sample labeled tool=search-components, status=success")
	}
}

func TestRecordPermissionDenial(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newWithRegistry(Config{Namespace: "test"}, reg)

	m.RecordPermissionDenial("network")
	m.RecordPermissionDenial("network")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasCounterSample(families, "componenthost_permission_denials_total", 2) {
		t.Fatal("expected two permission denials recorded")
	}
}

func TestNoOpRecorderDiscardsEverything(t *testing.T) {
	var r Recorder = NoOp{}
	r.RecordLoad(1, true)
	r.RecordUnload(false)
	r.RecordToolCall("x", 1, true)
	r.RecordPermissionDenial("storage")
	r.RecordCompileCacheHit()
	r.RecordCompileCacheMiss()
}

func hasCounterSample(families []*dto.MetricFamily, name string, wantTotal float64) bool {
	var total float64
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
	}
	return total == wantTotal
}
