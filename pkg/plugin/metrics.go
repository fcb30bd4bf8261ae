/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricsNamespace = "appvolume"

type driverMetrics struct {
	updates     prometheus.Counter
	removes     prometheus.Counter
	evictions   prometheus.Counter
	mapFailures prometheus.Counter
	entries     prometheus.GaugeFunc
	generation  prometheus.GaugeFunc

	operations metric.Int64Counter
}

func newDriverMetrics(config *Config, d *Driver) (*driverMetrics, error) {
	m := &driverMetrics{
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_total",
			Help:      "Volume and mute writes published to the shared state.",
		}),
		removes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "removes_total",
			Help:      "Applications removed from the shared state.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evictions_total",
			Help:      "Slots reassigned because the table was full.",
		}),
		mapFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "map_failures_total",
			Help:      "Failed attempts to map the shared state.",
		}),
		entries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "entries",
			Help:      "Advisory number of occupied slots.",
		}, func() float64 { return float64(d.header().EntryCount) }),
		generation: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "generation",
			Help:      "Change counter of the shared state.",
		}, func() float64 { return float64(d.header().Generation) }),
	}

	var err error
	m.operations, err = config.Meter.Int64Counter("appvolume.operations",
		metric.WithDescription("Mutating driver calls."),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}

	if config.Registerer == nil {
		return m, nil
	}
	for i, c := range m.collectors() {
		if err := config.Registerer.Register(c); err != nil {
			for _, done := range m.collectors()[:i] {
				config.Registerer.Unregister(done)
			}
			if errors.As(err, &prometheus.AlreadyRegisteredError{}) {
				return nil, fmt.Errorf("register driver metrics: %w (use one registry per driver)", err)
			}
			return nil, fmt.Errorf("register driver metrics: %w", err)
		}
	}
	return m, nil
}

func (m *driverMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.updates, m.removes, m.evictions, m.mapFailures, m.entries, m.generation}
}

func (m *driverMetrics) unregister(r prometheus.Registerer) {
	if r == nil {
		return
	}
	for _, c := range m.collectors() {
		r.Unregister(c)
	}
}

func (m *driverMetrics) record(ctx context.Context, op string) {
	m.operations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
