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
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultMaxGain          = float32(4.0)
	defaultMapRetries       = 3
	defaultMapRetryInterval = 50 * time.Millisecond
	defaultPollInterval     = time.Second
	defaultWatchQueueHint   = 64
	defaultWatchWorkers     = 4

	instrumentationName = "github.com/srediag/appvolume-shm"
)

// Config is used to tune the Driver.
type Config struct {
	// Path is the backing file of the shared state. Empty selects shm.DefaultPath.
	Path string

	// StrictVersion makes mapping fail on a file initialized by another layout version.
	StrictVersion bool

	// MaxGain is the upper bound SetVolume clamps to, 4.0 (+12 dB) by default.
	MaxGain float32

	// MapRetries is how many times Initialize retries a transient mapping failure.
	MapRetries uint64

	// MapRetryInterval is the pause between two mapping attempts.
	MapRetryInterval time.Duration

	// PollInterval is how often the watcher reads the generation counter.
	PollInterval time.Duration

	// WatchQueueHint sizes the watcher event queue.
	WatchQueueHint int64

	// WatchWorkers bounds the number of subscribers notified concurrently.
	WatchWorkers int

	// Registerer receives the driver collectors. Nil disables prometheus metrics.
	Registerer prometheus.Registerer

	// Meter and Tracer instrument the mutating calls. Both default to no-op.
	Meter  metric.Meter
	Tracer trace.Tracer

	// LogOutput receives the driver logs.
	LogOutput io.Writer
}

// DefaultConfig is used to return a default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxGain:          defaultMaxGain,
		MapRetries:       defaultMapRetries,
		MapRetryInterval: defaultMapRetryInterval,
		PollInterval:     defaultPollInterval,
		WatchQueueHint:   defaultWatchQueueHint,
		WatchWorkers:     defaultWatchWorkers,
		Meter:            metricnoop.NewMeterProvider().Meter(instrumentationName),
		Tracer:           tracenoop.NewTracerProvider().Tracer(instrumentationName),
		LogOutput:        os.Stderr,
	}
}

// VerifyConfig is used to verify the sanity of configuration
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("config is nil")
	}
	if math.IsNaN(float64(config.MaxGain)) || math.IsInf(float64(config.MaxGain), 0) || config.MaxGain <= 0 {
		return fmt.Errorf("MaxGain must be a positive finite number, got %v", config.MaxGain)
	}
	if config.MapRetryInterval < 0 {
		return fmt.Errorf("MapRetryInterval must not be negative, got %v", config.MapRetryInterval)
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("PollInterval must be positive, got %v", config.PollInterval)
	}
	if config.WatchQueueHint <= 0 {
		return fmt.Errorf("WatchQueueHint must be positive, got %d", config.WatchQueueHint)
	}
	if config.WatchWorkers <= 0 {
		return fmt.Errorf("WatchWorkers must be positive, got %d", config.WatchWorkers)
	}
	if config.Meter == nil || config.Tracer == nil {
		return errors.New("Meter and Tracer must be set, use DefaultConfig for no-op ones")
	}
	if config.LogOutput == nil {
		return errors.New("LogOutput must be set")
	}
	return nil
}
