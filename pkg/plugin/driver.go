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
	"io"
	"math"
	"os"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/appvolume-shm/api"
	"github.com/srediag/appvolume-shm/internal/logger"
	"github.com/srediag/appvolume-shm/pkg/shm"
)

var (
	_ api.VolumeStore = (*Driver)(nil)
	_ api.Lifecycle   = (*Driver)(nil)
)

// ErrInvalidGain is returned by SetVolume for a NaN gain.
var ErrInvalidGain = errors.New("gain is not a number")

// Stats is a copy of the shared header plus the mapping state.
type Stats struct {
	Path            string
	Mapped          bool
	Initialized     bool
	Version         uint32
	VersionMismatch uint32
	EntryCount      uint32
	Generation      uint64
	LastWriterPID   uint64
	LastWriterUID   uint64
}

// Driver is the volume store as seen by one process: the audio engine, the
// control application or a diagnostic tool. It owns one mapping of the shared
// state and serializes its own calls; other processes are not excluded.
// Every call maps the state first if needed.
type Driver struct {
	mu       sync.Mutex
	config   *Config
	accessor *shm.Accessor
	index    *shm.Index
	identity uint32
	metrics  *driverMetrics
	tracer   trace.Tracer
	log      *logger.Logger
	watcher  *Watcher
}

// NewDriver returns an unmapped driver. A nil config selects DefaultConfig.
func NewDriver(config *Config) (*Driver, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	log := logger.New("appvolume", config.LogOutput)
	opts := []shm.Option{
		shm.WithStrictVersion(config.StrictVersion),
		shm.WithLogger(log),
	}
	if config.Path != "" {
		opts = append(opts, shm.WithPath(config.Path))
	}
	d := &Driver{
		config:   config,
		accessor: shm.NewAccessor(opts...),
		index:    shm.NewIndex(),
		identity: uint32(os.Getuid()),
		tracer:   config.Tracer,
		log:      log,
	}
	m, err := newDriverMetrics(config, d)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Initialize maps the shared state, creating it when missing. Transient
// failures are retried; directory problems and a rejected layout version
// are returned at once.
func (d *Driver) Initialize(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "appvolume.Initialize")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	return traceError(span, d.mapLocked(ctx, d.config.MapRetries))
}

// Shutdown stops the watcher and releases the mapping. It can be called
// repeatedly; a later call on the driver maps the state again.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	w := d.watcher
	d.watcher = nil
	d.mu.Unlock()
	// the watcher polls through the driver, stop it unlocked
	if w != nil {
		w.Stop()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.index.Clear()
	return d.accessor.Unmap()
}

// Close releases the mapping and unregisters the driver collectors.
func (d *Driver) Close() error {
	err := d.Shutdown()
	d.metrics.unregister(d.config.Registerer)
	return err
}

// SetVolume stores the gain of id, clamped to [0, MaxGain], keeping its mute flag.
func (d *Driver) SetVolume(id string, gain float32) error {
	ctx, span := d.startSpan("appvolume.SetVolume", id)
	defer span.End()
	if math.IsNaN(float64(gain)) {
		return traceError(span, fmt.Errorf("%w: %s", ErrInvalidGain, id))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(ctx, 0); err != nil {
		return traceError(span, err)
	}
	st := d.accessor.State()
	muted := false
	if v, ok := d.index.Lookup(st, id); ok {
		muted = v.Muted
	}
	return traceError(span, d.updateLocked(ctx, "set_volume", id, d.clamp(gain), muted))
}

// Volume returns the gain of id. An untracked id reads as unity gain along
// with an error wrapping shm.ErrNotFound.
func (d *Driver) Volume(id string) (float32, error) {
	if shm.Truncate(id) == "" {
		return shm.UnityGain, shm.ErrEmptyIdentifier
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(context.Background(), 0); err != nil {
		return shm.UnityGain, err
	}
	v, ok := d.index.Lookup(d.accessor.State(), id)
	if !ok {
		return shm.UnityGain, fmt.Errorf("%w: %s", shm.ErrNotFound, id)
	}
	return v.Gain, nil
}

// SetMute stores the mute flag of id, keeping its gain, or unity gain for a new id.
func (d *Driver) SetMute(id string, mute bool) error {
	ctx, span := d.startSpan("appvolume.SetMute", id)
	defer span.End()
	span.SetAttributes(attribute.Bool("app.muted", mute))

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(ctx, 0); err != nil {
		return traceError(span, err)
	}
	gain := shm.UnityGain
	if v, ok := d.index.Lookup(d.accessor.State(), id); ok {
		gain = v.Gain
	}
	return traceError(span, d.updateLocked(ctx, "set_mute", id, gain, mute))
}

// IsMuted reports the mute flag of id. An untracked id, or a state that
// cannot be mapped, reads as not muted.
func (d *Driver) IsMuted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(context.Background(), 0); err != nil {
		return false
	}
	v, ok := d.index.Lookup(d.accessor.State(), id)
	return ok && v.Muted
}

// Remove stops tracking id.
func (d *Driver) Remove(id string) error {
	ctx, span := d.startSpan("appvolume.Remove", id)
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(ctx, 0); err != nil {
		return traceError(span, err)
	}
	if err := shm.Remove(d.accessor.State(), id); err != nil {
		return traceError(span, err)
	}
	d.index.Forget(id)
	d.metrics.removes.Inc()
	d.metrics.record(ctx, "remove")
	return nil
}

// Applications returns the tracked identifiers in slot order, or nil when
// the state cannot be mapped.
func (d *Driver) Applications() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(context.Background(), 0); err != nil {
		return nil
	}
	vols := shm.Snapshot(d.accessor.State())
	ids := make([]string, 0, len(vols))
	for _, v := range vols {
		ids = append(ids, v.Identifier)
	}
	return ids
}

// Snapshot returns every tracked application together with the generation
// the copy is consistent with.
func (d *Driver) Snapshot(ctx context.Context) ([]shm.Volume, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(ctx, 0); err != nil {
		return nil, 0, err
	}
	return shm.ConsistentSnapshot(ctx, d.accessor.State())
}

// Reset wipes the shared state of every process and initializes it again.
func (d *Driver) Reset() error {
	ctx, span := d.tracer.Start(context.Background(), "appvolume.Reset")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(ctx, 0); err != nil {
		return traceError(span, err)
	}
	shm.Reset(d.accessor.State())
	d.index.Clear()
	d.metrics.record(ctx, "reset")
	d.log.Infof("reset shared state %s", d.accessor.Path())
	return nil
}

// Stats maps the state if needed and returns its header.
func (d *Driver) Stats() (Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(context.Background(), 0); err != nil {
		return Stats{Path: d.accessor.Path()}, err
	}
	return d.statsLocked(), nil
}

// Dump writes the header and every occupied slot to w.
func (d *Driver) Dump(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(context.Background(), 0); err != nil {
		return err
	}
	return DumpState(w, d.accessor.State())
}

// Path returns the backing file.
func (d *Driver) Path() string {
	return d.accessor.Path()
}

// Watch subscribes h to changes of the shared state, starting the driver
// watcher on first use. The subscription ends when ctx is done or when the
// returned function is called.
func (d *Driver) Watch(ctx context.Context, h Handler) (func(), error) {
	d.mu.Lock()
	w := d.watcher
	if w == nil {
		var err error
		if w, err = NewWatcher(d); err != nil {
			d.mu.Unlock()
			return nil, err
		}
		w.Start()
		d.watcher = w
	}
	d.mu.Unlock()

	id := w.Subscribe(h)
	stop := context.AfterFunc(ctx, func() { w.Unsubscribe(id) })
	return func() {
		stop()
		w.Unsubscribe(id)
	}, nil
}

// header reads the header without mapping, for the metric collectors.
func (d *Driver) header() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.accessor.Valid() {
		return Stats{Path: d.accessor.Path()}
	}
	return d.statsLocked()
}

func (d *Driver) statsLocked() Stats {
	h := &d.accessor.State().Header
	return Stats{
		Path:            d.accessor.Path(),
		Mapped:          true,
		Initialized:     d.accessor.Initialized(),
		Version:         h.Version(),
		VersionMismatch: d.accessor.VersionMismatch(),
		EntryCount:      h.EntryCount(),
		Generation:      h.Generation(),
		LastWriterPID:   h.LastWriterPID(),
		LastWriterUID:   h.LastWriterUID(),
	}
}

// mapLocked maps the state unless it already is, retrying transient failures
// up to retries times. d.mu must be held.
func (d *Driver) mapLocked(ctx context.Context, retries uint64) error {
	if d.accessor.Valid() {
		return nil
	}
	op := func() error {
		err := d.accessor.MapFor(ctx, d.identity, true)
		if err == nil {
			return nil
		}
		d.metrics.mapFailures.Inc()
		if permanentMapError(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		d.log.Debugf("map %s failed, retrying: %v", d.accessor.Path(), err)
		return err
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.config.MapRetryInterval), retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		d.log.Errorf("failed to map shared volume state %s: %v", d.accessor.Path(), err)
		return err
	}
	d.index.Rebuild(d.accessor.State())
	return nil
}

func permanentMapError(err error) bool {
	return errors.Is(err, shm.ErrDirectory) ||
		errors.Is(err, shm.ErrVersionMismatch) ||
		errors.Is(err, shm.ErrUnsupported)
}

func (d *Driver) updateLocked(ctx context.Context, op, id string, gain float32, mute bool) error {
	res, err := shm.Update(d.accessor.State(), id, gain, mute)
	if err != nil {
		return err
	}
	d.index.Note(id, res)
	d.metrics.updates.Inc()
	d.metrics.record(ctx, op)
	if res.Evicted != "" {
		d.metrics.evictions.Inc()
		d.log.Infof("table full, evicted %s for %s", res.Evicted, id)
	}
	return nil
}

func (d *Driver) clamp(gain float32) float32 {
	switch {
	case gain < 0:
		return 0
	case gain > d.config.MaxGain:
		return d.config.MaxGain
	}
	return gain
}

func (d *Driver) startSpan(name, id string) (context.Context, trace.Span) {
	return d.tracer.Start(context.Background(), name, trace.WithAttributes(attribute.String("app.id", id)))
}

func traceError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
