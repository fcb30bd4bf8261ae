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
	"sort"
	"sync"
	"sync/atomic"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/srediag/appvolume-shm/internal/logger"
	"github.com/srediag/appvolume-shm/pkg/shm"
)

// EventKind tells what happened to an application.
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventChanged
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// Event is one observed change. For EventRemoved, Volume holds the last
// values seen before the removal.
type Event struct {
	Kind       EventKind
	Volume     shm.Volume
	Generation uint64
}

// Handler receives events. Events of one poll are delivered in order; a
// handler is never called concurrently with itself.
type Handler func(Event)

const dispatchBatch = 64

// Watcher polls the state of a Driver and turns every change into events
// for its subscribers. The first poll reports every tracked
// application as added.
type Watcher struct {
	driver   *Driver
	interval time.Duration
	log      *logger.Logger

	queue  *eventQueue
	pool   *ants.Pool
	subs   *xsync.MapOf[uint64, Handler]
	nextID atomic.Uint64

	// owned by the poll loop
	prev map[string]shm.Volume

	cancel   context.CancelFunc
	loops    sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
}

// NewWatcher returns a stopped watcher for d.
func NewWatcher(d *Driver) (*Watcher, error) {
	pool, err := ants.NewPool(d.config.WatchWorkers)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		driver:   d,
		interval: d.config.PollInterval,
		log:      d.log,
		queue:    newEventQueue(d.config.WatchQueueHint),
		pool:     pool,
		subs:     xsync.NewMapOf[uint64, Handler](),
		prev:     make(map[string]shm.Volume),
	}, nil
}

// Start launches the poll and dispatch loops. Calling it again is a no-op.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.loops.Add(2)
	go w.pollLoop(ctx)
	go w.dispatchLoop()
}

// Subscribe registers h and returns its subscription id.
func (w *Watcher) Subscribe(h Handler) uint64 {
	id := w.nextID.Add(1)
	w.subs.Store(id, h)
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (w *Watcher) Unsubscribe(id uint64) {
	w.subs.Delete(id)
}

// Subscribers returns the number of subscriptions.
func (w *Watcher) Subscribers() int {
	return w.subs.Size()
}

// Stop ends both loops, drops undelivered events and releases the pool.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.queue.dispose()
		w.loops.Wait()
		w.pool.Release()
	})
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.loops.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.poll(ctx); err != nil && ctx.Err() == nil {
			w.log.Warnf("poll shared volume state: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll diffs a fresh snapshot against the previous one and queues the
// differences. A reset restarts the generation, so an equal generation does
// not prove that nothing changed. It returns the number of queued events.
func (w *Watcher) poll(ctx context.Context) (int, error) {
	vols, gen, err := w.driver.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	events := diffVolumes(w.prev, vols, gen)
	w.prev = make(map[string]shm.Volume, len(vols))
	for _, v := range vols {
		w.prev[v.Identifier] = v
	}
	if len(events) == 0 {
		return 0, nil
	}
	if err := w.queue.put(events...); err != nil {
		return 0, err
	}
	return len(events), nil
}

func (w *Watcher) dispatchLoop() {
	defer w.loops.Done()
	for {
		events, err := w.queue.pop(dispatchBatch)
		if errors.Is(err, queuepkg.ErrDisposed) {
			return
		}
		if err != nil {
			w.log.Errorf("read watcher queue: %v", err)
		}
		if len(events) > 0 {
			w.deliver(events)
		}
	}
}

// deliver hands a batch to every subscriber on the pool and waits, so the
// next batch cannot overtake it.
func (w *Watcher) deliver(events []Event) {
	var wg sync.WaitGroup
	w.subs.Range(func(id uint64, h Handler) bool {
		wg.Add(1)
		err := w.pool.Submit(func() {
			defer wg.Done()
			for _, e := range events {
				h(e)
			}
		})
		if err != nil {
			wg.Done()
			w.log.Warnf("deliver %d events to subscriber %d: %v", len(events), id, err)
		}
		return true
	})
	wg.Wait()
}

// diffVolumes lists additions and changes in slot order, then removals by identifier.
func diffVolumes(prev map[string]shm.Volume, cur []shm.Volume, gen uint64) []Event {
	var events []Event
	seen := make(map[string]struct{}, len(cur))
	for _, v := range cur {
		seen[v.Identifier] = struct{}{}
		old, ok := prev[v.Identifier]
		switch {
		case !ok:
			events = append(events, Event{Kind: EventAdded, Volume: v, Generation: gen})
		case old.Gain != v.Gain || old.Muted != v.Muted:
			events = append(events, Event{Kind: EventChanged, Volume: v, Generation: gen})
		}
	}
	var removed []string
	for id := range prev {
		if _, ok := seen[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		events = append(events, Event{Kind: EventRemoved, Volume: prev[id], Generation: gen})
	}
	return events
}
