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
	"fmt"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// eventQueue buffers watcher events between the poll loop and the dispatcher.
type eventQueue struct {
	q *queuepkg.Queue
}

func newEventQueue(hint int64) *eventQueue {
	return &eventQueue{q: queuepkg.New(hint)}
}

func (q *eventQueue) put(events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	items := make([]interface{}, len(events))
	for i := range events {
		items[i] = events[i]
	}
	return q.q.Put(items...)
}

// pop blocks until at least one event is queued and returns up to n of
// them. It returns queuepkg.ErrDisposed once the queue is disposed.
func (q *eventQueue) pop(n int64) ([]Event, error) {
	items, err := q.q.Get(n)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		e, ok := item.(Event)
		if !ok {
			return events, fmt.Errorf("invalid queue element type %T", item)
		}
		events = append(events, e)
	}
	return events, nil
}

func (q *eventQueue) len() int64 {
	return q.q.Len()
}

func (q *eventQueue) dispose() {
	q.q.Dispose()
}
