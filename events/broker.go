// Copyright 2025 Poiesic Systems
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
package events

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultBuffer is the channel capacity of a subscription.
	DefaultBuffer = 16

	// DefaultRetention is how long the last event of a finished task stays
	// readable through Last.
	DefaultRetention = 10 * time.Minute
)

// Broker fans events out to subscribers and remembers the latest event of
// every task.
type Broker struct {
	mu      sync.Mutex
	nextID  int
	byTask  map[string]map[int]chan Event
	all     map[int]chan Event
	last    map[string]Event
	dropped int
	logger  *slog.Logger

	retention time.Duration
	now       func() time.Time
}

var _ Publisher = (*Broker)(nil)

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRetention sets how long finished tasks are remembered.
// Non-positive values are ignored.
func WithRetention(retention time.Duration) Option {
	return func(b *Broker) {
		if retention > 0 {
			b.retention = retention
		}
	}
}

// NewBroker creates an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		byTask: make(map[string]map[int]chan Event),
		all:    make(map[int]chan Event),
		last:   make(map[string]Event),
		logger: slog.Default(),

		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "event-broker")
	return b
}

// Subscribe returns a channel receiving the events of taskID, or of every
// task when taskID is empty. A task subscription is closed after the task's
// terminal event. The returned function cancels the subscription and is
// safe to call more than once.
func (b *Broker) Subscribe(taskID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if taskID == "" {
		b.all[id] = ch
	} else {
		subs, ok := b.byTask[taskID]
		if !ok {
			subs = make(map[int]chan Event)
			b.byTask[taskID] = subs
		}
		subs[id] = ch
	}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if taskID == "" {
				if _, ok := b.all[id]; ok {
					delete(b.all, id)
					close(ch)
				}
				return
			}
			if subs, ok := b.byTask[taskID]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(b.byTask, taskID)
				}
			}
		})
	}
}

// Publish records event as the task's latest and offers it to every
// matching subscriber without blocking.
func (b *Broker) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = b.now().UTC()
	}
	event.Ready = event.State.Terminal()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.last[event.TaskID] = event
	for _, ch := range b.all {
		b.offer(ch, event)
	}
	subs := b.byTask[event.TaskID]
	for id, ch := range subs {
		b.offer(ch, event)
		if event.Ready {
			delete(subs, id)
			close(ch)
		}
	}
	if event.Ready {
		delete(b.byTask, event.TaskID)
		b.expire()
	}
}

// expire drops remembered finished tasks older than the retention period.
// Running tasks are kept whatever their age.
func (b *Broker) expire() {
	cutoff := b.now().Add(-b.retention)
	for taskID, event := range b.last {
		if event.Ready && event.Time.Before(cutoff) {
			delete(b.last, taskID)
		}
	}
}

func (b *Broker) offer(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		b.dropped++
		b.logger.Debug("dropping event for slow subscriber", "task", event.TaskID, "state", event.State)
	}
}

// Last returns the most recent event published for taskID.
func (b *Broker) Last(taskID string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	event, ok := b.last[taskID]
	return event, ok
}

// Forget drops the remembered state of a finished task.
func (b *Broker) Forget(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, taskID)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Broker) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
