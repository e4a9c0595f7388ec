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
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker renders the events of one task as a single updating
// progress line.
type ProgressTracker struct {
	writer    io.Writer
	startTime time.Time
	last      Event
	started   bool
	mu        sync.Mutex
}

// NewProgressTracker creates a tracker writing to writer (typically os.Stderr).
func NewProgressTracker(writer io.Writer) *ProgressTracker {
	return &ProgressTracker{writer: writer}
}

// Observe renders event. The first event starts the clock; a terminal event
// ends the line.
func (p *ProgressTracker) Observe(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.startTime = time.Now()
		p.started = true
	}
	p.last = event
	p.report()
	if event.Ready {
		fmt.Fprintln(p.writer)
	}
}

// Elapsed returns the time since the first observed event.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	e := p.last
	switch e.State {
	case StateSuccess:
		fmt.Fprintf(p.writer, "\r%s: %d chunks embedded", e.State, e.TotalChunks)
		if e.Result != nil {
			fmt.Fprintf(p.writer, " with %s/%s (dim %d)", e.Result.Provider, e.Result.Model, e.Result.Dimension)
		}
	case StateFailure:
		fmt.Fprintf(p.writer, "\r%s: %s", e.State, e.Error)
	case StateEmbedding:
		percentage := 0.0
		if e.TotalChunks > 0 {
			percentage = float64(e.ProcessedChunks) / float64(e.TotalChunks) * 100.0
		}
		rate := float64(e.ProcessedChunks) / max(time.Since(p.startTime).Seconds(), 1e-3)
		fmt.Fprintf(p.writer, "\r%s: %d/%d (%.1f%%) - %.1f chunks/s",
			e.State, e.ProcessedChunks, e.TotalChunks, percentage, rate)
	default:
		fmt.Fprintf(p.writer, "\r%s", e.State)
	}
}
