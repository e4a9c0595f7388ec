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
// Package events carries progress events of background ingestion tasks from
// the pipeline to whoever is watching.
//
// Delivery is best-effort and at most once: publishing never blocks, and an
// event is dropped for a subscriber whose buffer is full. Pollers can read
// the most recent event of a task with Broker.Last instead of subscribing.
package events

import (
	"time"

	"github.com/poiesic/kbindex/core"
)

// State is the stage a task has reached.
type State string

const (
	StateStarted   State = "STARTED"
	StateChunked   State = "CHUNKED"
	StateEmbedding State = "EMBEDDING"
	StateSuccess   State = "SUCCESS"
	StateFailure   State = "FAILURE"
)

// Terminal reports whether no further events follow s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Summary describes a successful ingestion.
type Summary struct {
	DocumentID core.ID
	ChunkCount int
	Provider   string
	Model      string
	Dimension  int
}

// Event is one progress report of a task.
type Event struct {
	TaskID          string
	State           State
	Ready           bool // true once the task reached SUCCESS or FAILURE
	ProcessedChunks int
	TotalChunks     int
	Result          *Summary // set on SUCCESS
	Error           string   // set on FAILURE
	Time            time.Time
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	Publish(event Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
