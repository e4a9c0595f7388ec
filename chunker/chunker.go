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

// Package chunker splits document text into bounded, overlapping segments
// that prefer to end on paragraph, line or sentence boundaries.
package chunker

import (
	"strings"
)

const (
	// DefaultMaxChars is the default upper bound on chunk length, in characters.
	DefaultMaxChars = 900

	// DefaultOverlap is the default number of characters shared by consecutive windows.
	DefaultOverlap = 120

	// boundaryRatio is how far into a window a boundary must sit to be used as the cut.
	boundaryRatio = 0.6
)

// Boundaries in priority order.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune("。"),
	[]rune("."),
	[]rune("!"),
	[]rune("?"),
}

// Chunker carries chunking parameters.
type Chunker struct {
	maxChars int
	overlap  int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxChars sets the maximum chunk length in characters.
// Non-positive values are ignored.
func WithMaxChars(maxChars int) Option {
	return func(c *Chunker) {
		if maxChars > 0 {
			c.maxChars = maxChars
		}
	}
}

// WithOverlap sets the overlap between consecutive windows in characters.
// Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with default parameters and applies the options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChars: DefaultMaxChars,
		overlap:  DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxChars returns the configured maximum chunk length.
func (c *Chunker) MaxChars() int {
	return c.maxChars
}

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split splits text using the chunker's parameters.
func (c *Chunker) Split(text string) []string {
	return Split(text, c.maxChars, c.overlap)
}

// Split splits text into trimmed, non-empty chunks of at most maxChars
// characters. Consecutive windows share up to overlap characters. The result
// is a pure function of the arguments.
//
// A non-positive maxChars falls back to DefaultMaxChars and a negative
// overlap is treated as zero.
func Split(text string, maxChars, overlap int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	runes := []rune(text)
	total := len(runes)
	minCut := int(float64(maxChars) * boundaryRatio)

	chunks := make([]string, 0, total/maxChars+1)
	start := 0
	for start < total {
		end := start + maxChars
		if end > total {
			end = total
		}

		if end < total {
			if cut := findBoundary(runes[start:end], minCut); cut > 0 {
				end = start + cut
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}

		if end >= total {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// findBoundary returns the cut offset (just past the separator) of the first
// separator, in priority order, whose last occurrence in window starts at or
// after minCut. Returns 0 if there is none.
func findBoundary(window []rune, minCut int) int {
	for _, sep := range separators {
		idx := lastIndex(window, sep)
		if idx >= 0 && idx >= minCut {
			return idx + len(sep)
		}
	}
	return 0
}

func lastIndex(window, sep []rune) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if window[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// EstimateTokens approximates the token count of a chunk by its word count.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}
