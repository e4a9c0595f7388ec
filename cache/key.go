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
package cache

import (
	"strconv"
	"strings"

	"github.com/minio/highwayhash"
)

const (
	// SearchPrefix starts every search result key.
	SearchPrefix = "kb:search:"

	// AllWorkspaces stands in for the workspace segment of unscoped searches.
	AllWorkspaces = "all"
)

var hashKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// QueryHash returns the HighwayHash-64 of the trimmed query as hex.
func QueryHash(query string) string {
	sum := highwayhash.Sum64([]byte(strings.TrimSpace(query)), hashKey)
	return strconv.FormatUint(sum, 16)
}

// SearchKey builds the cache key of a search:
// kb:search:<owner>:<workspace or all>:<limit>:<query hash>.
func SearchKey(ownerID, workspaceID string, limit int, query string) string {
	return ownerPrefix(ownerID) + workspaceSegment(workspaceID) + ":" +
		strconv.Itoa(limit) + ":" + QueryHash(query)
}

// InvalidationPatterns returns the patterns that cover every cached search an
// ingestion into the given owner and workspace may have changed: the
// workspace's own entries, when it has one, and the owner's unscoped entries.
func InvalidationPatterns(ownerID, workspaceID string) []string {
	all := ownerPrefix(ownerID) + AllWorkspaces + ":*"
	if workspaceID == "" {
		return []string{all}
	}
	return []string{ownerPrefix(ownerID) + workspaceID + ":*", all}
}

func ownerPrefix(ownerID string) string {
	return SearchPrefix + ownerID + ":"
}

func workspaceSegment(workspaceID string) string {
	if workspaceID == "" {
		return AllWorkspaces
	}
	return workspaceID
}

// Match reports whether key matches the glob pattern. '*' matches any run of
// characters, including none; every other character matches itself.
func Match(pattern, key string) bool {
	p, k := 0, 0
	star, mark := -1, 0
	for k < len(key) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, k
			p++
		case p < len(pattern) && pattern[p] == key[k]:
			p++
			k++
		case star >= 0:
			p = star + 1
			mark++
			k = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// literalPrefix returns the part of pattern before its first wildcard.
func literalPrefix(pattern string) string {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
