package badger

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/kbindex/core"
)

// norm returns the Euclidean length of v.
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance returns 1 - cos(a, b). A zero vector is treated as
// orthogonal to everything.
func cosineDistance(a []float32, aNorm float64, b []float32) float32 {
	bNorm := norm(b)
	if aNorm == 0 || bNorm == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(1 - dot/(aNorm*bNorm))
}

// candidateSet keeps the k nearest matches seen so far, ordered by
// ascending distance.
type candidateSet struct {
	k       int
	matches []*core.ChunkMatch
}

func newCandidateSet(k int) *candidateSet {
	return &candidateSet{k: k, matches: make([]*core.ChunkMatch, 0, min(k, 64))}
}

func compareMatches(a, b *core.ChunkMatch) int {
	return cmp.Or(
		cmp.Compare(a.Distance, b.Distance),
		cmp.Compare(a.Chunk.DocumentId, b.Chunk.DocumentId),
		cmp.Compare(a.Chunk.Index, b.Chunk.Index),
	)
}

func (s *candidateSet) add(chunk *core.Chunk, distance float32) {
	match := &core.ChunkMatch{Chunk: chunk, Distance: distance}
	if len(s.matches) == s.k && compareMatches(match, s.matches[len(s.matches)-1]) >= 0 {
		return
	}
	i, _ := slices.BinarySearchFunc(s.matches, match, compareMatches)
	s.matches = slices.Insert(s.matches, i, match)
	if len(s.matches) > s.k {
		s.matches = s.matches[:s.k]
	}
}

func (s *candidateSet) sorted() []*core.ChunkMatch {
	return s.matches
}
