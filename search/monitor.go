package search

import (
	"github.com/poiesic/kbindex/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query Query)
	CacheHit(key string, hits []core.SearchHit)
	ProviderFailed(provider string, err error)
	AfterSimilaritySearch(provider string, matches []*core.ChunkMatch)
	Finish(hits []core.SearchHit)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)                                        {}
func (n *noopMonitor) CacheHit(_ string, _ []core.SearchHit)                {}
func (n *noopMonitor) ProviderFailed(_ string, _ error)                     {}
func (n *noopMonitor) AfterSimilaritySearch(_ string, _ []*core.ChunkMatch) {}
func (n *noopMonitor) Finish(_ []core.SearchHit)                            {}
