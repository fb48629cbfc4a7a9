package monitor

import (
	"sync/atomic"
)

// SearchStats counts lookups against one reader.
type SearchStats struct {
	Searches atomic.Uint64
	Probes   atomic.Uint64
	Hits     atomic.Uint64
}

func NewSearchStats() *SearchStats {
	return &SearchStats{}
}

func (ss *SearchStats) RecordSearch() {
	ss.Searches.Add(1)
}

func (ss *SearchStats) RecordProbe() {
	ss.Probes.Add(1)
}

func (ss *SearchStats) RecordHit() {
	ss.Hits.Add(1)
}

// HitRatio is hits per search, 0 when nothing was searched.
func (ss *SearchStats) HitRatio() float64 {
	searches := ss.Searches.Load()
	if searches == 0 {
		return 0.0
	}
	return float64(ss.Hits.Load()) / float64(searches)
}

func (ss *SearchStats) Snapshot() map[string]any {
	return map[string]any{
		"searches":  ss.Searches.Load(),
		"probes":    ss.Probes.Load(),
		"hits":      ss.Hits.Load(),
		"hit_ratio": ss.HitRatio(),
	}
}
