package segmap

// SegmentStats describes one segment slot.
type SegmentStats struct {
	Index     int   `json:"index"`
	Installed bool  `json:"installed"`
	Count     int   `json:"count"`
	TableLen  int   `json:"table_len"`
	Resizes   int64 `json:"resizes"`
}

// Stats is a point-in-time summary of the map structure. Segments are read
// one after another without locking, so under concurrent writes the numbers
// are approximate.
type Stats struct {
	Segments          int            `json:"segments"`
	InstalledSegments int            `json:"installed_segments"`
	Count             int            `json:"count"`
	Buckets           int            `json:"buckets"`
	Resizes           int64          `json:"resizes"`
	LockEscalations   int64          `json:"lock_escalations"`
	PerSegment        []SegmentStats `json:"per_segment"`
}

// Stats collects structural statistics.
func (m *Map[K, V]) Stats() Stats {
	stats := Stats{
		Segments:        m.dir.len(),
		LockEscalations: m.escalations.Load(),
		PerSegment:      make([]SegmentStats, m.dir.len()),
	}
	for j := range m.dir.slots {
		seg := SegmentStats{Index: j}
		if s := m.dir.segmentAt(j); s != nil {
			seg.Installed = true
			seg.Count = int(s.count.Load())
			seg.TableLen = s.tableLen()
			seg.Resizes = s.resizes.Load()

			stats.InstalledSegments++
			stats.Count += seg.Count
			stats.Buckets += seg.TableLen
			stats.Resizes += seg.Resizes
		}
		stats.PerSegment[j] = seg
	}
	return stats
}

// ChainLengths returns, for every installed segment, the number of buckets
// holding a chain of length i at index i. Chains longer than the slice are
// counted in the last element.
func (m *Map[K, V]) ChainLengths(maxLen int) []int {
	hist := make([]int, maxLen+1)
	for j := range m.dir.slots {
		s := m.dir.segmentAt(j)
		if s == nil {
			continue
		}
		tab := *s.table.Load()
		for i := range tab {
			n := 0
			for e := tab[i].Load(); e != nil; e = e.next.Load() {
				n++
			}
			hist[min(n, maxLen)]++
		}
	}
	return hist
}
