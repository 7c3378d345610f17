package segment

import "time"

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the sweeper goroutine. If it is already running, this
// function does nothing.
func (sdb *SegmentDB) startGC() {
	if sdb.gcIsRunning.CompareAndSwap(false, true) {
		sdb.gcStop = make(chan struct{})
		sdb.gcDone.Add(1)
		go sdb.garbageCollector(sdb.gcStop)
	}
}

// stopGC stops the sweeper and waits for the running pass to finish. The
// sweeper can't be started again after it has been stopped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *SegmentDB) stopGC() {
	if sdb.gcIsRunning.CompareAndSwap(true, false) {
		close(sdb.gcStop)
	}
	sdb.gcDone.Wait()
}

// garbageCollector runs a sweep every gcInterval until stop is closed.
func (sdb *SegmentDB) garbageCollector(stop <-chan struct{}) {
	defer sdb.gcDone.Done()

	ticker := time.NewTicker(sdb.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if expired, removed := sdb.sweep(); expired+removed > 0 {
				Logger.Debugf("gc pass: %d values expired, %d keys removed", expired, removed)
			}
		}
	}
}

// sweep walks the whole map once with the weakly consistent iterator. Values
// of expired records are released and deleted records are removed. Both steps
// are conditional on the record still being the one observed, so a concurrent
// write always wins over the sweeper.
//
// Note: the index is read once per pass so that a pass always terminates,
// even while writers keep advancing the clock.
func (sdb *SegmentDB) sweep() (expired, removed int) {
	writeIdx := sdb.currIndex.Load()

	it := sdb.data.Iterator()
	for it.HasNext() {
		e, err := it.Next()
		if err != nil {
			break
		}
		isExpired, isDeleted := e.Value.ttlInfo(writeIdx)
		switch {
		case isDeleted:
			if !sdb.tombstoneExpired(e.Value, writeIdx) {
				continue
			}
			if sdb.data.RemoveIf(e.Key, e.Value) {
				removed++
			}
		case isExpired && !e.Value.expired:
			if sdb.data.CompareAndReplace(e.Key, e.Value, e.Value.withoutValue()) {
				expired++
			}
		}
	}

	sdb.m.gcRuns.Inc()
	sdb.m.gcExpired.Add(expired)
	sdb.m.gcRemoved.Add(removed)
	return expired, removed
}

// tombstoneExpired reports whether the deleted record r has outlived the
// retention window at writeIdx. deleteAt is the index at which the deletion
// took effect, for Delete as well as for deleteIn offsets.
func (sdb *SegmentDB) tombstoneExpired(r *record, writeIdx uint64) bool {
	return writeIdx >= r.deleteAt+sdb.retention
}
