package segment

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/segkv/lib/db"
	"github.com/ValentinKolb/segkv/lib/db/util"
	"github.com/ValentinKolb/segkv/lib/segmap"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the engine logger, named "engine/segment".
var Logger = logger.GetLogger("engine/segment")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval = 100 * time.Millisecond // Default interval between sweeps
	samplesForInfo    = 1000                   // Entries sampled by GetInfo
	entryOverhead     = 48                     // Estimated bytes per record besides the value
)

const supportedFeatures = db.FeatureSet |
	db.FeatureSetE |
	db.FeatureSetEIfUnset |
	db.FeatureGet |
	db.FeatureExpire |
	db.FeatureDelete |
	db.FeatureHas |
	db.FeatureGarbageCollect |
	db.FeatureRange |
	db.FeatureSize

// --------------------------------------------------------------------------
// Core database structure
// --------------------------------------------------------------------------

// SegmentDB implements db.KVDB on top of a segmap.Map. Records are immutable
// and replaced with compare-and-swap, so no operation of the engine holds a
// lock of its own; all synchronisation happens inside the map's segments.
type SegmentDB struct {
	data      *segmap.Map[string, *record]
	currIndex atomic.Uint64 // Current logical timestamp

	// garbage collection
	gcInterval  time.Duration
	retention   uint64
	gcIsRunning atomic.Bool
	gcStop      chan struct{}
	gcDone      sync.WaitGroup

	set *metrics.Set
	m   engineMetrics
}

// DBOptions configures the engine during initialization
type DBOptions struct {
	Map        segmap.Options // Options of the backing map
	GCInterval time.Duration  // Time between sweeps (0 = default: 100ms)

	// TombstoneRetention is the number of write indices a deleted key is kept
	// as a tombstone after its deletion took effect. Writes older than the
	// deletion are rejected only while the tombstone exists (0 = until the
	// next sweep).
	TombstoneRetention uint64
	Metrics    *metrics.Set   // Set the engine registers its metrics in (nil = a new set). Must not be shared between engines.
}

// DefaultOptions returns the default engine options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Map:        *segmap.DefaultOptions(),
		GCInterval: defaultGCInterval,
	}
}

// engineMetrics holds the counters updated on the hot path.
type engineMetrics struct {
	sets, gets, has, expires, deletes *metrics.Counter
	conflicts, staleWrites            *metrics.Counter
	gcRuns, gcExpired, gcRemoved      *metrics.Counter
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewSegmentDB creates a new engine and starts its sweeper. opts may be nil to
// use DefaultOptions. The only error is an invalid map configuration.
func NewSegmentDB(opts *DBOptions) (*SegmentDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	data, err := segmap.New[string, *record](&opts.Map)
	if err != nil {
		return nil, err
	}

	gcInterval := opts.GCInterval
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}
	set := opts.Metrics
	if set == nil {
		set = metrics.NewSet()
	}

	sdb := &SegmentDB{
		data:       data,
		gcInterval: gcInterval,
		retention:  opts.TombstoneRetention,
		set:        set,
	}
	sdb.registerMetrics()
	sdb.startGC()

	Logger.Infof("segment engine started (segments=%d, gc=%s)", data.ShardCount(), gcInterval)
	return sdb, nil
}

func (sdb *SegmentDB) registerMetrics() {
	op := func(name string) *metrics.Counter {
		return sdb.set.NewCounter(`segkv_ops_total{op="` + name + `"}`)
	}
	sdb.m = engineMetrics{
		sets:        op("set"),
		gets:        op("get"),
		has:         op("has"),
		expires:     op("expire"),
		deletes:     op("delete"),
		conflicts:   sdb.set.NewCounter("segkv_write_conflicts_total"),
		staleWrites: sdb.set.NewCounter("segkv_stale_writes_total"),
		gcRuns:      sdb.set.NewCounter("segkv_gc_runs_total"),
		gcExpired:   sdb.set.NewCounter("segkv_gc_expired_total"),
		gcRemoved:   sdb.set.NewCounter("segkv_gc_removed_total"),
	}

	sdb.set.NewGauge("segkv_entries", func() float64 {
		return float64(sdb.data.Size())
	})
	sdb.set.NewGauge("segkv_write_index", func() float64 {
		return float64(sdb.currIndex.Load())
	})
	sdb.set.NewGauge("segkv_resizes", func() float64 {
		return float64(sdb.data.Stats().Resizes)
	})
	sdb.set.NewGauge("segkv_lock_escalations", func() float64 {
		return float64(sdb.data.Stats().LockEscalations)
	})
}

// Metrics returns the metric set of the engine.
func (sdb *SegmentDB) Metrics() *metrics.Set {
	return sdb.set
}

// MapStats returns structural statistics of the backing map.
func (sdb *SegmentDB) MapStats() segmap.Stats {
	return sdb.data.Stats()
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// newRecord copies value and converts the relative offsets into absolute indices.
func newRecord(value []byte, writeIndex, expireIn, deleteIn uint64) *record {
	r := &record{
		value: make([]byte, len(value)),
		index: writeIndex,
	}
	copy(r.value, value)
	if expireIn > 0 {
		r.expireAt = writeIndex + expireIn
	}
	if deleteIn > 0 {
		r.deleteAt = writeIndex + deleteIn
	}
	return r
}

// Set inserts or updates an entry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *SegmentDB) Set(key string, value []byte, writeIndex uint64) {
	sdb.SetE(key, value, writeIndex, 0, 0)
}

// SetE inserts or updates an entry with expiration and deletion offsets
// relative to writeIndex.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *SegmentDB) SetE(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64) {
	sdb.m.sets.Inc()
	next := newRecord(value, writeIndex, expireIn, deleteIn)
	sdb.compute(key, writeIndex, func(*record, bool) *record {
		return next
	})
}

// SetEIfUnset inserts an entry unless a not deleted entry exists for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *SegmentDB) SetEIfUnset(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64) {
	sdb.m.sets.Inc()
	next := newRecord(value, writeIndex, expireIn, deleteIn)
	sdb.compute(key, writeIndex, func(_ *record, loaded bool) *record {
		if loaded {
			return nil
		}
		return next
	})
}

// Expire drops the value of key. The key stays visible to Has.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *SegmentDB) Expire(key string, writeIndex uint64) {
	sdb.m.expires.Inc()
	sdb.compute(key, writeIndex, func(current *record, loaded bool) *record {
		if !loaded {
			return nil
		}
		next := current.withoutValue()
		next.index = writeIndex
		return next
	})
}

// Delete hides key immediately by writing a tombstone. The sweeper removes
// the tombstone once the write index reaches writeIndex+TombstoneRetention.
// Until then a write with an index below writeIndex is ignored; after the
// tombstone is gone such a write recreates the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *SegmentDB) Delete(key string, writeIndex uint64) {
	sdb.m.deletes.Inc()
	sdb.compute(key, writeIndex, func(_ *record, loaded bool) *record {
		if !loaded {
			return nil
		}
		return &record{index: writeIndex, deleteAt: writeIndex, expired: true, deleted: true}
	})
}

// compute runs fn against the current record of key and publishes its result
// with the conditional operations of the map. If another writer changed the
// record in between, the whole step is repeated. fn sees deleted records as
// absent and expired records without value. It returns the record to store
// or nil to keep the current one.
//
// Writes with an index lower than the stored record's are ignored.
func (sdb *SegmentDB) compute(key string, writeIndex uint64, fn func(current *record, loaded bool) *record) {
	sdb.SetWriteIdx(writeIndex)

	for {
		old, exists := sdb.data.Get(key)
		if exists && writeIndex < old.index {
			sdb.m.staleWrites.Inc()
			return
		}

		current, loaded := old, exists
		if exists {
			isExpired, isDeleted := old.ttlInfo(writeIndex)
			loaded = !isDeleted
			if isExpired && !old.expired {
				current = old.withoutValue()
			}
		}

		next := fn(current, loaded)
		switch {
		case next == nil:
			return
		case !exists:
			if _, loaded := sdb.data.PutIfAbsent(key, next); !loaded {
				return
			}
		default:
			if sdb.data.CompareAndReplace(key, old, next) {
				return
			}
		}
		sdb.m.conflicts.Inc()
	}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the live value of key.
//
// Thread-safety: This method is thread-safe and never blocks.
func (sdb *SegmentDB) Get(key string) ([]byte, bool) {
	sdb.m.gets.Inc()
	r, ok := sdb.data.Get(key)
	if !ok {
		return nil, false
	}
	if isExpired, _ := r.ttlInfo(sdb.currIndex.Load()); isExpired {
		return nil, false
	}
	data := make([]byte, len(r.value))
	copy(data, r.value)
	return data, true
}

// Has reports whether key exists and is not deleted. Expired keys are reported.
//
// Thread-safety: This method is thread-safe and never blocks.
func (sdb *SegmentDB) Has(key string) bool {
	sdb.m.has.Inc()
	r, ok := sdb.data.Get(key)
	if !ok {
		return false
	}
	_, isDeleted := r.ttlInfo(sdb.currIndex.Load())
	return !isDeleted
}

// Range calls fn with a copy of every live value until fn returns false.
func (sdb *SegmentDB) Range(fn func(key string, value []byte) bool) {
	writeIdx := sdb.currIndex.Load()
	for key, r := range sdb.data.All() {
		if isExpired, _ := r.ttlInfo(writeIdx); isExpired {
			continue
		}
		value := make([]byte, len(r.value))
		copy(value, r.value)
		if !fn(key, value) {
			return
		}
	}
}

// Size returns the number of records in the map, including ones the sweeper
// has not collected yet.
func (sdb *SegmentDB) Size() int {
	return sdb.data.Size()
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save is not supported by this engine.
func (sdb *SegmentDB) Save(io.Writer) error {
	return db.ErrUnsupported
}

// Load is not supported by this engine.
func (sdb *SegmentDB) Load(io.Reader) error {
	return db.ErrUnsupported
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// infoMeta is the engine specific part of db.DatabaseInfo.
type infoMeta struct {
	CurrentWriteIndex   uint64                 `json:"current_write_index" yaml:"current_write_index"`
	Entries             int                    `json:"entries" yaml:"entries"`
	Segments            int                    `json:"segments" yaml:"segments"`
	InstalledSegments   int                    `json:"installed_segments" yaml:"installed_segments"`
	Buckets             int                    `json:"buckets" yaml:"buckets"`
	Resizes             int64                  `json:"resizes" yaml:"resizes"`
	LockEscalations     int64                  `json:"lock_escalations" yaml:"lock_escalations"`
	SegmentDistribution util.DistributionStats `json:"segment_distribution" yaml:"segment_distribution"`
	ChainLengths        []int                  `json:"chain_lengths" yaml:"chain_lengths"`
	ExpiredBacklog      float64                `json:"expired_backlog" yaml:"expired_backlog"`
	DeletedBacklog      float64                `json:"deleted_backlog" yaml:"deleted_backlog"`
	GCRuns              uint64                 `json:"gc_runs" yaml:"gc_runs"`
	Info                string                 `json:"info" yaml:"info"`
}

// GetInfo returns statistics about the database. Sizes are estimated from a
// sample of at most samplesForInfo entries.
func (sdb *SegmentDB) GetInfo() db.DatabaseInfo {
	currentWriteIndex := sdb.currIndex.Load()
	stats := sdb.data.Stats()

	histogram := util.NewSizeHistogram()
	var samples, expiredBacklog, deletedBacklog int
	for _, r := range sdb.data.All() {
		histogram.AddSample(len(r.value))
		isExpired, isDeleted := r.ttlInfo(currentWriteIndex)
		if isDeleted {
			deletedBacklog++
		} else if isExpired && !r.expired {
			expiredBacklog++
		}
		samples++
		if samples >= samplesForInfo {
			break
		}
	}

	segmentSizes := make([]float64, 0, stats.InstalledSegments)
	for _, s := range stats.PerSegment {
		if s.Installed {
			segmentSizes = append(segmentSizes, float64(s.Count))
		}
	}

	// weighted estimate (60% median, 40% average)
	perEntry := (histogram.MedianEstimate()*60+histogram.AverageSize()*40)/100 + entryOverhead

	meta := &infoMeta{
		CurrentWriteIndex:   currentWriteIndex,
		Entries:             stats.Count,
		Segments:            stats.Segments,
		InstalledSegments:   stats.InstalledSegments,
		Buckets:             stats.Buckets,
		Resizes:             stats.Resizes,
		LockEscalations:     stats.LockEscalations,
		SegmentDistribution: util.NewDistributionStats(segmentSizes),
		ChainLengths:        sdb.data.ChainLengths(8),
		ExpiredBacklog:      util.Ratio(expiredBacklog, samples),
		DeletedBacklog:      util.Ratio(deletedBacklog, samples),
		GCRuns:              sdb.m.gcRuns.Get(),
		Info:                "SizeBytes and the backlog ratios are estimates from a sample of the entries.",
	}

	features := make([]db.Feature, 0, 12)
	for f := db.FeatureSet; f <= db.FeatureSize; f <<= 1 {
		if supportedFeatures&f == f {
			features = append(features, f)
		}
	}

	return db.DatabaseInfo{
		SizeBytes:         perEntry * stats.Count,
		DbType:            db.ImplSegment,
		SupportedFeatures: features,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (sdb *SegmentDB) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

// Close stops the sweeper. The data stays readable.
func (sdb *SegmentDB) Close() error {
	sdb.stopGC()
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx updates the current index if newIdx is greater than it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *SegmentDB) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := sdb.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if sdb.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (sdb *SegmentDB) WriteIdx() uint64 {
	return sdb.currIndex.Load()
}

var _ db.KVDB = (*SegmentDB)(nil)
