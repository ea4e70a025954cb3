package maple

import (
	"bytes"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dCache/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
	entryOverhead     = 40                     // version, deadline, flags and slice headers
	samplesPerShard   = 100                    // entries inspected per shard by GetInfo
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements db.KVDB with sharded in-memory maps
type mapleImpl struct {
	seed    uint64
	shards  []*internal.Shard
	version atomic.Uint64 // last version handed out
	clock   util.Clock

	// garbage collection
	gcInterval time.Duration
	swept      atomic.Uint64
	stop       chan struct{}
	closeOnce  sync.Once
	gcWG       sync.WaitGroup
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = number of CPUs)
	GCInterval time.Duration // Time between GC runs (0 = default, <0 disables the background GC)
	Clock      util.Clock    // Time source (nil = system clock)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
		Clock:      util.SystemClock(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
// and starts one reclamation goroutine per shard.
func NewMapleDB(opts *DBOptions) db.KVDB {
	return newMaple(opts)
}

func newMaple(opts *DBOptions) *mapleImpl {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}
	gcInterval := opts.GCInterval
	if gcInterval == 0 {
		gcInterval = defaultGCInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = util.SystemClock()
	}

	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	maple := &mapleImpl{
		seed:       util.GenerateSeed(),
		shards:     shards,
		clock:      clock,
		gcInterval: gcInterval,
		stop:       make(chan struct{}),
	}

	if gcInterval > 0 {
		maple.startGC()
	}
	return maple
}

func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(key, maple.seed, maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set stores the value unconditionally.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, ttl time.Duration) uint64 {
	entry, _ := maple.Compute(key, func(_ db.Entry, _ bool, now time.Time) (db.Entry, db.Action) {
		return db.Entry{Value: value, ExpireAt: db.Deadline(now, ttl)}, db.ActionWrite
	})
	return entry.Version
}

// Add stores the value only if the key has no live entry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Add(key string, value []byte, ttl time.Duration) bool {
	var added bool
	maple.Compute(key, func(old db.Entry, loaded bool, now time.Time) (db.Entry, db.Action) {
		if loaded {
			return old, db.ActionKeep
		}
		added = true
		return db.Entry{Value: value, ExpireAt: db.Deadline(now, ttl)}, db.ActionWrite
	})
	return added
}

// Delete removes the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string) bool {
	var deleted bool
	maple.Compute(key, func(old db.Entry, loaded bool, _ time.Time) (db.Entry, db.Action) {
		deleted = loaded
		return old, db.ActionDelete
	})
	return deleted
}

// Compute runs fn in the critical section of key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Compute(key string, fn db.ComputeFunc) (db.Entry, bool) {
	shard := maple.shardFor(key)
	shard.Latch.RLock()
	defer shard.Latch.RUnlock()

	var deadline int64
	actual, ok := shard.Data.Compute(key, func(old db.Entry, exists bool) (db.Entry, bool) {
		now := maple.clock.Now()
		live := exists && !old.Expired(now)

		view := old
		if !live {
			view = db.Entry{}
		}

		next, action := fn(view, live, now)
		switch action {
		case db.ActionWrite:
			next.Value = bytes.Clone(next.Value)
			next.Version = maple.version.Add(1)
			deadline = next.ExpireAt
			return next, false
		case db.ActionDelete:
			return old, true
		default:
			// expired leftovers are dropped eagerly, absent keys must not be created
			return old, !live
		}
	})

	// registered outside the bucket lock; the sweep re-checks the deadline anyway
	if deadline != 0 {
		shard.Schedule(key, deadline)
	}

	if !ok {
		return db.Entry{}, false
	}
	return copyEntry(actual), true
}

// ComputeBatch evaluates fn for all keys while holding the exclusive latch of every shard involved.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) ComputeBatch(keys []string, fn db.BatchComputeFunc) {
	if len(keys) == 0 {
		return
	}
	unlock := internal.LockShards(keys, maple.seed, maple.shards, true)
	defer unlock()

	now := maple.clock.Now()
	old := make([]db.Entry, len(keys))
	loaded := make([]bool, len(keys))
	for i, key := range keys {
		if e, ok := maple.shardFor(key).Data.Load(key); ok && !e.Expired(now) {
			old[i] = e
			loaded[i] = true
		}
	}

	next, actions := fn(old, loaded, now)

	for i, key := range keys {
		if i >= len(actions) || i >= len(next) {
			break
		}
		shard := maple.shardFor(key)
		switch actions[i] {
		case db.ActionWrite:
			e := next[i]
			e.Value = bytes.Clone(e.Value)
			e.Version = maple.version.Add(1)
			shard.Data.Store(key, e)
			if e.ExpireAt != 0 {
				shard.Schedule(key, e.ExpireAt)
			}
		case db.ActionDelete:
			shard.Data.Delete(key)
		}
	}
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a copy of the live value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	e, ok := maple.GetEntry(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// GetEntry retrieves a copy of the live entry for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) GetEntry(key string) (db.Entry, bool) {
	shard := maple.shardFor(key)
	shard.Latch.RLock()
	e, ok := shard.Data.Load(key)
	shard.Latch.RUnlock()

	if !ok || e.Expired(maple.clock.Now()) {
		return db.Entry{}, false
	}
	return copyEntry(e), true
}

// GetMany reads all keys under the shared latch of every shard involved.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) GetMany(keys []string) map[string][]byte {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result
	}

	unlock := internal.LockShards(keys, maple.seed, maple.shards, false)
	defer unlock()

	now := maple.clock.Now()
	for _, key := range keys {
		if e, ok := maple.shardFor(key).Data.Load(key); ok && !e.Expired(now) {
			result[key] = copyEntry(e).Value
		}
	}
	return result
}

// Len returns the number of physically stored entries
func (maple *mapleImpl) Len() int {
	n := 0
	for _, shard := range maple.shards {
		n += shard.Data.Size()
	}
	return n
}

// copyEntry detaches the value from the stored slice
func copyEntry(e db.Entry) db.Entry {
	e.Value = bytes.Clone(e.Value)
	if e.Value == nil {
		e.Value = []byte{}
	}
	return e
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts one reclamation goroutine per shard
func (maple *mapleImpl) startGC() {
	maple.gcWG.Add(len(maple.shards))
	for _, shard := range maple.shards {
		go func(s *internal.Shard) {
			defer maple.gcWG.Done()

			ticker := time.NewTicker(maple.gcInterval)
			defer ticker.Stop()

			for {
				select {
				case <-maple.stop:
					return
				case <-ticker.C:
					maple.sweep(s)
				}
			}
		}(shard)
	}
}

// sweep removes every entry of the shard whose deadline has passed.
// Keys that were rewritten with a later deadline are queued again.
func (maple *mapleImpl) sweep(shard *internal.Shard) {
	now := maple.clock.Now()
	nowNanos := now.UnixNano()

	for {
		key, ok := shard.PopDue(nowNanos)
		if !ok {
			return
		}

		var reschedule int64
		shard.Latch.RLock()
		shard.Data.Compute(key, func(e db.Entry, loaded bool) (db.Entry, bool) {
			if !loaded {
				return e, true
			}
			if e.Expired(now) {
				maple.swept.Add(1)
				return e, true
			}
			reschedule = e.ExpireAt
			return e, false
		})
		shard.Latch.RUnlock()

		if reschedule != 0 {
			shard.Schedule(key, reschedule)
		}
	}
}

// sweepAll runs one reclamation pass over all shards synchronously
func (maple *mapleImpl) sweepAll() {
	for _, shard := range maple.shards {
		maple.sweep(shard)
	}
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database.
// Sizes are extrapolated from a sample of each shard.
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	now := maple.clock.Now()

	var (
		entries      int
		sampled      int
		sampledBytes int
		expired      int
		scheduled    int
	)
	shardSizes := make([]int, len(maple.shards))

	for i, shard := range maple.shards {
		size := shard.Data.Size()
		shardSizes[i] = size
		entries += size
		scheduled += shard.Scheduled()

		count := 0
		shard.Data.Range(func(key string, e db.Entry) bool {
			sampledBytes += len(key) + len(e.Value) + entryOverhead
			if e.Expired(now) {
				expired++
			}
			count++
			return count < samplesPerShard
		})
		sampled += count
	}

	sizeBytes := 0
	expiredBacklog := 0.0
	if sampled > 0 {
		sizeBytes = sampledBytes / sampled * entries
		expiredBacklog = float64(expired) / float64(sampled)
	}

	meta := &struct {
		CurrentVersion uint64  `json:"current_version"`
		ShardCount     int     `json:"shard_count"`
		ShardSizes     []int   `json:"shard_sizes"`
		Scheduled      int     `json:"scheduled_expiries"`
		ExpiredBacklog float64 `json:"expired_backlog"`
		Swept          uint64  `json:"swept"`
		Info           string  `json:"info"`
	}{
		CurrentVersion: maple.version.Load(),
		ShardCount:     len(maple.shards),
		ShardSizes:     shardSizes,
		Scheduled:      scheduled,
		ExpiredBacklog: expiredBacklog,
		Swept:          maple.swept.Load(),
		Info:           "SizeBytes and ExpiredBacklog are estimates based on a sample of each shard.",
	}

	return db.DatabaseInfo{
		Entries:   entries,
		SizeBytes: sizeBytes,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureAdd, db.FeatureGet, db.FeatureDelete,
			db.FeatureCompute, db.FeatureBatch, db.FeatureGarbageCollect,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureAdd |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureCompute |
		db.FeatureBatch |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

// WriteIdx returns the last version handed out
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.version.Load()
}

// Close stops the garbage collector. It is safe to call Close more than once.
func (maple *mapleImpl) Close() error {
	maple.closeOnce.Do(func() {
		close(maple.stop)
		maple.gcWG.Wait()
	})
	return nil
}
