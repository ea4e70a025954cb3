package internal

import (
	"sort"
	"sync"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the key space.
//
// Data holds the entries; its bucket locks serialize every mutation of a single key.
// Latch is taken in shared mode by single key operations and in exclusive mode by
// multi-key batches, which is what makes a batch invisible until it is fully applied.
// Deadlines is only touched while holding heapMu and never from inside a Data.Compute callback.
type Shard struct {
	Data  *xsync.MapOf[string, db.Entry]
	Latch sync.RWMutex

	heapMu    sync.Mutex
	deadlines *util.DeadlineHeap
}

// NewShard creates an empty shard
func NewShard() *Shard {
	return &Shard{
		Data:      xsync.NewMapOf[string, db.Entry](),
		deadlines: util.NewDeadlineHeap(),
	}
}

// Schedule queues key for reclamation at deadline (unix nanos)
func (s *Shard) Schedule(key string, deadline int64) {
	s.heapMu.Lock()
	s.deadlines.Schedule(key, deadline)
	s.heapMu.Unlock()
}

// PopDue returns the next key whose deadline is <= now
func (s *Shard) PopDue(now int64) (string, bool) {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	return s.deadlines.PopDue(now)
}

// Scheduled returns the number of keys waiting for reclamation
func (s *Shard) Scheduled() int {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	return s.deadlines.Len()
}

// --------------------------------------------------------------------------
// Shard selection and multi shard locking
// --------------------------------------------------------------------------

// GetShard returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard(key string, seed uint64, shards []*Shard) *Shard {
	return shards[util.ShardIndex(key, seed, len(shards))]
}

// LockShards locks every shard touched by keys in ascending shard order and returns the
// matching unlock function. Exclusive selects Lock over RLock.
func LockShards(keys []string, seed uint64, shards []*Shard, exclusive bool) (unlock func()) {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := util.ShardIndex(k, seed, len(shards))
		if _, ok := seen[i]; !ok {
			seen[i] = struct{}{}
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)

	for _, i := range idx {
		if exclusive {
			shards[i].Latch.Lock()
		} else {
			shards[i].Latch.RLock()
		}
	}

	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			if exclusive {
				shards[idx[j]].Latch.Unlock()
			} else {
				shards[idx[j]].Latch.RUnlock()
			}
		}
	}
}
