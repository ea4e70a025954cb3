package testing

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/util"
)

// RunKVDBBenchmarks runs all benchmarks for a KVDB implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	newDB := func() db.KVDB { return factory(util.SystemClock()) }

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, newDB())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, newDB())
	})

	b.Run("SetWithExpiry", func(b *testing.B) {
		benchmarkSetWithExpiry(b, newDB())
	})

	b.Run("Add", func(b *testing.B) {
		benchmarkAdd(b, newDB())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, newDB())
	})

	b.Run("Get(miss)", func(b *testing.B) {
		benchmarkGetMiss(b, newDB())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, newDB())
	})

	b.Run("ComputeIncrement", func(b *testing.B) {
		benchmarkComputeIncrement(b, newDB())
	})

	b.Run("ComputeBatch", func(b *testing.B) {
		benchmarkComputeBatch(b, newDB())
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, newDB())
	})

	b.Run("MixedUsageWithExpiry", func(b *testing.B) {
		benchmarkMixedOperationsWithExpiry(b, newDB())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// setupBench skips the benchmark if a feature is missing and closes the database afterwards
func setupBench(b *testing.B, database db.KVDB, features db.Feature) {
	b.Helper()
	b.Cleanup(func() { _ = database.Close() })
	requireFeature(b, database, features)
}

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureSet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			database.Set(key, value, 0)
			counter++
		}
	})
}

// Benchmark for Set operation with existing keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureSet)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)), 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			database.Set(key, []byte(fmt.Sprintf("test-value-%d", counter)), 0)
			counter++
		}
	})
}

// benchmarkSetWithExpiry measures Set with a ttl, which also feeds the expiry heap
func benchmarkSetWithExpiry(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureSet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-expiry-key-%d", counter)
			database.Set(key, []byte("v"), time.Duration(1+counter%50)*time.Millisecond)
			counter++
		}
	})
}

// Benchmark for Add with a mix of fresh and colliding keys
func benchmarkAdd(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureAdd)

	var counter int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			n := atomic.AddInt64(&counter, 1)
			database.Add(fmt.Sprintf("add-key-%d", n/2), []byte("v"), 0)
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureSet|db.FeatureGet)

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)), 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(fmt.Sprintf("test-key-%d", counter%numKeys))
			counter++
		}
	})
}

// Parallel benchmarking for Get operation (with key miss)
func benchmarkGetMiss(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureGet)
	const key = "test-key"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Get(key)
		}
	})
}

// Parallel benchmarking for Delete operation
func benchmarkDelete(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureSet|db.FeatureDelete)

	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("test-key-%d", i)
		database.Set(keys[i], []byte(fmt.Sprintf("test-value-%d", i)), 0)
	}

	var counter int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys
			database.Delete(keys[idx])
		}
	})
}

// benchmarkComputeIncrement measures contended read-modify-write on a few hot keys
func benchmarkComputeIncrement(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureCompute)

	incr := func(old db.Entry, loaded bool, _ time.Time) (db.Entry, db.Action) {
		n := int64(0)
		if loaded {
			n, _ = strconv.ParseInt(string(old.Value), 10, 64)
		}
		old.Value = strconv.AppendInt(nil, n+1, 10)
		return old, db.ActionWrite
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Compute(fmt.Sprintf("hot-%d", counter%8), incr)
			counter++
		}
	})
}

// benchmarkComputeBatch measures batches of 16 keys spread over the shards
func benchmarkComputeBatch(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureBatch)

	write := func(old []db.Entry, _ []bool, _ time.Time) ([]db.Entry, []db.Action) {
		actions := make([]db.Action, len(old))
		for i := range old {
			old[i].Value = []byte("v")
			actions[i] = db.ActionWrite
		}
		return old, actions
	}

	var counter int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		keys := make([]string, 16)
		for pb.Next() {
			n := atomic.AddInt64(&counter, 1)
			for i := range keys {
				keys[i] = fmt.Sprintf("batch-%d-%d", n%1000, i)
			}
			database.ComputeBatch(keys, write)
		}
	})
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureAdd)

	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("test-key-%d", i)
		database.Set(keys[i], []byte(fmt.Sprintf("test-value-%d", i)), 0)
	}

	var counter int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		localCounter := 0
		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys

			// every 10th operation uses a fresh key
			var key string
			if localCounter%10 == 0 {
				key = fmt.Sprintf("new-key-%d", localCounter)
			} else {
				key = keys[idx]
			}

			switch localCounter % 4 {
			case 0:
				database.Get(key)
			case 1:
				database.Set(key, []byte(fmt.Sprintf("mixed-value-%d", localCounter)), 0)
			case 2:
				database.Delete(key)
			case 3:
				database.Add(key, []byte("added"), 0)
			}

			localCounter++
		}
	})
}

// benchmarkMixedOperationsWithExpiry tests mixed operations with expiration
func benchmarkMixedOperationsWithExpiry(b *testing.B, database db.KVDB) {
	setupBench(b, database, db.FeatureSet|db.FeatureGet)

	numKeys := 50_000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-mixed-key-%d", i)
		database.Set(key, []byte(fmt.Sprintf("test-mixed-value-%d", i)), time.Duration(i%2000)*time.Millisecond)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			// 70% Get, 30% Set
			key := fmt.Sprintf("test-mixed-key-%d", counter%numKeys)
			if rnd.Float32() < .7 {
				database.Get(key)
			} else {
				ttl := time.Duration(rnd.Intn(1000)) * time.Millisecond
				database.Set(key, []byte(fmt.Sprintf("test-mixed-updated-value-%d", counter)), ttl)
			}
			counter++
		}
	})
}
