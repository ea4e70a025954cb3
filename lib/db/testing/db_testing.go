package testing

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/util"
)

// DBFactory creates a new instance of a KVDB implementation that reads time from clock
type DBFactory func(clock util.Clock) db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(newClock()))
		})

		t.Run("Add", func(t *testing.T) {
			testAdd(t, factory(newClock()))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(newClock()))
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			clock := newClock()
			testKeyExpiry(t, factory(clock), clock)
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			clock := newClock()
			testManyExpiringKeys(t, factory(clock), clock)
		})

		t.Run("Versions", func(t *testing.T) {
			testVersions(t, factory(newClock()))
		})

		t.Run("Compute", func(t *testing.T) {
			clock := newClock()
			testCompute(t, factory(clock), clock)
		})

		t.Run("ComputeBatch", func(t *testing.T) {
			clock := newClock()
			testComputeBatch(t, factory(clock), clock)
		})

		t.Run("ConcurrentAdd", func(t *testing.T) {
			testConcurrentAdd(t, factory(newClock()))
		})

		t.Run("ConcurrentCompute", func(t *testing.T) {
			testConcurrentCompute(t, factory(newClock()))
		})

		t.Run("BatchIsolation", func(t *testing.T) {
			testBatchIsolation(t, factory(newClock()))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(newClock()))
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory(newClock()))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory(newClock()))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func newClock() *util.ManualClock {
	return util.NewManualClock(time.Unix(1_700_000_000, 0))
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 0)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 0)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get("nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("input-value")
	database.Set("input-key", input, 0)
	input[0] = 'X'
	if stored, _ := database.Get("input-key"); !bytes.Equal(stored, []byte("input-value")) {
		t.Errorf("Set should copy the value, stored value changed to %s", stored)
	}
}

func testAdd(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureAdd|db.FeatureGet)

	if !database.Add("add-key", []byte("first"), 0) {
		t.Fatalf("Expected Add on an absent key to succeed")
	}
	if database.Add("add-key", []byte("second"), 0) {
		t.Errorf("Expected Add on a present key to fail")
	}

	result, _ := database.Get("add-key")
	if !bytes.Equal(result, []byte("first")) {
		t.Errorf("Expected the first value to survive a colliding Add, got %s", result)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	testKey := "delete-test-key"
	database.Set(testKey, []byte("delete-test-value"), 0)

	if !database.Delete(testKey) {
		t.Errorf("Expected Delete of a present key to return true")
	}
	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}
	if database.Delete(testKey) {
		t.Errorf("Expected second Delete to return false")
	}
	if database.Delete("nonexistent-key") {
		t.Errorf("Expected Delete of an absent key to return false")
	}
}

func testKeyExpiry(t *testing.T, database db.KVDB, clock *util.ManualClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureAdd)

	testKey := "expiring-key"
	testValue := []byte("expiring-value")

	database.Set(testKey, testValue, 10*time.Second)

	clock.Advance(9 * time.Second)
	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Key should still exist after 9s")
	}
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected value %s, got %s", testValue, result)
	}

	// the deadline itself is already expired
	clock.Advance(1 * time.Second)
	if _, exists = database.Get(testKey); exists {
		t.Errorf("Key should have expired exactly at its deadline")
	}
	if _, exists = database.GetEntry(testKey); exists {
		t.Errorf("GetEntry should not return an expired entry")
	}
	if database.Delete(testKey) {
		t.Errorf("Delete of an expired key should report false")
	}

	database.Set("readd-key", []byte("old"), time.Second)
	clock.Advance(2 * time.Second)
	if !database.Add("readd-key", []byte("new"), 0) {
		t.Errorf("Add should succeed once the previous entry expired")
	}
	if result, _ = database.Get("readd-key"); !bytes.Equal(result, []byte("new")) {
		t.Errorf("Expected value new, got %s", result)
	}

	database.Set("no-ttl", []byte("forever"), 0)
	database.Set("negative-ttl", []byte("forever"), -time.Second)
	clock.Advance(1000 * time.Hour)
	if _, exists = database.Get("no-ttl"); !exists {
		t.Errorf("Key with ttl=0 should never expire")
	}
	if _, exists = database.Get("negative-ttl"); !exists {
		t.Errorf("Key with a negative ttl should never expire")
	}

	database.Set("max-ttl", []byte("v"), time.Duration(math.MaxInt64))
	database.Set("long-ttl", []byte("v"), 250*365*24*time.Hour)
	if database.Add("max-ttl", []byte("other"), 0) {
		t.Errorf("Add should fail on a key with a very long ttl")
	}
	clock.Advance(1000 * time.Hour)
	for _, key := range []string{"max-ttl", "long-ttl"} {
		if result, exists = database.Get(key); !exists || !bytes.Equal(result, []byte("v")) {
			t.Errorf("Key %s with a very long ttl should not expire", key)
		}
	}

	database.Set("reset-ttl", []byte("v"), time.Second)
	database.Set("reset-ttl", []byte("v"), 0)
	clock.Advance(time.Hour)
	if _, exists = database.Get("reset-ttl"); !exists {
		t.Errorf("Set without ttl should clear the previous deadline")
	}
}

func testManyExpiringKeys(t *testing.T, database db.KVDB, clock *util.ManualClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		value := []byte(fmt.Sprintf("expire-value-%d", i))
		ttl := time.Duration(i%100) * time.Second
		database.Set(key, value, ttl)
	}

	for offset := 0; offset <= 100; offset += 10 {
		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("expire-key-%d", i)
			ttl := i % 100
			_, exists := database.Get(key)
			switch {
			case ttl == 0 && !exists:
				t.Fatalf("Key %s without ttl vanished", key)
			case ttl > 0 && ttl <= offset && exists:
				t.Fatalf("Key %s should have expired at +%ds (ttl=%ds)", key, offset, ttl)
			case ttl > offset && !exists:
				t.Fatalf("Key %s expired too early at +%ds (ttl=%ds)", key, offset, ttl)
			}
		}
		clock.Advance(10 * time.Second)
	}

	if !database.SupportsFeature(db.FeatureGarbageCollect) {
		return
	}

	// only the keys without ttl survive reclamation
	deadline := time.Now().Add(5 * time.Second)
	for database.Len() > numKeys/100 {
		if time.Now().After(deadline) {
			t.Fatalf("garbage collection did not reclaim expired keys, %d entries left", database.Len())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func testVersions(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureAdd|db.FeatureGet)

	v1 := database.Set("versioned", []byte("a"), 0)
	v2 := database.Set("versioned", []byte("b"), 0)
	if v2 <= v1 {
		t.Errorf("Expected version to strictly increase, got %d then %d", v1, v2)
	}

	database.Add("versioned", []byte("c"), 0)
	e, _ := database.GetEntry("versioned")
	if e.Version != v2 {
		t.Errorf("A failed Add must not change the version, expected %d got %d", v2, e.Version)
	}

	if database.WriteIdx() < v2 {
		t.Errorf("WriteIdx %d is behind the last handed out version %d", database.WriteIdx(), v2)
	}
}

func testCompute(t *testing.T, database db.KVDB, clock *util.ManualClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCompute|db.FeatureGet)

	// keeping an absent key must not create it
	_, ok := database.Compute("absent", func(old db.Entry, loaded bool, _ time.Time) (db.Entry, db.Action) {
		if loaded {
			t.Errorf("Expected absent key to be reported as not loaded")
		}
		return old, db.ActionKeep
	})
	if ok {
		t.Errorf("Compute with ActionKeep on an absent key must not create it")
	}
	if database.Len() != 0 {
		t.Errorf("Expected empty database, got %d entries", database.Len())
	}

	cur, ok := database.Compute("flagged", func(_ db.Entry, _ bool, now time.Time) (db.Entry, db.Action) {
		return db.Entry{Value: []byte("1"), Flags: 7, ExpireAt: db.Deadline(now, time.Minute)}, db.ActionWrite
	})
	if !ok || cur.Flags != 7 || cur.Version == 0 {
		t.Errorf("Expected written entry with flags 7 and a version, got %+v (ok=%v)", cur, ok)
	}

	cur, ok = database.Compute("flagged", func(old db.Entry, loaded bool, _ time.Time) (db.Entry, db.Action) {
		if !loaded || old.Flags != 7 {
			t.Errorf("Expected loaded entry with flags 7, got %+v", old)
		}
		old.Value = []byte("2")
		return old, db.ActionWrite
	})
	if !ok || string(cur.Value) != "2" || cur.Flags != 7 {
		t.Errorf("Expected updated entry with flags 7, got %+v", cur)
	}

	// expiry is carried over when the callback keeps ExpireAt
	clock.Advance(time.Minute)
	if _, exists := database.Get("flagged"); exists {
		t.Errorf("Expected entry to expire with its original deadline")
	}

	database.Set("to-delete", []byte("x"), 0)
	_, ok = database.Compute("to-delete", func(old db.Entry, _ bool, _ time.Time) (db.Entry, db.Action) {
		return old, db.ActionDelete
	})
	if ok {
		t.Errorf("Expected ActionDelete to remove the key")
	}
	if _, exists := database.Get("to-delete"); exists {
		t.Errorf("Expected key to be gone after ActionDelete")
	}
}

func testComputeBatch(t *testing.T, database db.KVDB, clock *util.ManualClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch|db.FeatureSet|db.FeatureGet)

	keys := []string{"b1", "b2", "b3"}

	// write all keys
	database.ComputeBatch(keys, func(old []db.Entry, loaded []bool, now time.Time) ([]db.Entry, []db.Action) {
		next := make([]db.Entry, len(old))
		actions := make([]db.Action, len(old))
		for i := range old {
			next[i] = db.Entry{Value: []byte(keys[i]), ExpireAt: db.Deadline(now, time.Minute)}
			actions[i] = db.ActionWrite
		}
		return next, actions
	})

	got := database.GetMany(append(keys, "missing"))
	if len(got) != 3 {
		t.Fatalf("Expected 3 values, got %d", len(got))
	}
	for _, k := range keys {
		if string(got[k]) != k {
			t.Errorf("Expected %s=%s, got %s", k, k, got[k])
		}
	}

	// a keep-all batch changes nothing
	database.Set("b4", []byte("untouched"), 0)
	database.ComputeBatch([]string{"b4", "b5"}, func(old []db.Entry, loaded []bool, _ time.Time) ([]db.Entry, []db.Action) {
		if !loaded[0] || loaded[1] {
			t.Errorf("Expected loaded=[true false], got %v", loaded)
		}
		return old, make([]db.Action, len(old))
	})
	if _, exists := database.Get("b5"); exists {
		t.Errorf("A keep-all batch must not create keys")
	}

	// delete through a batch
	database.ComputeBatch(keys[:2], func(old []db.Entry, _ []bool, _ time.Time) ([]db.Entry, []db.Action) {
		return old, []db.Action{db.ActionDelete, db.ActionDelete}
	})
	if got = database.GetMany(keys); len(got) != 1 {
		t.Errorf("Expected one remaining key, got %v", got)
	}

	clock.Advance(time.Minute)
	if got = database.GetMany(keys); len(got) != 0 {
		t.Errorf("Expected all batch written keys to have expired, got %v", got)
	}
}

func testConcurrentAdd(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureAdd)

	const workers = 64
	for round := 0; round < 20; round++ {
		key := fmt.Sprintf("race-%d", round)

		var winners atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func(w int) {
				defer wg.Done()
				<-start
				if database.Add(key, []byte(strconv.Itoa(w)), 0) {
					winners.Add(1)
				}
			}(w)
		}
		close(start)
		wg.Wait()

		if n := winners.Load(); n != 1 {
			t.Fatalf("Expected exactly one successful Add for %s, got %d", key, n)
		}
	}
}

func testConcurrentCompute(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCompute|db.FeatureGet)

	const workers = 16
	const perWorker = 500

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				database.Compute("counter", func(old db.Entry, loaded bool, _ time.Time) (db.Entry, db.Action) {
					n := 0
					if loaded {
						n, _ = strconv.Atoi(string(old.Value))
					}
					return db.Entry{Value: []byte(strconv.Itoa(n + 1))}, db.ActionWrite
				})
			}
		}()
	}
	wg.Wait()

	value, _ := database.Get("counter")
	if string(value) != strconv.Itoa(workers*perWorker) {
		t.Errorf("Expected counter %d, got %s", workers*perWorker, value)
	}
}

func testBatchIsolation(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch)

	keys := make([]string, 32)
	for i := range keys {
		keys[i] = fmt.Sprintf("iso-%d", i)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var torn atomic.Int32

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snapshot := database.GetMany(keys)
			if len(snapshot) == 0 {
				continue
			}
			if len(snapshot) != len(keys) {
				torn.Add(1)
				continue
			}
			first := string(snapshot[keys[0]])
			for _, k := range keys[1:] {
				if string(snapshot[k]) != first {
					torn.Add(1)
					break
				}
			}
		}
	}()

	for gen := 0; gen < 200; gen++ {
		database.ComputeBatch(keys, func(old []db.Entry, _ []bool, _ time.Time) ([]db.Entry, []db.Action) {
			next := make([]db.Entry, len(old))
			actions := make([]db.Action, len(old))
			for i := range next {
				next[i] = db.Entry{Value: []byte(strconv.Itoa(gen))}
				actions[i] = db.ActionWrite
			}
			return next, actions
		})
	}
	close(stop)
	wg.Wait()

	if n := torn.Load(); n > 0 {
		t.Errorf("GetMany observed %d partially applied batches", n)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	emptyKeyValue := []byte("value for empty key")
	database.Set("", emptyKeyValue, 0)
	if result, exists := database.Get(""); !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	database.Set("nil-value-key", nil, 0)
	if result, exists := database.Get("nil-value-key"); !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	largeKey := string(make([]byte, 1000))
	database.Set(largeKey, []byte("value for large key"), 0)
	if _, exists := database.Get(largeKey); !exists {
		t.Errorf("Large key not found after Set")
	}

	largeValue := make([]byte, 8*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	database.Set("large-value-key", largeValue, 0)
	if result, exists := database.Get("large-value-key"); !exists {
		t.Errorf("Key for large value not found after Set")
	} else if !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch (len %d vs %d)", len(result), len(largeValue))
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)), 0)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := database.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		database.Delete(fmt.Sprintf("%s%d", prefix, i))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := database.Get(key)
		if i%2 == 0 && exists {
			t.Errorf("Key %s should be deleted", key)
		}
		if i%2 == 1 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureAdd)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4:
			op = "set"
		case 5, 6:
			op = "add"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "set" || op == "add" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	numWorkers := 8
	opsPerWorker := numOperations / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			for i := start; i < start+opsPerWorker; i++ {
				op := operations[i]
				switch op.op {
				case "set":
					database.Set(op.key, op.value, time.Minute)
				case "add":
					database.Add(op.key, op.value, 0)
				case "get":
					database.Get(op.key)
				case "delete":
					database.Delete(op.key)
				}
			}
		}(w)
	}
	wg.Wait()

	// after the parallel phase every key must be readable consistently
	for _, op := range operations {
		v1, ok1 := database.Get(op.key)
		v2, ok2 := database.Get(op.key)
		if ok1 != ok2 || !bytes.Equal(v1, v2) {
			t.Fatalf("Inconsistent reads for key %s", op.key)
		}
	}

	info := database.GetInfo()
	if info.Entries != database.Len() {
		t.Errorf("GetInfo reports %d entries, Len reports %d", info.Entries, database.Len())
	}
}
