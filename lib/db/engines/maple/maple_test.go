package maple

import (
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/util"
)

func newTestMaple(clock util.Clock) *mapleImpl {
	// negative interval disables the background sweep so the tests drive it
	return newMaple(&DBOptions{NumShards: 4, GCInterval: -1, Clock: clock})
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	clock := util.NewManualClock(time.Unix(0, 0))
	maple := newTestMaple(clock)
	defer maple.Close()

	for i := 0; i < 100; i++ {
		maple.Set(fmt.Sprintf("k%d", i), []byte("v"), time.Second)
	}
	maple.Set("keep", []byte("v"), 0)

	maple.sweepAll()
	if maple.Len() != 101 {
		t.Fatalf("sweep before the deadline removed entries, %d left", maple.Len())
	}

	clock.Advance(time.Second)
	maple.sweepAll()
	if maple.Len() != 1 {
		t.Errorf("expected only the key without ttl to remain, got %d entries", maple.Len())
	}
	if got := maple.swept.Load(); got != 100 {
		t.Errorf("expected 100 swept entries, got %d", got)
	}
}

func TestSweepKeepsRewrittenKeys(t *testing.T) {
	clock := util.NewManualClock(time.Unix(0, 0))
	maple := newTestMaple(clock)
	defer maple.Close()

	maple.Set("k", []byte("short"), time.Second)
	maple.Set("k", []byte("long"), time.Minute)

	clock.Advance(2 * time.Second)
	maple.sweepAll()

	if v, ok := maple.Get("k"); !ok || string(v) != "long" {
		t.Fatalf("rewritten key was reclaimed with its old deadline, got %q ok=%v", v, ok)
	}

	clock.Advance(time.Minute)
	maple.sweepAll()
	if maple.Len() != 0 {
		t.Errorf("rewritten key was not reclaimed after its new deadline")
	}
}

func TestSweepRequeuesExtendedDeadline(t *testing.T) {
	clock := util.NewManualClock(time.Unix(0, 0))
	maple := newTestMaple(clock)
	defer maple.Close()

	maple.Set("k", []byte("v"), time.Second)

	// push the deadline without going through the heap
	shard := maple.shardFor("k")
	e, _ := shard.Data.Load("k")
	e.ExpireAt = db.Deadline(clock.Now(), time.Hour)
	shard.Data.Store("k", e)

	clock.Advance(2 * time.Second)
	maple.sweepAll()
	if _, ok := maple.Get("k"); !ok {
		t.Fatalf("key with extended deadline was reclaimed")
	}
	if shard.Scheduled() != 1 {
		t.Errorf("expected the key to be queued again, scheduled=%d", shard.Scheduled())
	}
}

func TestBackgroundGC(t *testing.T) {
	clock := util.NewManualClock(time.Unix(0, 0))
	maple := newMaple(&DBOptions{NumShards: 2, GCInterval: 5 * time.Millisecond, Clock: clock})
	defer maple.Close()

	maple.Set("k", []byte("v"), time.Millisecond)
	clock.Advance(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for maple.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background gc did not reclaim the expired key")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	maple := NewMapleDB(nil)
	if err := maple.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := maple.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestGetInfo(t *testing.T) {
	maple := newTestMaple(util.SystemClock())
	defer maple.Close()

	for i := 0; i < 50; i++ {
		maple.Set(fmt.Sprintf("k%d", i), []byte("0123456789"), 0)
	}

	info := maple.GetInfo()
	if info.DbType != db.ImplMaple {
		t.Errorf("expected db type %s, got %s", db.ImplMaple, info.DbType)
	}
	if info.Entries != 50 {
		t.Errorf("expected 50 entries, got %d", info.Entries)
	}
	if info.SizeBytes <= 50*10 {
		t.Errorf("size estimate %d is below the raw value size", info.SizeBytes)
	}
	if !maple.SupportsFeature(db.FeatureBatch | db.FeatureCompute) {
		t.Errorf("expected batch and compute support")
	}
}
