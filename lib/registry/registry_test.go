package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/engines/maple"
	"github.com/ValentinKolb/dCache/lib/db/util"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/lib/store/lstore"
)

type testRegistry struct {
	IRegistry
	clock   *util.ManualClock
	created atomic.Int32
}

func newTestRegistry(t *testing.T, defaultPolicy Policy) *testRegistry {
	t.Helper()
	r := &testRegistry{clock: util.NewManualClock(time.Unix(1_700_000_000, 0))}
	r.IRegistry = NewRegistry(func(name string) store.IStore {
		r.created.Add(1)
		return lstore.NewLocalStore(func() db.KVDB {
			return maple.NewMapleDB(&maple.DBOptions{NumShards: 2, GCInterval: -1, Clock: r.clock})
		})
	}, defaultPolicy)
	t.Cleanup(func() { r.Close() })
	return r
}

func read(t *testing.T, r IRegistry, name, key string) (string, bool) {
	t.Helper()
	v, ok, err := r.Read(name, key)
	if err != nil {
		t.Fatalf("Read(%s, %s) failed: %v", name, key, err)
	}
	return string(v), ok
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"plain", Plain(), false},
		{"", Plain(), false},
		{"add-only", AddOnly(), false},
		{"ttl(6s)", FixedTTL(6 * time.Second), false},
		{"ttl=1m", FixedTTL(time.Minute), false},
		{"500ms", FixedTTL(500 * time.Millisecond), false},
		{"ttl(0s)", Policy{}, true},
		{"forever", Policy{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if s := FixedTTL(6 * time.Second).String(); s != "ttl(6s)" {
		t.Errorf("unexpected text form %q", s)
	}
}

func TestPlainCache(t *testing.T) {
	r := newTestRegistry(t, Plain())

	r.Write("simple", "k", []byte("v1"))
	r.Write("simple", "k", []byte("v2"))
	if v, _ := read(t, r, "simple", "k"); v != "v2" {
		t.Errorf("plain cache should overwrite, got %s", v)
	}

	v, ok, err := r.Remove("simple", "k")
	if err != nil || !ok || string(v) != "v2" {
		t.Errorf("Remove should return the removed value, got (%s, %v, %v)", v, ok, err)
	}
	if _, ok = read(t, r, "simple", "k"); ok {
		t.Errorf("key still readable after Remove")
	}
	if _, ok, _ = r.Remove("simple", "k"); ok {
		t.Errorf("second Remove should miss")
	}
}

func TestAddOnlyCache(t *testing.T) {
	r := newTestRegistry(t, Plain())
	if err := r.Declare("noupdate", AddOnly()); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	if err := r.Write("noupdate", "k", []byte("first")); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := r.Write("noupdate", "k", []byte("second")); err != nil {
		t.Errorf("colliding write on an add-only cache must still succeed, got %v", err)
	}
	if v, _ := read(t, r, "noupdate", "k"); v != "first" {
		t.Errorf("add-only cache should keep the first value, got %s", v)
	}
}

func TestFixedTTLCache(t *testing.T) {
	r := newTestRegistry(t, Plain())
	r.Declare("expiring", FixedTTL(6*time.Second))

	r.Write("expiring", "k", []byte("v"))
	r.clock.Advance(5 * time.Second)
	if _, ok := read(t, r, "expiring", "k"); !ok {
		t.Fatalf("entry expired before the fixed ttl")
	}
	r.clock.Advance(3 * time.Second)
	if _, ok := read(t, r, "expiring", "k"); ok {
		t.Errorf("entry readable after the fixed ttl")
	}
}

func TestCacheIsolation(t *testing.T) {
	r := newTestRegistry(t, Plain())
	r.Declare("a", AddOnly())

	r.Write("a", "k", []byte("in-a"))
	r.Write("b", "k", []byte("in-b"))
	r.Write("b", "k", []byte("in-b-2"))

	if v, _ := read(t, r, "a", "k"); v != "in-a" {
		t.Errorf("cache a sees %s", v)
	}
	if v, _ := read(t, r, "b", "k"); v != "in-b-2" {
		t.Errorf("cache b sees %s", v)
	}
	if r.created.Load() != 2 {
		t.Errorf("expected one store per cache, got %d", r.created.Load())
	}
}

func TestPolicyBinding(t *testing.T) {
	r := newTestRegistry(t, Plain())

	if err := r.Declare("c", FixedTTL(time.Second)); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	if err := r.Declare("c", FixedTTL(time.Second)); err != nil {
		t.Errorf("identical redeclaration should be idempotent, got %v", err)
	}
	err := r.Declare("c", AddOnly())
	if store.CodeOf(err) != store.RetCInvalidArgument {
		t.Errorf("conflicting redeclaration should be rejected, got %v", err)
	}
	if p, _ := r.Policy("c"); p != FixedTTL(time.Second) {
		t.Errorf("conflicting declaration changed the policy to %s", p)
	}

	// implicit binding on first write
	r.Write("implicit", "k", []byte("v"))
	if p, ok := r.Policy("implicit"); !ok || p != Plain() {
		t.Errorf("expected implicit binding to plain, got %s (bound=%v)", p, ok)
	}
	if err := r.Declare("implicit", AddOnly()); err == nil {
		t.Errorf("declaring a different policy after an implicit binding should fail")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "c" || names[1] != "implicit" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestDefaultPolicy(t *testing.T) {
	r := newTestRegistry(t, AddOnly())

	r.Write("x", "k", []byte("1"))
	r.Write("x", "k", []byte("2"))
	if v, _ := read(t, r, "x", "k"); v != "1" {
		t.Errorf("default policy add-only not applied, got %s", v)
	}
}

func TestReadUnknownCache(t *testing.T) {
	r := newTestRegistry(t, Plain())

	if _, ok := read(t, r, "nope", "k"); ok {
		t.Errorf("read from an unknown cache should miss")
	}
	if _, ok, _ := r.Remove("nope", "k"); ok {
		t.Errorf("remove from an unknown cache should miss")
	}
	if _, bound := r.Policy("nope"); bound {
		t.Errorf("reads must not bind a name")
	}
	if r.created.Load() != 0 {
		t.Errorf("reads must not create stores")
	}
}

func TestConcurrentFirstWrite(t *testing.T) {
	r := newTestRegistry(t, Plain())

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			if err := r.Write("hot", "k", []byte("v")); err != nil {
				t.Errorf("write failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if r.created.Load() != 1 {
		t.Errorf("expected exactly one store for concurrent first writes, got %d", r.created.Load())
	}
}
