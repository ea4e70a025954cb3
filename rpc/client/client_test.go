package client

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/ValentinKolb/dCache/rpc/serializer"
	"github.com/ValentinKolb/dCache/rpc/server"
)

// --------------------------------------------------------------------------
// Loopback transport
// --------------------------------------------------------------------------

// loopbackTransport hands requests directly to the server adapters of a local shard
type loopbackTransport struct {
	shard      *server.Shard
	serializer serializer.IRPCSerializer
	adapters   []server.IRPCServerAdapter
	down       bool
}

func (l *loopbackTransport) Connect(common.ClientConfig) error { return nil }

func (l *loopbackTransport) Close() error { return nil }

func (l *loopbackTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if l.down {
		return nil, errors.New("connection refused")
	}
	var msg common.Message
	if err := l.serializer.Deserialize(req, &msg); err != nil {
		return nil, err
	}
	resp := common.NewErrorResponse("unsupported message type")
	if shardId != l.shard.ID {
		resp = common.NewErrorResponse("unknown shard")
	} else {
		for _, a := range l.adapters {
			if a.Accepts(msg.MsgType) {
				resp = a.Handle(&msg, l.shard)
				break
			}
		}
	}
	return l.serializer.Serialize(*resp)
}

func newLoopback(t *testing.T) *loopbackTransport {
	t.Helper()
	shard, err := server.NewShard(common.ServerConfig{
		Caches:     map[string]string{"expiring": "ttl(6s)"},
		DBShards:   2,
		GCInterval: -1,
	}, common.ServerShard{ShardID: 1, Module: "default"})
	if err != nil {
		t.Fatalf("NewShard: %v", err)
	}
	t.Cleanup(func() { _ = shard.Close() })
	return &loopbackTransport{
		shard:      shard,
		serializer: serializer.NewMsgpackSerializer(),
		adapters:   []server.IRPCServerAdapter{server.NewIStoreServerAdapter(), server.NewRegistryServerAdapter()},
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRPCStore(t *testing.T) {
	lb := newLoopback(t)
	s, err := NewRPCStore(1, common.ClientConfig{}, lb, lb.serializer)
	if err != nil {
		t.Fatalf("NewRPCStore: %v", err)
	}

	if added, err := s.Add("k", []byte("v1"), time.Minute); err != nil || !added {
		t.Fatalf("Add: %v, %v", added, err)
	}
	if added, _ := s.Add("k", []byte("v2"), 0); added {
		t.Error("second Add must report false")
	}

	value, version, ok, err := s.Gets("k")
	if err != nil || !ok || string(value) != "v1" {
		t.Fatalf("Gets: %q, %v, %v", value, ok, err)
	}
	if swapped, found, _ := s.CompareAndSwap("k", version, []byte("v3"), 0); !swapped || !found {
		t.Error("CompareAndSwap with current version failed")
	}
	if swapped, found, _ := s.CompareAndSwap("missing", 1, []byte("x"), 0); swapped || found {
		t.Error("CompareAndSwap on absent key must report not found")
	}

	if n, err := s.Increment("n", 3, 7); err != nil || n != 10 {
		t.Errorf("Increment: %d, %v", n, err)
	}
	if created, _ := s.CreateCounter("c", 1, store.Width32); !created {
		t.Error("CreateCounter failed")
	}
	if c, ok, _ := s.IncrementCounter("c", 1); !ok || c.Value != 2 || c.Width != store.Width32 {
		t.Errorf("IncrementCounter: %+v, %v", c, ok)
	}
	if c, ok, _ := s.GetCounter("c"); !ok || c.Value != 2 {
		t.Errorf("GetCounter: %+v, %v", c, ok)
	}

	if err := s.MultiSet([]string{"a", "b"}, [][]byte{[]byte("1"), []byte("2")}, 0); err != nil {
		t.Fatalf("MultiSet: %v", err)
	}
	entries, err := s.MultiGet([]string{"a", "b", "zzz"})
	if err != nil || len(entries) != 2 || string(entries["b"]) != "2" {
		t.Errorf("MultiGet: %v, %v", entries, err)
	}
	if err := s.MultiDelete([]string{"a", "b"}); err != nil {
		t.Fatalf("MultiDelete: %v", err)
	}
	if entries, _ := s.MultiGet([]string{"a", "b"}); entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil map, got %v", entries)
	}

	if deleted, _ := s.Delete("k"); !deleted {
		t.Error("Delete failed")
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("expected miss after Delete")
	}

	info, err := s.GetDBInfo()
	if err != nil || info.DbType == "" {
		t.Errorf("GetDBInfo: %+v, %v", info, err)
	}
}

func TestRPCStoreErrors(t *testing.T) {
	lb := newLoopback(t)
	s, _ := NewRPCStore(1, common.ClientConfig{}, lb, lb.serializer)

	if err := s.Set("text", []byte("abc"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, err := s.Increment("text", 1, 0)
	if store.CodeOf(err) != store.RetCTypeMismatch {
		t.Errorf("expected TypeMismatch, got %v", err)
	}

	err = s.MultiSet([]string{"a"}, nil, 0)
	if store.CodeOf(err) != store.RetCInvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}

	wrongShard, _ := NewRPCStore(2, common.ClientConfig{}, lb, lb.serializer)
	if _, _, err := wrongShard.Get("k"); err == nil {
		t.Error("expected error for unknown shard")
	}

	lb.down = true
	if _, _, err := s.Get("k"); err == nil {
		t.Error("expected transport error")
	}
}

func TestRPCRegistry(t *testing.T) {
	lb := newLoopback(t)
	r, err := NewRPCRegistry(1, common.ClientConfig{}, lb, lb.serializer)
	if err != nil {
		t.Fatalf("NewRPCRegistry: %v", err)
	}

	if err := r.Declare("ids", registry.AddOnly()); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if err := r.Declare("ids", registry.Plain()); store.CodeOf(err) != store.RetCInvalidArgument {
		t.Errorf("expected conflicting Declare to fail, got %v", err)
	}

	_ = r.Write("ids", "k", []byte("first"))
	if err := r.Write("ids", "k", []byte("second")); err != nil {
		t.Errorf("Write: %v", err)
	}
	if v, ok, _ := r.Read("ids", "k"); !ok || string(v) != "first" {
		t.Errorf("Read: %q, %v", v, ok)
	}
	if v, ok, _ := r.Remove("ids", "k"); !ok || string(v) != "first" {
		t.Errorf("Remove: %q, %v", v, ok)
	}
	if _, ok, _ := r.Remove("ids", "k"); ok {
		t.Error("second Remove must miss")
	}

	policy, bound := r.Policy("expiring")
	if !bound || policy != registry.FixedTTL(6*time.Second) {
		t.Errorf("Policy: %v, %v", policy, bound)
	}
	if _, bound := r.Policy("unknown"); bound {
		t.Error("unknown cache must be unbound")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "expiring" || names[1] != "ids" {
		t.Errorf("Names: %v", names)
	}

	lb.down = true
	if names := r.Names(); names != nil {
		t.Errorf("expected nil names when the server is down, got %v", names)
	}
}
