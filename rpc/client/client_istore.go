package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/ValentinKolb/dCache/rpc/serializer"
	"github.com/ValentinKolb/dCache/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns a store.IStore and an error
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC store
	s := rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC store
	return &s, nil
}

// rpcStore forwards every store operation to a remote shard.
// Writes are always sent synchronously.
type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Add(key string, value []byte, ttl time.Duration) (added bool, err error) {
	resp, err := i.invoke(common.NewAddRequest(key, value, common.TTLMillis(ttl), false))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Set(key string, value []byte, ttl time.Duration) (err error) {
	_, err = i.invoke(common.NewSetRequest(key, value, common.TTLMillis(ttl), false))
	return err
}

func (i *rpcStore) Get(key string) (value []byte, loaded bool, err error) {
	resp, err := i.invoke(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Found, nil
}

func (i *rpcStore) Delete(key string) (deleted bool, err error) {
	resp, err := i.invoke(common.NewDeleteRequest(key, false))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) GetAndDelete(key string) (value []byte, loaded bool, err error) {
	resp, err := i.invoke(common.NewGetAndDeleteRequest(key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Found, nil
}

func (i *rpcStore) Gets(key string) (value []byte, version uint64, loaded bool, err error) {
	resp, err := i.invoke(common.NewGetsRequest(key))
	if err != nil {
		return nil, 0, false, err
	}
	return resp.Value, resp.Version, resp.Found, nil
}

func (i *rpcStore) CompareAndSwap(key string, expected uint64, value []byte, ttl time.Duration) (swapped, loaded bool, err error) {
	resp, err := i.invoke(common.NewCASRequest(key, expected, value, common.TTLMillis(ttl)))
	if err != nil {
		return false, false, err
	}
	return resp.Ok, resp.Found, nil
}

func (i *rpcStore) Increment(key string, delta, initial int64) (value int64, err error) {
	resp, err := i.invoke(common.NewIncrRequest(key, delta, initial))
	if err != nil {
		return 0, err
	}
	return resp.Number, nil
}

func (i *rpcStore) CreateCounter(key string, initial int64, width store.CounterWidth) (created bool, err error) {
	resp, err := i.invoke(common.NewCounterCreateRequest(key, initial, width))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) IncrementCounter(key string, delta int64) (counter store.Counter, loaded bool, err error) {
	resp, err := i.invoke(common.NewCounterIncrRequest(key, delta))
	if err != nil {
		return store.Counter{}, false, err
	}
	return counterOf(resp), resp.Found, nil
}

func (i *rpcStore) GetCounter(key string) (counter store.Counter, loaded bool, err error) {
	resp, err := i.invoke(common.NewCounterGetRequest(key))
	if err != nil {
		return store.Counter{}, false, err
	}
	return counterOf(resp), resp.Found, nil
}

func (i *rpcStore) MultiAdd(keys []string, values [][]byte, ttl time.Duration) (added bool, err error) {
	resp, err := i.invoke(common.NewMultiAddRequest(keys, values, common.TTLMillis(ttl), false))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) MultiSet(keys []string, values [][]byte, ttl time.Duration) (err error) {
	_, err = i.invoke(common.NewMultiSetRequest(keys, values, common.TTLMillis(ttl), false))
	return err
}

func (i *rpcStore) MultiDelete(keys []string) (err error) {
	_, err = i.invoke(common.NewMultiDeleteRequest(keys, false))
	return err
}

func (i *rpcStore) MultiGet(keys []string) (values map[string][]byte, err error) {
	resp, err := i.invoke(common.NewMultiGetRequest(keys))
	if err != nil {
		return nil, err
	}
	if resp.Entries == nil {
		return map[string][]byte{}, nil
	}
	return resp.Entries, nil
}

func (i *rpcStore) GetDBInfo() (info db.DatabaseInfo, err error) {
	resp, err := i.invoke(common.NewInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("RPC client - invalid database info: %w", err)
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func counterOf(resp *common.Message) store.Counter {
	return store.Counter{Value: resp.Number, Width: store.CounterWidth(resp.Width)}
}
