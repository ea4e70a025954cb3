package server

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/db/engines/maple"
	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/lib/store/lstore"
	"github.com/ValentinKolb/dCache/rpc/common"
)

// Shard is one served module. It owns an entry store and a registry of named caches,
// each named cache gets its own engine.
type Shard struct {
	ID       uint64
	Module   string
	Store    store.IStore
	Registry registry.IRegistry
}

// NewShard creates the store and registry of a shard and declares the configured caches.
func NewShard(config common.ServerConfig, shardConfig common.ServerShard) (*Shard, error) {
	dbFactory := func() db.KVDB {
		return maple.NewMapleDB(&maple.DBOptions{
			NumShards:  config.DBShards,
			GCInterval: config.GCInterval,
		})
	}

	defaultPolicy, err := registry.ParsePolicy(config.DefaultPolicy)
	if err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}

	shard := &Shard{
		ID:     shardConfig.ShardID,
		Module: shardConfig.Module,
		Store:  lstore.NewLocalStore(dbFactory),
		Registry: registry.NewRegistry(func(name string) store.IStore {
			Logger.Debugf("creating store for cache %q in module %s", name, shardConfig.Module)
			return lstore.NewLocalStore(dbFactory)
		}, defaultPolicy),
	}

	// declare in sorted order so startup logs are stable
	names := make([]string, 0, len(config.Caches))
	for name := range config.Caches {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		policy, err := registry.ParsePolicy(config.Caches[name])
		if err == nil {
			err = shard.Registry.Declare(name, policy)
		}
		if err != nil {
			_ = shard.Close()
			return nil, fmt.Errorf("cache %s: %w", name, err)
		}
	}

	return shard, nil
}

// Close closes the store and every named cache of the shard
func (s *Shard) Close() error {
	return errors.Join(s.Store.Close(), s.Registry.Close())
}
