package server

import (
	"fmt"

	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/rpc/common"
)

func NewRegistryServerAdapter() IRPCServerAdapter {
	return &registryServerAdapterImpl{}
}

// registryServerAdapterImpl serves the named cache operations of a shard
type registryServerAdapterImpl struct{}

func (adapter *registryServerAdapterImpl) Accepts(t common.MessageType) bool {
	return t >= common.MsgTCacheDeclare && t <= common.MsgTCacheNames
}

func (adapter *registryServerAdapterImpl) Handle(req *common.Message, shard *Shard) *common.Message {
	if shard == nil || shard.Registry == nil {
		return common.NewErrorResponse("handler: registry is nil")
	}
	r := shard.Registry

	switch req.MsgType {
	case common.MsgTCacheDeclare:
		policy, err := registry.ParsePolicy(req.Policy)
		if err == nil {
			err = r.Declare(req.Cache, policy)
		}
		return common.NewCacheDeclareResponse(err)
	case common.MsgTCacheWrite:
		if req.Async {
			Logger.Debugf("async write to cache %q is applied before responding", req.Cache)
		}
		err := r.Write(req.Cache, req.Key, req.Value)
		return common.NewCacheWriteResponse(err)
	case common.MsgTCacheRead:
		val, ok, err := r.Read(req.Cache, req.Key)
		return common.NewCacheReadResponse(val, ok, err)
	case common.MsgTCacheRemove:
		val, ok, err := r.Remove(req.Cache, req.Key)
		return common.NewCacheRemoveResponse(val, ok, err)
	case common.MsgTCacheNames:
		names := r.Names()
		policies := make(map[string][]byte, len(names))
		for _, name := range names {
			if policy, ok := r.Policy(name); ok {
				policies[name] = []byte(policy.String())
			}
		}
		return common.NewCacheNamesResponse(names, policies, nil)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC RegistryAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
