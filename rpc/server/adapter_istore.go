package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Accepts(t common.MessageType) bool {
	return t >= common.MsgTKVAdd && t <= common.MsgTKVInfo
}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, shard *Shard) *common.Message {
	if shard == nil || shard.Store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}
	s := shard.Store
	ttl := common.TTLFromMillis(req.ExpireIn)

	if req.Async {
		Logger.Debugf("async %s on module %s is applied before responding", req.MsgType, shard.Module)
	}

	switch req.MsgType {
	case common.MsgTKVAdd:
		added, err := s.Add(req.Key, req.Value, ttl)
		return common.NewAddResponse(added, err)
	case common.MsgTKVSet:
		err := s.Set(req.Key, req.Value, ttl)
		return common.NewSetResponse(err)
	case common.MsgTKVGet:
		val, ok, err := s.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVDelete:
		deleted, err := s.Delete(req.Key)
		return common.NewDeleteResponse(deleted, err)
	case common.MsgTKVGetAndDelete:
		val, ok, err := s.GetAndDelete(req.Key)
		return common.NewGetAndDeleteResponse(val, ok, err)
	case common.MsgTKVGets:
		val, version, ok, err := s.Gets(req.Key)
		return common.NewGetsResponse(val, version, ok, err)
	case common.MsgTKVCAS:
		swapped, found, err := s.CompareAndSwap(req.Key, req.Version, req.Value, ttl)
		return common.NewCASResponse(swapped, found, err)
	case common.MsgTKVIncr:
		val, err := s.Increment(req.Key, req.Delta, req.Initial)
		return common.NewIncrResponse(val, err)
	case common.MsgTKVCounterCreate:
		created, err := s.CreateCounter(req.Key, req.Initial, store.CounterWidth(req.Width))
		return common.NewCounterCreateResponse(created, err)
	case common.MsgTKVCounterIncr:
		counter, ok, err := s.IncrementCounter(req.Key, req.Delta)
		return common.NewCounterIncrResponse(counter, ok, err)
	case common.MsgTKVCounterGet:
		counter, ok, err := s.GetCounter(req.Key)
		return common.NewCounterGetResponse(counter, ok, err)
	case common.MsgTKVMultiAdd:
		added, err := s.MultiAdd(req.Keys, req.Values, ttl)
		return common.NewMultiAddResponse(added, err)
	case common.MsgTKVMultiSet:
		err := s.MultiSet(req.Keys, req.Values, ttl)
		return common.NewMultiSetResponse(err)
	case common.MsgTKVMultiDelete:
		err := s.MultiDelete(req.Keys)
		return common.NewMultiDeleteResponse(err)
	case common.MsgTKVMultiGet:
		entries, err := s.MultiGet(req.Keys)
		return common.NewMultiGetResponse(entries, err)
	case common.MsgTKVInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewInfoResponse(meta, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
