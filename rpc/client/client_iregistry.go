package client

import (
	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/ValentinKolb/dCache/rpc/serializer"
	"github.com/ValentinKolb/dCache/rpc/transport"
)

// NewRPCRegistry creates a new RPC IRegistry
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns a registry.IRegistry and an error
func NewRPCRegistry(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (registry.IRegistry, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	r := rpcRegistry{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	return &r, nil
}

type rpcRegistry struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the registry package in interface.go)
// --------------------------------------------------------------------------

func (r *rpcRegistry) Declare(name string, policy registry.Policy) (err error) {
	_, err = r.invoke(common.NewCacheDeclareRequest(name, policy.String()))
	return err
}

func (r *rpcRegistry) Write(name, key string, value []byte) (err error) {
	_, err = r.invoke(common.NewCacheWriteRequest(name, key, value, false))
	return err
}

func (r *rpcRegistry) Read(name, key string) (value []byte, loaded bool, err error) {
	resp, err := r.invoke(common.NewCacheReadRequest(name, key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Found, nil
}

func (r *rpcRegistry) Remove(name, key string) (value []byte, loaded bool, err error) {
	resp, err := r.invoke(common.NewCacheRemoveRequest(name, key, false))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Found, nil
}

// Policy asks the server for all bindings, errors are logged and reported as unbound
func (r *rpcRegistry) Policy(name string) (policy registry.Policy, bound bool) {
	resp, err := r.invoke(common.NewCacheNamesRequest())
	if err != nil {
		Logger.Warningf("failed to load policy of cache %q: %v", name, err)
		return registry.Policy{}, false
	}
	raw, ok := resp.Entries[name]
	if !ok {
		return registry.Policy{}, false
	}
	policy, err = registry.ParsePolicy(string(raw))
	if err != nil {
		Logger.Warningf("server sent invalid policy %q for cache %q: %v", raw, name, err)
		return registry.Policy{}, false
	}
	return policy, true
}

// Names returns nil if the server cannot be reached
func (r *rpcRegistry) Names() (names []string) {
	resp, err := r.invoke(common.NewCacheNamesRequest())
	if err != nil {
		Logger.Warningf("failed to load cache names: %v", err)
		return nil
	}
	return resp.Keys
}
