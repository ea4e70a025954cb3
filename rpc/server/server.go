package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/ValentinKolb/dCache/rpc/rest"
	"github.com/ValentinKolb/dCache/rpc/serializer"
	"github.com/ValentinKolb/dCache/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("rpc")

// serverShard pairs a shard with the adapters that serve it
type serverShard struct {
	*Shard
	Adapters []IRPCServerAdapter
}

// adapterFor returns the adapter responsible for t
func (s *serverShard) adapterFor(t common.MessageType) IRPCServerAdapter {
	for _, a := range s.Adapters {
		if a.Accepts(t) {
			return a
		}
	}
	return nil
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewMsgpackSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *Server {
	return &Server{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, *serverShard](),
		metrics:    newServerMetrics(),
	}
}

// Server serves every configured shard over the RPC transport and,
// if a REST endpoint is configured, over the REST gateway.
type Server struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, *serverShard]
	metrics    *serverMetrics
}

// handle decodes a request, lets the adapter of the addressed shard answer it and encodes the response
func (s *Server) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	shard, ok := s.shards.Load(shardId)
	if !ok {
		s.metrics.unknownShard()
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else if adapter := shard.adapterFor(msg.MsgType); adapter == nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", msg.MsgType))
	} else {
		respMsg = adapter.Handle(&msg, shard.Shard)
		s.metrics.observe(shard.Module, &msg, respMsg)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

func (s *Server) init() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	for _, shardConfig := range s.config.Shards {
		shard, err := NewShard(s.config, shardConfig)
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("shard %d: %w", shardConfig.ShardID, err)
		}
		s.shards.Store(shardConfig.ShardID, &serverShard{
			Shard:    shard,
			Adapters: []IRPCServerAdapter{NewIStoreServerAdapter(), NewRegistryServerAdapter()},
		})
		s.metrics.registerShard(shard)
		Logger.Infof("created module %s on shard %d", shardConfig.Module, shardConfig.ShardID)
	}

	s.transport.RegisterHandler(s.handle)
	Logger.Infof("dCache setup completed successfully")
	return nil
}

// modules returns the served shards keyed by module name for the REST gateway
func (s *Server) modules() map[string]rest.Module {
	modules := make(map[string]rest.Module)
	s.shards.Range(func(_ uint64, shard *serverShard) bool {
		modules[shard.Module] = rest.Module{Store: shard.Store, Registry: shard.Registry}
		return true
	})
	return modules
}

// Serve initializes the shards and serves requests until ctx is done or a listener fails.
// All shards are closed before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			Logger.Errorf("failed to close shards: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.transport.Listen(gctx, s.config)
	})

	if s.config.RestEndpoint != "" {
		def, _ := s.config.DefaultShard()
		gateway := rest.NewGateway(s.modules(), def.Module, s.metrics.set)
		g.Go(func() error {
			return gateway.Listen(gctx, s.config.RestEndpoint)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close closes every shard
func (s *Server) Close() error {
	var errs []error
	s.shards.Range(func(id uint64, shard *serverShard) bool {
		errs = append(errs, shard.Close())
		s.shards.Delete(id)
		return true
	})
	return errors.Join(errs...)
}
