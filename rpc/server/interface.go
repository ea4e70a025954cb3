package server

import (
	"github.com/ValentinKolb/dCache/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Accepts reports whether the adapter handles messages of type t
	Accepts(t common.MessageType) bool
	// Handle handles a request and returns a response
	// It takes a Message and the addressed shard as parameters.
	// It returns a Message as a response
	// If an error occurs, it should be set in the response
	Handle(req *common.Message, shard *Shard) (resp *common.Message)
}
