// Package engine fronts the backing wallet engine: the opaque call
// contract, a subprocess transport, and the lifecycle manager that gates
// inbound traffic on engine readiness.
package engine

import (
	"context"
	"encoding/json"

	"github.com/sat20-labs/walletd/internal/config"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// Result is the engine's raw call result. Code zero is success; any other
// code maps to an EngineError carrying Msg.
type Result struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// Engine is the opaque call surface of the backing wallet engine. The
// broker never inspects engine behavior beyond this contract.
type Engine interface {
	Call(ctx context.Context, method string, args ...any) (json.RawMessage, error)
	Release() error
}

// Loader constructs an engine instance under a configuration. Loading is
// slow (the reference engine is a multi-megabyte module) and runs
// asynchronously under the Manager.
type Loader func(ctx context.Context, cfg config.EngineConfig) (Engine, error)

// resultToData maps a Result to the success payload or an EngineError.
func resultToData(res Result) (json.RawMessage, error) {
	if res.Code != 0 {
		return nil, protocol.EngineError(res.Msg)
	}
	return res.Data, nil
}
