// Package handlers implements the business logic behind wallet actions.
// Each handler serves a family of related actions, validates parameters,
// and delegates the actual wallet work to the backing engine.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// Engine is the subset of the engine manager handlers depend on.
type Engine interface {
	Call(ctx context.Context, method string, args ...any) (json.RawMessage, error)
}

// decode unmarshals a request payload into params, converting malformed
// input into an invalid-request error the router returns verbatim.
func decode(data json.RawMessage, params any) error {
	if len(data) == 0 {
		return protocol.InvalidRequest("missing request parameters")
	}
	if err := json.Unmarshal(data, params); err != nil {
		return protocol.InvalidRequest(fmt.Sprintf("malformed parameters: %v", err))
	}
	return nil
}
