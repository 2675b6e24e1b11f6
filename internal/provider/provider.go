// Package provider models the connection to the remote execution environment
// and the interceptor that decorates it.
//
// A Provider accepts EIP-1193 style requests (method plus positional params)
// and returns the raw JSON result. Everything that talks to the node goes
// through this one method, so wrapping a Provider changes behaviour for every
// caller at once.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request is a single JSON-RPC call.
type Request struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// NewRequest builds a request; nil params are sent as an empty list.
func NewRequest(method string, params ...any) *Request {
	if params == nil {
		params = []any{}
	}
	return &Request{Method: method, Params: params}
}

// Provider sends requests to a node.
type Provider interface {
	Request(ctx context.Context, req *Request) (json.RawMessage, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req *Request) (json.RawMessage, error)

func (f ProviderFunc) Request(ctx context.Context, req *Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC error codes used by local handlers.
const (
	CodeInvalidParams = -32602
	CodeInternalError = -32603
)

// Call sends method through p and decodes the result into out.
func Call(ctx context.Context, p Provider, out any, method string, params ...any) error {
	raw, err := p.Request(ctx, NewRequest(method, params...))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decoding result: %w", method, err)
	}
	return nil
}
