package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockProvider answers with canned responses keyed by method. It stands in
// for a node in tests.
type MockProvider struct {
	mu           sync.Mutex
	Expectations map[string]MockResponse
	Calls        []Request
}

type MockResponse struct {
	Result json.RawMessage
	Error  error
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		Expectations: make(map[string]MockResponse),
	}
}

func (m *MockProvider) Request(ctx context.Context, req *Request) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, *req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp, ok := m.Expectations[req.Method]; ok {
		return resp.Result, resp.Error
	}
	return nil, &RPCError{Code: -32601, Message: fmt.Sprintf("method %s not found", req.Method)}
}

// Helpers for Test Setup

// OnRequest makes method return result (JSON encoded) or err.
func (m *MockProvider) OnRequest(method string, result any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var raw json.RawMessage
	if result != nil {
		raw, _ = json.Marshal(result)
	}
	m.Expectations[method] = MockResponse{Result: raw, Error: err}
}

// CallCount returns how often method was requested.
func (m *MockProvider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.Calls {
		if call.Method == method {
			n++
		}
	}
	return n
}
