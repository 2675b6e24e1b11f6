package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrProviderClosed = errors.New("provider closed")

type wsResult struct {
	resp rpcResponse
	err  error
}

// WSProvider speaks JSON-RPC 2.0 over a websocket. The connection is dialled
// on first use and redialled after it drops. Responses are matched to
// requests by id, so concurrent requests share one connection.
type WSProvider struct {
	url    string
	dialer *websocket.Dialer
	nextID atomic.Uint64
	loops  sync.WaitGroup

	// mu guards the fields below and serialises writes.
	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]chan wsResult
	closed  bool
}

// NewWSProvider returns a provider for a ws:// or wss:// url. A nil dialer
// gets websocket.DefaultDialer settings with a handshake timeout.
func NewWSProvider(url string, dialer *websocket.Dialer) *WSProvider {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 30 * time.Second,
		}
	}
	return &WSProvider{
		url:     url,
		dialer:  dialer,
		pending: make(map[uint64]chan wsResult),
	}
}

// URL returns the endpoint.
func (p *WSProvider) URL() string { return p.url }

func (p *WSProvider) Request(ctx context.Context, req *Request) (json.RawMessage, error) {
	params := req.Params
	if params == nil {
		params = []any{}
	}
	id := p.nextID.Add(1)
	ch := make(chan wsResult, 1)

	p.mu.Lock()
	conn, err := p.connectLocked(ctx)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", req.Method, err)
	}
	p.pending[id] = ch
	err = conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: req.Method, Params: params})
	if err != nil {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%s: writing request: %w", req.Method, err)
	}

	select {
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", req.Method, res.err)
		}
		if res.resp.Error != nil {
			return nil, res.resp.Error
		}
		if res.resp.Result == nil {
			return json.RawMessage("null"), nil
		}
		return res.resp.Result, nil
	}
}

func (p *WSProvider) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.conn != nil {
		return p.conn, nil
	}

	conn, resp, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", p.url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", p.url, err)
	}
	p.conn = conn
	p.loops.Add(1)
	go p.readLoop(conn)
	return conn, nil
}

func (p *WSProvider) readLoop(conn *websocket.Conn) {
	defer p.loops.Done()
	for {
		var resp rpcResponse
		if err := conn.ReadJSON(&resp); err != nil {
			p.drop(conn, err)
			return
		}

		// Subscription notifications carry no id.
		id, err := strconv.ParseUint(string(resp.ID), 10, 64)
		if err != nil {
			continue
		}

		p.mu.Lock()
		ch, ok := p.pending[id]
		delete(p.pending, id)
		p.mu.Unlock()
		if ok {
			ch <- wsResult{resp: resp}
		}
	}
}

// drop fails every pending request on conn and forgets the connection so the
// next request redials.
func (p *WSProvider) drop(conn *websocket.Conn, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != conn {
		return
	}
	_ = conn.Close()
	p.conn = nil

	if p.closed {
		cause = ErrProviderClosed
	}
	for id, ch := range p.pending {
		ch <- wsResult{err: fmt.Errorf("connection lost: %w", cause)}
		delete(p.pending, id)
	}
}

// Close shuts the connection down and waits for its reader to exit. Pending
// and later requests fail with ErrProviderClosed.
func (p *WSProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	conn := p.conn
	p.mu.Unlock()

	if conn != nil {
		p.drop(conn, ErrProviderClosed)
	}
	p.loops.Wait()
	return nil
}
