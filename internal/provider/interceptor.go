package provider

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/metrics"
)

// Handler takes over one method. next is the provider the interceptor wraps
// (or the previously registered handler for the same method); calling it
// forwards the request.
type Handler func(ctx context.Context, req *Request, next Provider) (json.RawMessage, error)

// Interceptor decorates an inner provider. Methods without a handler go
// straight to the inner provider and its result or error comes back as is.
//
// The handler table is fixed once Wrap returns, so concurrent requests need no
// locking beyond what the inner provider does.
type Interceptor struct {
	inner    Provider
	handlers map[string]Handler
	log      core.Logger
	metrics  *metrics.Metrics
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithHandler registers h for method. Registering a second handler for the
// same method layers it on top: its next is the earlier handler.
func WithHandler(method string, h Handler) Option {
	return func(i *Interceptor) {
		prev, ok := i.handlers[method]
		if !ok {
			i.handlers[method] = h
			return
		}
		i.handlers[method] = func(ctx context.Context, req *Request, next Provider) (json.RawMessage, error) {
			below := ProviderFunc(func(ctx context.Context, req *Request) (json.RawMessage, error) {
				return prev(ctx, req, next)
			})
			return h(ctx, req, below)
		}
	}
}

// WithLogger logs every request at debug level.
func WithLogger(l core.Logger) Option {
	return func(i *Interceptor) {
		if l != nil {
			i.log = l
		}
	}
}

// WithMetrics counts every request, intercepted or not.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

// Wrap returns an interceptor around inner. inner is borrowed, not owned.
func Wrap(inner Provider, opts ...Option) *Interceptor {
	i := &Interceptor{
		inner:    inner,
		handlers: make(map[string]Handler),
		log:      core.NopLogger{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Request(ctx context.Context, req *Request) (json.RawMessage, error) {
	start := time.Now()
	h, intercepted := i.handlers[req.Method]

	var (
		res json.RawMessage
		err error
	)
	if intercepted {
		res, err = h(ctx, req, i.inner)
	} else {
		res, err = i.inner.Request(ctx, req)
	}

	i.metrics.RecordRPC(req.Method, intercepted, err, time.Since(start))
	i.log.Debug("rpc request",
		"method", req.Method,
		"intercepted", intercepted,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

// Inner returns the wrapped provider.
func (i *Interceptor) Inner() Provider { return i.inner }

// Intercepts reports whether method has a handler.
func (i *Interceptor) Intercepts(method string) bool {
	_, ok := i.handlers[method]
	return ok
}

// Methods lists the intercepted methods in lexical order.
func (i *Interceptor) Methods() []string {
	methods := make([]string, 0, len(i.handlers))
	for m := range i.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
