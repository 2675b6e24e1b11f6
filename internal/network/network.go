// Package network owns the per-network provider. Each network context is
// initialised once: the default provider is built, handed to the registered
// interception hook, and the hook's result serves every later call.
package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/melih-ucgun/forgeguard/internal/config"
	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/metrics"
	"github.com/melih-ucgun/forgeguard/internal/provider"
)

// Context is an initialised network.
type Context struct {
	Name    string
	ChainID int64
	URL     string

	// Provider is what callers use; it is the hook's wrapper when one is
	// registered, the default provider otherwise.
	Provider provider.Provider

	// Default is the provider before interception. The context owns it.
	Default provider.Provider
}

// Hook receives the default provider of the context being initialised and
// returns the provider to use from then on.
type Hook func(ctx context.Context, def provider.Provider, net *Context) (provider.Provider, error)

// Factory builds the default provider for an endpoint.
type Factory func(url string) provider.Provider

var ErrHookRegistered = errors.New("network: interception hook already registered")

// DefaultFactory picks the transport from the URL scheme: websocket for
// ws:// and wss://, HTTP otherwise.
func DefaultFactory(url string) provider.Provider {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return provider.NewWSProvider(url, nil)
	}
	return provider.NewHTTPProvider(url, nil)
}

// Registry keeps one Context per network name.
type Registry struct {
	mu       sync.Mutex
	hook     Hook
	factory  Factory
	contexts map[string]*Context
	log      core.Logger
}

func NewRegistry(log core.Logger) *Registry {
	if log == nil {
		log = core.NopLogger{}
	}
	return &Registry{
		factory:  DefaultFactory,
		contexts: make(map[string]*Context),
		log:      log,
	}
}

// WithFactory swaps the default provider constructor. Tests use it to avoid
// a real endpoint.
func (r *Registry) WithFactory(f Factory) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = f
	return r
}

// ExtendProvider registers the interception hook. Only one hook may exist and
// it must be registered before any network is initialised.
func (r *Registry) ExtendProvider(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hook != nil {
		return ErrHookRegistered
	}
	if len(r.contexts) > 0 {
		return fmt.Errorf("network: hook registered after %d network(s) were initialised", len(r.contexts))
	}
	r.hook = h
	return nil
}

// Init returns the context for the configured network, creating it on first
// use. The hook runs once per context, never per call.
func (r *Registry) Init(ctx context.Context, cfg *config.Config) (*Context, error) {
	name := cfg.Project.Network.Name

	r.mu.Lock()
	defer r.mu.Unlock()

	if nc, ok := r.contexts[name]; ok {
		return nc, nil
	}

	def := r.factory(cfg.RPCURL)
	nc := &Context{
		Name:     name,
		ChainID:  cfg.ChainID,
		URL:      cfg.RPCURL,
		Default:  def,
		Provider: def,
	}

	if r.hook != nil {
		wrapped, err := r.hook(ctx, def, nc)
		if err != nil {
			return nil, fmt.Errorf("network %s: extending provider: %w", name, err)
		}
		if wrapped == nil {
			return nil, fmt.Errorf("network %s: extending provider returned no provider", name)
		}
		nc.Provider = wrapped
	}

	r.contexts[name] = nc
	r.log.Debug(fmt.Sprintf("Network %s initialised", name), "url", cfg.RPCURL, "chain_id", cfg.ChainID)
	return nc, nil
}

// Get returns an already initialised context.
func (r *Registry) Get(name string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nc, ok := r.contexts[name]
	return nc, ok
}

// Close releases the default providers the registry created.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, nc := range r.contexts {
		if c, ok := nc.Default.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	r.contexts = make(map[string]*Context)
	return errors.Join(errs...)
}

// InterceptHook is the stock hook: it wraps the default provider with the
// handlers the configuration asks for. m may be nil.
func InterceptHook(cfg *config.Config, log core.Logger, m *metrics.Metrics) (Hook, error) {
	opts, err := provider.Options(cfg, log)
	if err != nil {
		return nil, err
	}
	opts = append(opts, provider.WithMetrics(m))
	return func(_ context.Context, def provider.Provider, _ *Context) (provider.Provider, error) {
		return provider.Wrap(def, opts...), nil
	}, nil
}
