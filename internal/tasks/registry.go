package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/melih-ucgun/forgeguard/internal/core"
)

// Params are the named arguments of one task invocation.
type Params map[string]string

// Handler runs a task.
type Handler func(ctx context.Context, params Params) (core.Result, error)

// Info describes a registered task.
type Info struct {
	Name        string
	Description string
	Params      []string
}

type entry struct {
	info    Info
	handler Handler
}

// Registry maps task names to handlers.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]entry)}
}

// Register adds or replaces a task. params lists the required parameters.
func (r *Registry) Register(name, description string, h Handler, params ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = entry{
		info:    Info{Name: name, Description: description, Params: params},
		handler: h,
	}
}

// Run invokes the named task after checking its required parameters.
func (r *Registry) Run(ctx context.Context, name string, params Params) (core.Result, error) {
	r.mu.RLock()
	e, ok := r.tasks[name]
	r.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("unknown task: %s", name)
		return core.Failure(err, "unknown task"), err
	}

	var missing []string
	for _, p := range e.info.Params {
		if strings.TrimSpace(params[p]) == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("task %s: missing parameter(s): %s", name, strings.Join(missing, ", "))
		return core.Failure(err, "missing parameters"), err
	}

	return e.handler(ctx, params)
}

// List returns registered tasks ordered by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
