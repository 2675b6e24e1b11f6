// Package tasks is the dispatch surface: named operations the CLI (or any
// other caller) can invoke with string parameters.
package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/melih-ucgun/forgeguard/internal/config"
	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/discovery"
	"github.com/melih-ucgun/forgeguard/internal/engine"
	"github.com/melih-ucgun/forgeguard/internal/preprocess"
	"github.com/melih-ucgun/forgeguard/internal/toolchain"
)

// Task names.
const (
	Compile         = "compile"
	CompileSpecific = "compile:specific"
	CoverageMock    = "coverage-mock"
)

// ParamContract selects the source path for compile:specific.
const ParamContract = "contract"

// StepFactory builds a toolchain step for a configuration. Tests swap it.
type StepFactory func(cfg *config.Config, log core.Logger) toolchain.Step

// Deps are what the built-in tasks run against.
type Deps struct {
	Config   *config.Config
	Runner   *engine.Runner
	Log      core.Logger
	Compile  StepFactory
	Coverage StepFactory
}

func (d *Deps) defaults() {
	if d.Log == nil {
		d.Log = core.NopLogger{}
	}
	if d.Compile == nil {
		d.Compile = func(cfg *config.Config, log core.Logger) toolchain.Step { return toolchain.Compile(cfg, log) }
	}
	if d.Coverage == nil {
		d.Coverage = func(cfg *config.Config, log core.Logger) toolchain.Step { return toolchain.Coverage(cfg, log) }
	}
	if d.Runner == nil {
		d.Runner = engine.NewRunner(nil, d.Log, nil)
	}
}

// RegisterBuiltins adds compile, compile:specific and coverage-mock to r.
func RegisterBuiltins(r *Registry, deps Deps) {
	deps.defaults()

	r.Register(Compile, "Compiles every contract under the sources path",
		func(ctx context.Context, _ Params) (core.Result, error) {
			return deps.Compile(deps.Config, deps.Log).Run(ctx)
		})

	r.Register(CompileSpecific, "Compiles only the specified contract",
		func(ctx context.Context, p Params) (core.Result, error) {
			return compileSpecific(ctx, deps, p[ParamContract])
		}, ParamContract)

	r.Register(CoverageMock, "Runs coverage after running the preprocess pass over the examples",
		func(ctx context.Context, _ Params) (core.Result, error) {
			return coverageMock(ctx, deps)
		})
}

func compileSpecific(ctx context.Context, deps Deps, contract string) (core.Result, error) {
	if !filepath.IsAbs(contract) {
		contract = filepath.Join(deps.Config.Project.Paths.Root, contract)
	}

	// The caller's config stays untouched; the step sees a copy.
	cfg := *deps.Config
	cfg.Project.Paths.Sources = contract
	deps.Log.Debug("Restricting sources", "contract", contract)

	return deps.Compile(&cfg, deps.Log).Run(ctx)
}

func coverageMock(ctx context.Context, deps Deps) (core.Result, error) {
	pipeline, err := preprocess.FromRules(deps.Config.Project.Preprocess)
	if err != nil {
		return core.Failure(err, "invalid preprocess rules"), err
	}

	root := deps.Config.ExamplesDir()
	step := deps.Coverage(deps.Config, deps.Log)
	deps.Log.Info(fmt.Sprintf("Preprocessing %s before %s", root, step.Name()))

	return deps.Runner.RunTransacted(ctx, root, discovery.HasSuffix(deps.Config.Project.Suffix), pipeline, step)
}
