package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/melih-ucgun/forgeguard/internal/consts"
	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/engine"
	"github.com/melih-ucgun/forgeguard/internal/state"
	"github.com/melih-ucgun/forgeguard/internal/tasks"
)

// newRegistry wires the built-in tasks against the loaded configuration.
// The transaction log lives under the project root.
func newRegistry() (*tasks.Registry, error) {
	fsys := &core.RealFS{}
	statePath := consts.GetStateFilePath(appConfig.Project.Paths.Root)

	mgr, err := state.NewManager(statePath, fsys)
	if err != nil {
		return nil, fmt.Errorf("loading transaction log %s: %w", statePath, err)
	}

	runner := engine.NewRunner(fsys, logger, mgr)
	runner.ShowDiff = verboseCount > 0
	runner.Metrics = appMetrics

	reg := tasks.NewRegistry()
	tasks.RegisterBuiltins(reg, tasks.Deps{
		Config: appConfig,
		Runner: runner,
		Log:    logger,
	})
	return reg, nil
}

// signalContext is cancelled on Ctrl+C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runTask(name string, params tasks.Params) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := reg.Run(ctx, name, params)
	if res.Output != "" {
		fmt.Fprint(os.Stdout, res.Output)
	}
	if err != nil {
		return err
	}

	logger.Info(res.Message)
	return nil
}
