package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/melih-ucgun/forgeguard/internal/discovery"
	"github.com/melih-ucgun/forgeguard/internal/tasks"
	"github.com/melih-ucgun/forgeguard/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [task] [key=value...]",
	Short: "Rerun a task whenever contract sources change",
	Long: `Runs the task once, then again each time files under the sources path with the
configured suffix change. Writes made by the task itself are ignored. Stop with Ctrl+C.`,
	Example: `  forgeguard watch
  forgeguard watch coverage-mock
  forgeguard watch compile:specific contract=contracts/Token.sol`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := tasks.Compile
		if len(args) > 0 {
			name = args[0]
		}
		params, err := parseParams(args[min(1, len(args)):])
		if err != nil {
			return err
		}

		reg, err := newRegistry()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		root := appConfig.Project.Paths.Sources
		if info, err := os.Stat(root); err == nil && !info.IsDir() {
			root = appConfig.Project.Paths.Root
		}
		debounce, _ := cmd.Flags().GetDuration("debounce")

		w := watch.New(root, discovery.HasSuffix(appConfig.Project.Suffix), logger)
		w.Debounce = debounce
		return w.Run(ctx, func(ctx context.Context) error {
			res, err := reg.Run(ctx, name, params)
			if res.Output != "" {
				fmt.Fprint(os.Stdout, res.Output)
			}
			if err != nil {
				return err
			}
			logger.Info(res.Message)
			return nil
		})
	},
}

func parseParams(args []string) (tasks.Params, error) {
	params := tasks.Params{}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before rerunning")
}
