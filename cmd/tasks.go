package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/forgeguard/internal/tasks"
)

var tasksCmd = &cobra.Command{
	Use:         "tasks",
	Short:       "List available tasks",
	Annotations: map[string]string{skipConfig: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := tasks.NewRegistry()
		tasks.RegisterBuiltins(reg, tasks.Deps{Log: logger})

		tableData := [][]string{{"Task", "Params", "Description"}}
		for _, info := range reg.List() {
			tableData = append(tableData, []string{info.Name, strings.Join(info.Params, ", "), info.Description})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
	},
}

var taskRunCmd = &cobra.Command{
	Use:   "run <task> [key=value...]",
	Short: "Run a task by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		return runTask(args[0], params)
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(taskRunCmd)
}
