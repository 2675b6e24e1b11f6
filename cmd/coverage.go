package cmd

import (
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/forgeguard/internal/tasks"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Run coverage after running the preprocess pass",
	Long: `Preprocesses the contracts under <root>/examples, runs the coverage tool and
restores the original sources, whether coverage passes or fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(tasks.CoverageMock, nil)
	},
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}
