package cmd

import (
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/forgeguard/internal/tasks"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile contracts",
	Long:  `Compiles every contract under the sources path, or only the one given with --contract.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		contract, _ := cmd.Flags().GetString("contract")
		if contract == "" {
			return runTask(tasks.Compile, nil)
		}
		return runTask(tasks.CompileSpecific, tasks.Params{tasks.ParamContract: contract})
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().String("contract", "", "The contract's path")
}
