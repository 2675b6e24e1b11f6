package cmd

import (
	"errors"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/forgeguard/internal/config"
	"github.com/melih-ucgun/forgeguard/internal/consts"
	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/metrics"
)

// skipConfig marks commands that run without the .env configuration.
const skipConfig = "forgeguard/skip-config"

var rootCmd = &cobra.Command{
	Use:           consts.AppName,
	Short:         "Transactional preprocess passes and an intercepting RPC provider for contract builds.",
	Long:          `forgeguard rewrites contract sources for instrumentation or coverage, runs the build step and always puts the originals back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = core.NewDefaultLogger(os.Stderr, core.LevelFromVerbosity(verboseCount))
		if verboseCount > 0 {
			pterm.EnableDebugMessages()
		}

		if cmd.Annotations[skipConfig] == "true" {
			return nil
		}

		cfg, err := config.Load(envFile, configFile)
		if err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
}

var (
	verboseCount int
	envFile      string
	configFile   string
	metricsFile  string

	appMetrics = metrics.New()

	// Set by PersistentPreRunE.
	appConfig *config.Config
	logger    core.Logger = core.NopLogger{}
)

// Execute runs the CLI. Configuration errors are reported before any
// component is built; every failure ends with a non-zero exit from main.
func Execute() error {
	err := rootCmd.Execute()
	if metricsFile != "" {
		if werr := appMetrics.WriteFile(metricsFile); werr != nil {
			pterm.Warning.Printfln("Could not write metrics to %s: %v", metricsFile, werr)
		}
	}
	if err == nil {
		return nil
	}

	var cerr *config.ConfigurationError
	if errors.As(err, &cerr) {
		pterm.Error.Println(cerr.Error())
		return err
	}

	pterm.Error.Println(err.Error())
	if paths := core.UnrestoredPaths(err); len(paths) > 0 {
		pterm.Warning.Println("These files were left in their preprocessed state and need a manual restore:")
		for _, p := range paths {
			pterm.Warning.Println("  " + p)
		}
	}
	return err
}

func init() {
	// PTerm output to Stderr (to keep Stdout clean for piping)
	pterm.SetDefaultOutput(os.Stderr)
	pterm.Success.Writer = os.Stderr
	pterm.Info.Writer = os.Stderr
	pterm.Error.Writer = os.Stderr
	pterm.Warning.Writer = os.Stderr
	pterm.Debug.Writer = os.Stderr
	pterm.DefaultHeader.Writer = os.Stderr

	rootCmd.PersistentFlags().StringVar(&envFile, "env", consts.DefaultEnvFile, "dotenv file with MNEMONIC, CHAIN_ID and RPC_URL")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", consts.DefaultConfigFile, "project file path")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "Increase verbosity level (-v, -vv)")
}
