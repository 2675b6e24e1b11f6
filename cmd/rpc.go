package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/melih-ucgun/forgeguard/internal/network"
	"github.com/melih-ucgun/forgeguard/internal/provider"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc <method> [json-params]",
	Short: "Send one JSON-RPC request through the intercepted provider",
	Example: `  forgeguard rpc eth_chainId
  forgeguard rpc eth_getBalance '["0x8ba1f109551bd432803012645ac136ddd64dba72", "latest"]'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params []any
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				return fmt.Errorf("params must be a JSON array: %w", err)
			}
		}

		hook, err := network.InterceptHook(appConfig, logger, appMetrics)
		if err != nil {
			return err
		}

		reg := network.NewRegistry(logger)
		defer reg.Close()
		if err := reg.ExtendProvider(hook); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		nc, err := reg.Init(ctx, appConfig)
		if err != nil {
			return err
		}

		raw, err := nc.Provider.Request(ctx, provider.NewRequest(args[0], params...))
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			out.Reset()
			out.Write(raw)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rpcCmd)
}
