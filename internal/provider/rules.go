package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/melih-ucgun/forgeguard/internal/config"
	"github.com/melih-ucgun/forgeguard/internal/core"
)

// ruleEnv is what `when` expressions and result templates see.
type ruleEnv struct {
	Method  string `expr:"method"`
	Params  []any  `expr:"params"`
	ChainID int64  `expr:"chainId"`
}

// Rule compiles a project file intercept rule. When the condition is false
// (or the rule has none and matches every call) the request is forwarded.
//
// The rendered result is used verbatim if it is valid JSON and sent as a
// JSON string otherwise, so `result: 0x1` yields "0x1".
func Rule(rule config.InterceptRule, chainID int64) (Handler, error) {
	var program *vm.Program
	if rule.When != "" {
		var err error
		program, err = expr.Compile(rule.When, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("intercept %s: invalid when %q: %w", rule.Method, rule.When, err)
		}
	}
	if err := core.CheckTemplate(rule.Method, rule.Result); err != nil {
		return nil, fmt.Errorf("intercept %s: invalid result template: %w", rule.Method, err)
	}

	return func(ctx context.Context, req *Request, next Provider) (json.RawMessage, error) {
		env := ruleEnv{Method: req.Method, Params: req.Params, ChainID: chainID}

		if program != nil {
			out, err := expr.Run(program, env)
			if err != nil {
				return nil, &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("intercept %s: %v", rule.Method, err)}
			}
			if matched, _ := out.(bool); !matched {
				return next.Request(ctx, req)
			}
		}

		rendered, err := core.ExecuteTemplate(rule.Method, rule.Result, env)
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("intercept %s: %v", rule.Method, err)}
		}
		rendered = strings.TrimSpace(rendered)
		if json.Valid([]byte(rendered)) {
			return json.RawMessage(rendered), nil
		}
		return json.Marshal(rendered)
	}, nil
}

// Options builds the interceptor options a network is configured with:
// chain id answers, the gas estimate multiplier, local web3_sha3 and the
// project's intercept rules layered on top.
func Options(cfg *config.Config, log core.Logger) ([]Option, error) {
	opts := []Option{
		WithLogger(log),
		WithHandler("eth_chainId", ChainID(cfg.ChainID)),
		WithHandler("net_version", NetVersion(cfg.ChainID)),
		WithHandler("web3_sha3", Keccak()),
	}
	if pct := cfg.Project.Network.GasMultiplierPct; pct > 0 && pct != 100 {
		opts = append(opts, WithHandler("eth_estimateGas", GasMultiplier(pct)))
	}

	for _, r := range cfg.Project.Network.Intercept {
		h, err := Rule(r, cfg.ChainID)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithHandler(r.Method, h))
	}
	return opts, nil
}
