package provider

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ChainID answers eth_chainId locally with id as a hex quantity.
func ChainID(id int64) Handler {
	res := mustQuantity(big.NewInt(id))
	return func(context.Context, *Request, Provider) (json.RawMessage, error) {
		return res, nil
	}
}

// NetVersion answers net_version locally with id in decimal.
func NetVersion(id int64) Handler {
	res, _ := json.Marshal(strconv.FormatInt(id, 10))
	return func(context.Context, *Request, Provider) (json.RawMessage, error) {
		return res, nil
	}
}

// GasMultiplier forwards eth_estimateGas and scales the estimate by pct
// percent. Errors from the node are returned untouched.
func GasMultiplier(pct int) Handler {
	return func(ctx context.Context, req *Request, next Provider) (json.RawMessage, error) {
		raw, err := next.Request(ctx, req)
		if err != nil {
			return nil, err
		}
		gas, err := parseQuantity(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", req.Method, err)
		}
		gas.Mul(gas, big.NewInt(int64(pct)))
		gas.Quo(gas, big.NewInt(100))
		return mustQuantity(gas), nil
	}
}

// Keccak answers web3_sha3 locally: Keccak-256 of the hex encoded params[0].
func Keccak() Handler {
	return func(_ context.Context, req *Request, _ Provider) (json.RawMessage, error) {
		if len(req.Params) != 1 {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "web3_sha3 expects exactly one param"}
		}
		s, ok := req.Params[0].(string)
		if !ok || !strings.HasPrefix(s, "0x") {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "web3_sha3 param must be 0x-prefixed hex"}
		}
		data, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}

		h := sha3.NewLegacyKeccak256()
		h.Write(data)
		return json.Marshal("0x" + hex.EncodeToString(h.Sum(nil)))
	}
}

func parseQuantity(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected hex quantity, got %s", raw)
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == s || digits == "" {
		return nil, fmt.Errorf("expected hex quantity, got %q", s)
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("expected hex quantity, got %q", s)
	}
	return n, nil
}

func mustQuantity(n *big.Int) json.RawMessage {
	res, _ := json.Marshal("0x" + n.Text(16))
	return res
}
