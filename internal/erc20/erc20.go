package erc20

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	allowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	decimalsSelector  = crypto.Keccak256([]byte("decimals()"))[:4]
)

func RPCURLFromEnv() (string, error) {
	rpcURL := strings.TrimSpace(firstNonEmpty(os.Getenv("RPC_WS_URL"), os.Getenv("WSS_URL"), os.Getenv("RPC_URL")))
	if rpcURL == "" {
		return "", fmt.Errorf("RPC_WS_URL or WSS_URL required (set RPC_WS_URL in .env)")
	}
	if !strings.HasPrefix(rpcURL, "ws") && !strings.HasPrefix(rpcURL, "http") {
		return "", fmt.Errorf("RPC URL must be ws(s)://... or http(s)://..., got %q", rpcURL)
	}
	if strings.Contains(rpcURL, "YOUR_KEY") {
		return "", fmt.Errorf("RPC URL still contains placeholder YOUR_KEY. Set RPC_WS_URL to your provider URL")
	}
	return rpcURL, nil
}

func balanceOfData(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	return data
}

func allowanceData(owner, spender common.Address) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, allowanceSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	return data
}

func callUint256(ctx context.Context, caller ethereum.ContractCaller, to common.Address, data []byte) (*big.Int, error) {
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	return new(big.Int).SetBytes(out), nil
}

func BalanceOf(ctx context.Context, caller ethereum.ContractCaller, token, owner common.Address) (*big.Int, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address missing")
	}
	bal, err := callUint256(ctx, caller, token, balanceOfData(owner))
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", owner.Hex(), token.Hex(), err)
	}
	return bal, nil
}

func Allowance(ctx context.Context, caller ethereum.ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return nil, fmt.Errorf("owner and spender required")
	}
	a, err := callUint256(ctx, caller, token, allowanceData(owner, spender))
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s) on %s: %w", owner.Hex(), spender.Hex(), token.Hex(), err)
	}
	return a, nil
}

func Decimals(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (uint8, error) {
	d, err := callUint256(ctx, caller, token, decimalsSelector)
	if err != nil {
		return 0, fmt.Errorf("decimals() on %s: %w", token.Hex(), err)
	}
	if !d.IsUint64() || d.Uint64() > 255 {
		return 0, fmt.Errorf("decimals() on %s out of range: %s", token.Hex(), d)
	}
	return uint8(d.Uint64()), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
