package swap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const routerABIJSON = `[
  {"inputs":[
    {"internalType":"uint256","name":"amountIn","type":"uint256"},
    {"internalType":"uint256","name":"amountOutMin","type":"uint256"},
    {"internalType":"address[]","name":"path","type":"address[]"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"uint256","name":"deadline","type":"uint256"}
  ],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

const erc20ApproveABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"spender","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"}
  ],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var (
	routerABI  = mustParseABI(routerABIJSON)
	approveABI = mustParseABI(erc20ApproveABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// packSwap encodes swapExactTokensForTokens with amountOutMin = 0: the swap
// accepts any price.
func packSwap(amountIn *big.Int, tokenIn, tokenOut, recipient common.Address, deadline int64) ([]byte, error) {
	data, err := routerABI.Pack("swapExactTokensForTokens",
		amountIn,
		big.NewInt(0),
		[]common.Address{tokenIn, tokenOut},
		recipient,
		big.NewInt(deadline),
	)
	if err != nil {
		return nil, fmt.Errorf("pack swap: %w", err)
	}
	return data, nil
}

func packApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := approveABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}
