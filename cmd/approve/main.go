package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"launch-snipe/internal/chain"
	"launch-snipe/internal/dotenv"
	"launch-snipe/internal/erc20"
	"launch-snipe/internal/ethutil"
	"launch-snipe/internal/swap"
)

func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var tokenFlag string
	var spenderFlag string
	var amountFlag string
	var unlimited bool
	var execute bool
	var wait bool

	flag.StringVar(&tokenFlag, "token", "", "Token to approve (default TOKEN_IN)")
	flag.StringVar(&spenderFlag, "spender", "", "Spender (default ROUTER_ADDRESS/UNISWAP_ROUTER_ADDRESS)")
	flag.StringVar(&amountFlag, "amount", "", "Allowance to set, in token units (default AMOUNT_IN)")
	flag.BoolVar(&unlimited, "unlimited", false, "Approve max(uint256)")
	flag.BoolVar(&execute, "execute", false, "Send the approval when the allowance is too low (default: only report)")
	flag.BoolVar(&wait, "wait", true, "Wait for the approval receipt")
	flag.Parse()

	rpcURL, err := erc20.RPCURLFromEnv()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	privateKeyHex := strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	if privateKeyHex == "" {
		log.Fatalf("[fatal] private key required (set PRIVATE_KEY in .env)")
	}
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		log.Fatalf("[fatal] invalid private key: %v", err)
	}

	token, err := ethutil.ParseAddress(firstNonEmpty(tokenFlag, os.Getenv("TOKEN_IN")))
	if err != nil {
		log.Fatalf("[fatal] token: %v", err)
	}
	spender, err := ethutil.ParseAddress(firstNonEmpty(spenderFlag, os.Getenv("ROUTER_ADDRESS"), os.Getenv("UNISWAP_ROUTER_ADDRESS")))
	if err != nil {
		log.Fatalf("[fatal] spender: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	client, err := chain.Dial(dialCtx, chain.Config{URL: rpcURL, Key: privateKey})
	dialCancel()
	if err != nil {
		log.Fatalf("[fatal] dial: %v", err)
	}
	defer client.Close()
	owner := client.From()

	callCtx, callCancel := context.WithTimeout(ctx, 12*time.Second)
	defer callCancel()
	decimals, err := erc20.Decimals(callCtx, client, token)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	balance, err := erc20.BalanceOf(callCtx, client, token, owner)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	allowance, err := erc20.Allowance(callCtx, client, token, owner, spender)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	fmt.Printf("owner:     %s\n", owner.Hex())
	fmt.Printf("token:     %s (decimals=%d)\n", token.Hex(), decimals)
	fmt.Printf("spender:   %s\n", spender.Hex())
	fmt.Printf("balance:   %s\n", erc20.FormatUnits(balance, decimals))
	fmt.Printf("allowance: %s\n", formatAllowance(allowance, decimals))

	var want *big.Int
	if unlimited {
		want = new(big.Int).Set(math.MaxBig256)
	} else {
		want, err = erc20.ParseUnits(firstNonEmpty(amountFlag, os.Getenv("AMOUNT_IN"), "0.01"), decimals)
		if err != nil {
			log.Fatalf("[fatal] amount: %v", err)
		}
	}

	if allowance.Cmp(want) >= 0 {
		fmt.Printf("allowance sufficient for %s\n", formatAllowance(want, decimals))
		return
	}
	if !execute {
		fmt.Printf("allowance below %s; rerun with --execute to approve\n", formatAllowance(want, decimals))
		return
	}

	txHash, err := swap.Approve(ctx, client, token, spender, want, chain.GasParams{})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	fmt.Printf("approve tx: %s\n", txHash.Hex())
	if !wait {
		return
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Minute)
	defer waitCancel()
	receipt, err := client.WaitMined(waitCtx, txHash)
	if err != nil {
		log.Fatalf("[fatal] wait for receipt: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Fatalf("[fatal] approve tx %s reverted (block %s)", txHash.Hex(), receipt.BlockNumber)
	}
	fmt.Printf("approved in block %s (gas used %d)\n", receipt.BlockNumber, receipt.GasUsed)
}

func formatAllowance(v *big.Int, decimals uint8) string {
	if v.Cmp(math.MaxBig256) == 0 {
		return "unlimited"
	}
	return erc20.FormatUnits(v, decimals)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
