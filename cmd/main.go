package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagCfg           = "cfg"
	flagNetwork       = "network"
	flagChain         = "chain"
	flagToken         = "token"
	flagAmount        = "amount"
	flagDecimals      = "decimals"
	flagAddress       = "address"
	flagReceiver      = "receiver"
	flagIntentAccount = "intent-account"
	flagNonce         = "nonce"
	flagFrom          = "from"
	flagTo            = "to"
	flagIntent        = "intent"
	flagClaim         = "claim"
	flagWithdraw      = "withdraw"
)

const (
	// App name
	appName = "omnibridge"
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "Move tokens between chains through the settlement ledger"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     flagCfg,
			Aliases:  []string{"c"},
			Usage:    "Configuration `FILE`",
			Required: false,
		},
		&cli.StringFlag{
			Name:     flagNetwork,
			Aliases:  []string{"n"},
			Usage:    "Network: mainnet, testnet. By default it uses mainnet",
			Required: false,
		},
	}
	chainFlag := &cli.StringFlag{Name: flagChain, Usage: "chain name or id (base, ton, 8453)", Required: true}
	tokenFlag := &cli.StringFlag{Name: flagToken, Usage: "token address in the chain native form", Value: "native"}
	amountFlag := &cli.StringFlag{Name: flagAmount, Usage: "amount in base units, or human units with --decimals", Required: true}
	decimalsFlag := &cli.IntFlag{Name: flagDecimals, Usage: "token decimals used to parse --amount"}
	nonceFlag := &cli.StringFlag{Name: flagNonce, Usage: "transfer nonce", Required: true}

	app.Commands = []*cli.Command{
		{
			Name:   "version",
			Usage:  "Application version and build",
			Action: versionCmd,
		},
		{
			Name:   "run",
			Usage:  "Run the pending transfers monitor and the metrics server",
			Action: runCmd,
		},
		{
			Name:   "balance",
			Usage:  "Token balance of an address on a chain",
			Action: balanceCmd,
			Flags: []cli.Flag{chainFlag, tokenFlag,
				&cli.StringFlag{Name: flagAddress, Usage: "owner address, defaults to the configured signer"}},
		},
		{
			Name:   "intents",
			Usage:  "Ledger balances of an intent account",
			Action: intentsCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagIntentAccount, Usage: "ledger account, defaults to Signers.NearAccount"},
				&cli.StringSliceFlag{Name: flagIntent, Usage: "intent id, or chain:token", Required: true},
			},
		},
		{
			Name:   "fee",
			Usage:  "Estimate the fee of a deposit, or of a withdraw claim with --withdraw",
			Action: feeCmd,
			Flags: []cli.Flag{chainFlag, tokenFlag, decimalsFlag,
				&cli.StringFlag{Name: flagAmount, Usage: "deposit amount", Value: "1"},
				&cli.StringFlag{Name: flagAddress, Usage: "sender or receiver, defaults to the configured signer"},
				&cli.BoolFlag{Name: flagWithdraw, Usage: "estimate the withdraw claim"}},
		},
		{
			Name:   "deposit",
			Usage:  "Deposit tokens on a chain and credit them on the ledger",
			Action: depositCmd,
			Flags: []cli.Flag{chainFlag, tokenFlag, amountFlag, decimalsFlag,
				&cli.StringFlag{Name: flagIntentAccount, Usage: "credited ledger account, defaults to Signers.NearAccount"}},
		},
		{
			Name:   "finalize",
			Usage:  "Finalize a stored deposit on the ledger",
			Action: finalizeCmd,
			Flags:  []cli.Flag{chainFlag, nonceFlag},
		},
		{
			Name:   "withdraw",
			Usage:  "Withdraw ledger tokens to a chain",
			Action: withdrawCmd,
			Flags: []cli.Flag{chainFlag, tokenFlag, amountFlag, decimalsFlag,
				&cli.StringFlag{Name: flagReceiver, Usage: "receiver, defaults to the configured signer of the chain"},
				&cli.BoolFlag{Name: flagClaim, Usage: "claim the withdrawal on the destination chain right away"}},
		},
		{
			Name:   "complete",
			Usage:  "Claim a stored signed withdrawal on its destination chain",
			Action: completeCmd,
			Flags:  []cli.Flag{chainFlag, nonceFlag},
		},
		{
			Name:   "clear",
			Usage:  "Clear the claimed withdrawals of a receiver from the ledger locker",
			Action: clearCmd,
			Flags: []cli.Flag{chainFlag,
				&cli.StringFlag{Name: flagReceiver, Usage: "receiver, defaults to the configured signer of the chain"}},
		},
		{
			Name:   "swap",
			Usage:  "Swap ledger tokens using a solver quote",
			Action: swapCmd,
			Flags: []cli.Flag{amountFlag, decimalsFlag,
				&cli.StringFlag{Name: flagFrom, Usage: "intent id, or chain:token", Required: true},
				&cli.StringFlag{Name: flagTo, Usage: "intent id, or chain:token", Required: true}},
		},
		{
			Name:   "pending",
			Usage:  "List the stored transfers that are not finished",
			Action: pendingCmd,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("\nError: %v\n", err)
		os.Exit(1)
	}
}
