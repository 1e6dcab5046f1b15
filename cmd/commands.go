package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"

	"github.com/omnibridge/omnibridge-service/claimtxman"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/server"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/urfave/cli/v2"
)

func parseChain(s string) (omni.Network, error) {
	chain, ok := omni.ParseNetwork(s)
	if !ok {
		return 0, fmt.Errorf("unknown chain %q: %w", s, gerror.ErrUnsupportedChain)
	}
	return chain, nil
}

func parseAmount(c *cli.Context) (*big.Int, error) {
	raw := c.String(flagAmount)
	if d := c.Int(flagDecimals); d > 0 {
		return utils.ParseAmount(raw, int32(d))
	}
	amount, ok := new(big.Int).SetString(raw, 10) //nolint:gomnd
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q, pass base units or set --%s", raw, flagDecimals)
	}
	return amount, nil
}

func chainFlagValue(c *cli.Context) (omni.Network, error) {
	return parseChain(c.String(flagChain))
}

// addressOrSigner returns the flag value, or the address of the configured signer of chain
func (a *bridgeApp) addressOrSigner(c *cli.Context, flag string, chain omni.Network) (string, error) {
	if v := c.String(flag); v != "" {
		return v, nil
	}
	s, err := a.chainSigner(chain)
	if err != nil {
		return "", err
	}
	return s.Address(), nil
}

func runCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	go metrics.StartMetricsHttpServer(app.cfg.Metrics)
	if app.cfg.Server.Enabled {
		if err := server.RunServer(app.cfg.Server, app.storage); err != nil {
			log.Error(err)
			return err
		}
	}

	if !app.cfg.ClaimTxManager.Enabled {
		log.Info("pending transfers monitor disabled")
	} else {
		tm, err := claimtxman.NewClaimTxManager(c.Context, app.cfg.ClaimTxManager, app.bridge, app.storage)
		if err != nil {
			log.Error(err)
			return err
		}
		go tm.Start()
		defer tm.Stop()
	}

	// Wait for an in interrupt.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	<-ch
	return nil
}

func balanceCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	chain, err := chainFlagValue(c)
	if err != nil {
		return err
	}
	address, err := app.addressOrSigner(c, flagAddress, chain)
	if err != nil {
		return err
	}
	balance, err := app.bridge.GetTokenBalance(c.Context, chain, c.String(flagToken), address)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s on %s: %s\n", address, c.String(flagToken), chain, balance)
	return nil
}

func intentsCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	account := c.String(flagIntentAccount)
	if account == "" {
		account = app.cfg.Signers.NearAccount
	}
	ids := make([]string, 0, len(c.StringSlice(flagIntent)))
	for _, s := range c.StringSlice(flagIntent) {
		id, err := app.intentID(s)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	balances, err := app.bridge.GetIntentBalances(c.Context, account, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Printf("%s %s\n", id, balances[id])
	}
	return nil
}

func feeCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	chain, err := chainFlagValue(c)
	if err != nil {
		return err
	}
	address, err := app.addressOrSigner(c, flagAddress, chain)
	if err != nil {
		return err
	}
	token := c.String(flagToken)
	if c.Bool(flagWithdraw) {
		f, err := app.bridge.EstimateWithdrawFee(c.Context, chain, address, token)
		if err != nil {
			return err
		}
		fmt.Printf("withdraw fee on %s: %s, needs %s native\n", chain, f.Fee(), f.NeedNative())
		return nil
	}
	amount, err := parseAmount(c)
	if err != nil {
		return err
	}
	f, err := app.bridge.EstimateDepositFee(c.Context, chain, address, token, amount)
	if err != nil {
		return err
	}
	fmt.Printf("deposit fee on %s: %s, needs %s native\n", chain, f.Fee(), f.NeedNative())
	return nil
}

func depositCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	chain, err := chainFlagValue(c)
	if err != nil {
		return err
	}
	amount, err := parseAmount(c)
	if err != nil {
		return err
	}
	signer, err := app.chainSigner(chain)
	if err != nil {
		return err
	}
	intentAccount := c.String(flagIntentAccount)
	if intentAccount == "" {
		intentAccount = app.cfg.Signers.NearAccount
	}
	if intentAccount == "" {
		return errors.New("no intent account, set --intent-account or Signers.NearAccount")
	}
	ctx := utils.WithTraceID(c.Context)
	deposit, outcome, err := app.bridge.DepositToken(ctx, chain, c.String(flagToken), amount, signer, intentAccount)
	if deposit != nil {
		fmt.Printf("deposit %s on %s: tx %s, status %s\n", deposit.Nonce, chain, deposit.TxHash, deposit.Status)
	}
	if err != nil {
		return err
	}
	fmt.Printf("ledger: %s\n", outcome)
	return nil
}

func finalizeCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	chain, err := chainFlagValue(c)
	if err != nil {
		return err
	}
	deposit, err := app.storage.GetDeposit(c.Context, chain, c.String(flagNonce))
	if err != nil {
		return err
	}
	signer, err := app.chainSigner(chain)
	if err != nil {
		log.Warnf("finalizing without source chain cleanup: %v", err)
		signer = nil
	}
	outcome, err := app.bridge.FinalizeDeposit(utils.WithTraceID(c.Context), deposit, signer)
	if err != nil {
		return err
	}
	fmt.Printf("deposit %s on %s: %s, status %s\n", deposit.Nonce, chain, outcome, deposit.Status)
	return nil
}

func withdrawCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	chain, err := chainFlagValue(c)
	if err != nil {
		return err
	}
	amount, err := parseAmount(c)
	if err != nil {
		return err
	}
	receiver, err := app.addressOrSigner(c, flagReceiver, chain)
	if err != nil {
		return err
	}
	intent, err := app.intentSigner()
	if err != nil {
		return err
	}
	ctx := utils.WithTraceID(c.Context)
	w, err := app.bridge.WithdrawToken(ctx, chain, c.String(flagToken), amount, receiver, intent)
	if err != nil {
		if w != nil && w.TxHash != "" {
			fmt.Printf("withdraw to %s on %s stored unresolved: ledger tx %s, status %s\n", receiver, chain, w.TxHash, w.Status)
		}
		return err
	}
	fmt.Printf("withdraw %s to %s on %s: status %s\n", w.Nonce, receiver, chain, w.Status)
	if w.Completed || !c.Bool(flagClaim) {
		return nil
	}
	return app.complete(ctx, w)
}

func completeCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	chain, err := chainFlagValue(c)
	if err != nil {
		return err
	}
	w, err := app.storage.GetWithdraw(c.Context, chain, c.String(flagNonce))
	if err != nil {
		return err
	}
	return app.complete(utils.WithTraceID(c.Context), w)
}

func (a *bridgeApp) complete(ctx context.Context, w *models.PendingWithdraw) error {
	signer, err := a.chainSigner(w.Chain)
	if err != nil {
		return err
	}
	hash, err := a.bridge.CompleteWithdraw(ctx, w, signer)
	if errors.Is(err, gerror.ErrAlreadyClaimed) {
		fmt.Printf("withdraw %s on %s was already claimed\n", w.Nonce, w.Chain)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("withdraw %s claimed on %s in %s\n", w.Nonce, w.Chain, hash)
	return nil
}

func clearCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	chain, err := chainFlagValue(c)
	if err != nil {
		return err
	}
	receiver, err := app.addressOrSigner(c, flagReceiver, chain)
	if err != nil {
		return err
	}
	n, err := app.bridge.ClearLocker(utils.WithTraceID(c.Context), chain, receiver)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d withdrawals of %s on %s\n", n, receiver, chain)
	return nil
}

func swapCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	from, err := app.intentID(c.String(flagFrom))
	if err != nil {
		return err
	}
	to, err := app.intentID(c.String(flagTo))
	if err != nil {
		return err
	}
	amount, err := parseAmount(c)
	if err != nil {
		return err
	}
	intent, err := app.intentSigner()
	if err != nil {
		return err
	}
	res, err := app.bridge.SwapToken(utils.WithTraceID(c.Context), from, to, amount, intent)
	if err != nil {
		return err
	}
	fmt.Printf("swapped %s %s for %s %s in %s\n", res.AmountIn, from, res.AmountOut, to, res.TxHash)
	return nil
}

func pendingCmd(c *cli.Context) error {
	app, err := newBridgeApp(c)
	if err != nil {
		return err
	}
	deposits, err := app.storage.GetPendingDeposits(c.Context, 0)
	if err != nil {
		return err
	}
	withdraws, err := app.storage.GetPendingWithdraws(c.Context, 0, "")
	if err != nil {
		return err
	}
	fmt.Printf("%d pending deposits\n", len(deposits))
	for _, d := range deposits {
		fmt.Printf("  %-10s nonce %-12s %s %s -> %s [%s]\n", d.Chain, d.Nonce, d.Amount, d.Token, d.IntentAccount, d.Status)
	}
	fmt.Printf("%d pending withdraws\n", len(withdraws))
	for _, w := range withdraws {
		fmt.Printf("  %-10s nonce %-12s %s %s -> %s [%s]\n", w.Chain, w.Nonce, w.Amount, w.Token, w.Receiver, w.Status)
	}
	return nil
}
