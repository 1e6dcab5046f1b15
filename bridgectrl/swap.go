package bridgectrl

import (
	"context"
	"errors"
	"math/big"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/near"
	"github.com/omnibridge/omnibridge-service/pricing"
)

// SwapResult is the outcome of a swap executed on the ledger
type SwapResult struct {
	TxHash    string
	AmountIn  *big.Int
	AmountOut *big.Int
}

// SwapToken exchanges amount of intentFrom for intentTo inside the ledger. The solver quote
// and the user token_diff intent are submitted in a single execute_intents call.
func (bc *BridgeController) SwapToken(ctx context.Context, intentFrom, intentTo string, amount *big.Int, signer near.Signer) (*SwapResult, error) {
	if bc.quotes == nil {
		return nil, errors.New("no quote service configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("swap amount must be positive")
	}
	codec := bc.ledger.Codec()
	for _, id := range []string{intentFrom, intentTo} {
		if _, _, err := codec.FromIntentId(id); err != nil {
			return nil, err
		}
	}

	quote, err := bc.quotes.Quote(ctx, pricing.QuoteRequest{
		IntentFrom: intentFrom,
		IntentTo:   intentTo,
		AmountIn:   amount.String(),
		Account:    signer.AccountID(),
	})
	if err != nil {
		return nil, err
	}
	userIntent, err := bc.ledger.SignTokenDiffIntent(signer, intentFrom, amount, intentTo, quote.AmountOut)
	if err != nil {
		return nil, err
	}
	outcome, err := bc.ledger.ExecuteIntents(ctx, quote.Signed, userIntent)
	if err != nil {
		return nil, err
	}
	log.WithFields("account", signer.AccountID()).Infof("swapped %s %s for %s %s in %s",
		amount, intentFrom, quote.AmountOut, intentTo, outcome.Hash())
	return &SwapResult{TxHash: outcome.Hash(), AmountIn: amount, AmountOut: quote.AmountOut}, nil
}
