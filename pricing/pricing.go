package pricing

import (
	"context"
	"math/big"

	"github.com/omnibridge/omnibridge-service/near"
	"github.com/omnibridge/omnibridge-service/rpcclient"
	"github.com/pkg/errors"
)

const quotePath = "/quote"

var (
	// ErrNoQuote is returned when the solver cannot fill the swap
	ErrNoQuote = errors.New("no quote available")
)

// Config of the quote service
type Config struct {
	RPC rpcclient.Config `mapstructure:"RPC"`
}

type poster interface {
	PostJSON(ctx context.Context, path string, body interface{}, result interface{}) error
}

// QuoteRequest asks a solver for amountIn of IntentFrom in IntentTo
type QuoteRequest struct {
	IntentFrom string `json:"intent_from"`
	IntentTo   string `json:"intent_to"`
	AmountIn   string `json:"amount"`
	Account    string `json:"account_id"`
}

// Quote is a solver offer: its signed counterpart intent and the amount the user receives
type Quote struct {
	AmountOut *big.Int
	Signed    *near.SignedMessage
}

type quoteResponse struct {
	AmountOut string              `json:"amount_out"`
	Quote     *near.SignedMessage `json:"quote"`
}

// Client of the quote service
type Client struct {
	http poster
}

// NewClient creates a Client from cfg
func NewClient(cfg Config) (*Client, error) {
	c, err := rpcclient.New("pricing", cfg.RPC)
	if err != nil {
		return nil, err
	}
	return &Client{http: c}, nil
}

// Quote asks for a swap quote
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var resp quoteResponse
	if err := c.http.PostJSON(ctx, quotePath, req, &resp); err != nil {
		return nil, errors.Wrap(err, "quote")
	}
	out, ok := new(big.Int).SetString(resp.AmountOut, 10) //nolint:gomnd
	if !ok || out.Sign() <= 0 || resp.Quote == nil {
		return nil, errors.Wrapf(ErrNoQuote, "%s -> %s", req.IntentFrom, req.IntentTo)
	}
	return &Quote{AmountOut: out, Signed: resp.Quote}, nil
}
