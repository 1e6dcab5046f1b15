package tonman

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/ton/wallet"
)

// Signer sends internal messages from a TON wallet
type Signer interface {
	Address() string
	WalletAddress() *address.Address
	// Send submits msg and waits for the wallet transaction, returning its hash
	Send(ctx context.Context, msg *wallet.Message) (string, error)
}

// WalletSigner is a Signer backed by a V4R2 wallet
type WalletSigner struct {
	w *wallet.Wallet
}

// NewWalletSigner opens the wallet of a mnemonic on the adapter's liteserver connection
func (c *Client) NewWalletSigner(mnemonic string) (*WalletSigner, error) {
	lite, ok := c.api.(*liteAPI)
	if !ok {
		return nil, errors.New("wallet signer needs a liteserver connection")
	}
	w, err := wallet.FromSeed(lite.api, strings.Fields(mnemonic), wallet.V4R2)
	if err != nil {
		return nil, err
	}
	return &WalletSigner{w: w}, nil
}

// Address returns the bounceable wallet address
func (s *WalletSigner) Address() string {
	return s.w.WalletAddress().String()
}

// WalletAddress returns the wallet address
func (s *WalletSigner) WalletAddress() *address.Address {
	return s.w.WalletAddress()
}

// Send submits msg and waits for the wallet transaction
func (s *WalletSigner) Send(ctx context.Context, msg *wallet.Message) (string, error) {
	tx, _, err := s.w.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(tx.Hash), nil
}
