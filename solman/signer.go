package solman

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Signer signs Solana transactions
type Signer interface {
	Address() string
	PublicKey() solana.PublicKey
	SignTransaction(tx *solana.Transaction) error
}

// KeySigner is a Signer backed by an ed25519 key
type KeySigner struct {
	key solana.PrivateKey
}

// NewKeySigner parses a base58 encoded 64 byte secret key
func NewKeySigner(secret string) (*KeySigner, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, errors.Wrap(err, "solana key")
	}
	return &KeySigner{key: key}, nil
}

// Address returns the base58 public key
func (s *KeySigner) Address() string {
	return s.key.PublicKey().String()
}

// PublicKey returns the public key
func (s *KeySigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// SignTransaction adds the fee payer signature to tx
func (s *KeySigner) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	})
	return err
}
