package stellarman

import (
	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// Signer signs Stellar transactions
type Signer interface {
	Address() string
	SignTx(tx *txnbuild.Transaction, passphrase string) (*txnbuild.Transaction, error)
}

// KeySigner is a Signer backed by an "S..." secret seed
type KeySigner struct {
	kp *keypair.Full
}

// NewKeySigner parses a secret seed
func NewKeySigner(seed string) (*KeySigner, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return nil, errors.Wrap(err, "stellar seed")
	}
	return &KeySigner{kp: kp}, nil
}

// Address returns the "G..." account id
func (s *KeySigner) Address() string {
	return s.kp.Address()
}

// SignTx returns tx with the signer's signature attached
func (s *KeySigner) SignTx(tx *txnbuild.Transaction, passphrase string) (*txnbuild.Transaction, error) {
	return tx.Sign(passphrase, s.kp)
}
