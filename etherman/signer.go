package etherman

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/omnibridge/omnibridge-service/config/types"
)

// Signer signs EVM transactions
type Signer interface {
	Address() string
	TransactOpts() *bind.TransactOpts
}

// KeySigner is a Signer backed by a local private key
type KeySigner struct {
	opts *bind.TransactOpts
}

// NewKeySigner returns a signer for a hex private key
func NewKeySigner(hexKey string, chainID int64) (*KeySigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}
	return newKeySigner(privateKey, chainID)
}

// NewKeySignerFromKeystore returns a signer for an encrypted keystore file
func NewKeySignerFromKeystore(ks types.KeystoreFileConfig, chainID int64) (*KeySigner, error) {
	keystoreEncrypted, err := os.ReadFile(filepath.Clean(ks.Path))
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(keystoreEncrypted, ks.Password)
	if err != nil {
		return nil, err
	}
	return newKeySigner(key.PrivateKey, chainID)
}

func newKeySigner(key *ecdsa.PrivateKey, chainID int64) (*KeySigner, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, err
	}
	return &KeySigner{opts: opts}, nil
}

// Address returns the checksummed signer address
func (s *KeySigner) Address() string {
	return s.opts.From.Hex()
}

// TransactOpts returns the signing options
func (s *KeySigner) TransactOpts() *bind.TransactOpts {
	return s.opts
}
