package tronman

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/omnibridge/omnibridge-service/omni"
)

// Signer signs Tron transaction ids
type Signer interface {
	Address() string
	SignHash(hash []byte) ([]byte, error)
}

// KeySigner is a Signer backed by a local secp256k1 key
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewKeySigner returns a signer for a hex private key
func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}
	return &KeySigner{key: key, address: omni.TronAddress(crypto.PubkeyToAddress(key.PublicKey).Bytes())}, nil
}

// Address returns the base58 "T..." address
func (s *KeySigner) Address() string {
	return s.address
}

// SignHash returns the 65 byte recoverable signature of hash
func (s *KeySigner) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, s.key)
}
