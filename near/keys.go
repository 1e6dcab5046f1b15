package near

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const ed25519Prefix = "ed25519:"

// KeyPair is an ed25519 NEAR access key
type KeyPair struct {
	priv ed25519.PrivateKey
}

// ParseKeyPair accepts "ed25519:<base58>" holding either the 64 byte secret key or the 32 byte seed
func ParseKeyPair(s string) (*KeyPair, error) {
	raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if err != nil {
		return nil, fmt.Errorf("invalid near secret key: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return &KeyPair{priv: ed25519.PrivateKey(raw)}, nil
	case ed25519.SeedSize:
		return &KeyPair{priv: ed25519.NewKeyFromSeed(raw)}, nil
	}
	return nil, fmt.Errorf("invalid near secret key length %d", len(raw))
}

// NewKeyPairFromSeed derives a key pair from a 32 byte seed
func NewKeyPairFromSeed(seed []byte) *KeyPair {
	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}
}

// PublicKey returns the raw public key
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// PublicKeyString returns the public key in "ed25519:<base58>" form
func (k *KeyPair) PublicKeyString() string {
	return ed25519Prefix + base58.Encode(k.PublicKey())
}

// Sign signs msg with the private key
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Signer signs NEAR transactions and intents on behalf of an account
type Signer interface {
	AccountID() string
	PublicKey() ed25519.PublicKey
	Sign(msg []byte) ([]byte, error)
}

// Account is a Signer backed by a local key pair
type Account struct {
	ID  string
	Key *KeyPair
}

// NewAccount returns an Account from an account id and an "ed25519:..." secret key
func NewAccount(accountID, secretKey string) (*Account, error) {
	key, err := ParseKeyPair(secretKey)
	if err != nil {
		return nil, err
	}
	return &Account{ID: accountID, Key: key}, nil
}

// AccountID implements Signer
func (a *Account) AccountID() string { return a.ID }

// Address makes Account usable where a chain-agnostic signer is expected
func (a *Account) Address() string { return a.ID }

// PublicKey implements Signer
func (a *Account) PublicKey() ed25519.PublicKey { return a.Key.PublicKey() }

// Sign implements Signer
func (a *Account) Sign(msg []byte) ([]byte, error) { return a.Key.Sign(msg), nil }

// EncodePublicKey formats a public key as "ed25519:<base58>"
func EncodePublicKey(pk ed25519.PublicKey) string {
	return ed25519Prefix + base58.Encode(pk)
}

// EncodeSignature formats a signature as "ed25519:<base58>"
func EncodeSignature(sig []byte) string {
	return ed25519Prefix + base58.Encode(sig)
}
