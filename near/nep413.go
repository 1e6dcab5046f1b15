package near

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"

	"github.com/near/borsh-go"
	"github.com/pkg/errors"
)

// nep413Tag is 2^31 + 413, prepended to every signed off-chain message
const nep413Tag uint32 = 2147484061

type nep413Payload struct {
	Message     string
	Nonce       [32]byte
	Recipient   string
	CallbackURL *string
}

// SignedMessagePayload is the JSON form of the signed NEP-413 payload
type SignedMessagePayload struct {
	Message   string `json:"message"`
	Nonce     string `json:"nonce"`
	Recipient string `json:"recipient"`
}

// SignedMessage is a NEP-413 signed message as accepted by the intents contract
type SignedMessage struct {
	Standard  string               `json:"standard"`
	Payload   SignedMessagePayload `json:"payload"`
	PublicKey string               `json:"public_key"`
	Signature string               `json:"signature"`
}

// RandomNonce returns a fresh 32 byte message nonce
func RandomNonce() ([32]byte, error) {
	var nonce [32]byte
	_, err := rand.Read(nonce[:])
	return nonce, err
}

// MessageHash returns the NEP-413 hash of a message
func MessageHash(message, recipient string, nonce [32]byte) ([]byte, error) {
	raw, err := borsh.Serialize(nep413Payload{Message: message, Nonce: nonce, Recipient: recipient})
	if err != nil {
		return nil, errors.Wrap(err, "serialize nep413 payload")
	}
	prefixed := make([]byte, 4, 4+len(raw)) //nolint:gomnd
	binary.LittleEndian.PutUint32(prefixed, nep413Tag)
	prefixed = append(prefixed, raw...)
	h := sha256.Sum256(prefixed)
	return h[:], nil
}

// SignMessage signs message for recipient following NEP-413
func SignMessage(signer Signer, message, recipient string, nonce [32]byte) (*SignedMessage, error) {
	hash, err := MessageHash(message, recipient, nonce)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return nil, errors.Wrap(err, "sign nep413 message")
	}
	return &SignedMessage{
		Standard: "nep413",
		Payload: SignedMessagePayload{
			Message:   message,
			Nonce:     base64.StdEncoding.EncodeToString(nonce[:]),
			Recipient: recipient,
		},
		PublicKey: EncodePublicKey(signer.PublicKey()),
		Signature: EncodeSignature(sig),
	}, nil
}
