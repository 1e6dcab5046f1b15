package mpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/rpcclient"
	"github.com/pkg/errors"
)

const (
	depositPath  = "/deposit/sign"
	withdrawPath = "/withdraw/sign"
	clearPath    = "/clear/sign"
)

// ErrEmptySignature is returned when the signer answers without a signature
var ErrEmptySignature = errors.New("mpc signer returned an empty signature")

type poster interface {
	PostJSON(ctx context.Context, path string, body interface{}, result interface{}) error
}

// Signature is a base58 encoded co-signature
type Signature string

// Bytes decodes the signature
func (s Signature) Bytes() ([]byte, error) {
	return base58.Decode(string(s))
}

func (s Signature) String() string {
	return string(s)
}

// DepositRequest asks for a co-signature crediting a source chain deposit on the ledger
type DepositRequest struct {
	Nonce    string `json:"nonce"`
	ChainID  int64  `json:"chain_id"`
	Token    string `json:"contract_id"`
	Receiver string `json:"receiver_id"`
	Amount   string `json:"amount"`
}

// WithdrawRequest asks for a co-signature releasing a ledger withdrawal on its destination chain
type WithdrawRequest struct {
	Nonce    string
	ChainID  int64
	Token    []byte
	Receiver []byte
	Amount   string
}

// ClearRequest asks for a co-signature removing a completed withdrawal from the locker
type ClearRequest struct {
	Nonce    string
	ChainID  int64
	Receiver []byte
}

type signRequest struct {
	MsgHash string      `json:"msg_hash"`
	Data    interface{} `json:"data"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

// Client is the HTTP client of the MPC co-signer
type Client struct {
	http poster
}

// NewClient creates a Client from cfg
func NewClient(cfg Config) (*Client, error) {
	c, err := rpcclient.New("mpc", cfg.RPC)
	if err != nil {
		return nil, err
	}
	return newClient(c), nil
}

func newClient(http poster) *Client {
	return &Client{http: http}
}

// SignDeposit returns the co-signature of a deposit
func (c *Client) SignDeposit(ctx context.Context, req DepositRequest) (Signature, error) {
	hash, err := DepositHash(req)
	if err != nil {
		return "", err
	}
	return c.sign(ctx, depositPath, hash, req)
}

// SignWithdraw returns the co-signature of a withdrawal
func (c *Client) SignWithdraw(ctx context.Context, req WithdrawRequest) (Signature, error) {
	hash, err := WithdrawHash(req)
	if err != nil {
		return "", err
	}
	return c.sign(ctx, withdrawPath, hash, map[string]interface{}{
		"nonce":       req.Nonce,
		"chain_id":    req.ChainID,
		"contract_id": base58.Encode(req.Token),
		"receiver_id": base58.Encode(req.Receiver),
		"amount":      req.Amount,
	})
}

// SignClear returns the co-signature of a locker clear
func (c *Client) SignClear(ctx context.Context, req ClearRequest) (Signature, error) {
	hash, err := ClearHash(req)
	if err != nil {
		return "", err
	}
	return c.sign(ctx, clearPath, hash, map[string]interface{}{
		"nonce":       req.Nonce,
		"chain_id":    req.ChainID,
		"receiver_id": base58.Encode(req.Receiver),
	})
}

func (c *Client) sign(ctx context.Context, path string, hash []byte, data interface{}) (Signature, error) {
	var resp signResponse
	err := c.http.PostJSON(ctx, path, signRequest{MsgHash: hex.EncodeToString(hash), Data: data}, &resp)
	if err != nil {
		return "", errors.Wrap(err, path)
	}
	if resp.Signature == "" {
		return "", errors.Wrap(ErrEmptySignature, path)
	}
	if _, err := base58.Decode(resp.Signature); err != nil {
		return "", errors.Wrapf(err, "%s: signature is not base58", path)
	}
	log.Debugf("mpc %s signed %x", path, hash)
	return Signature(resp.Signature), nil
}

// DepositHash is sha256 of the JSON encoded deposit
func DepositHash(req DepositRequest) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(raw)
	return h[:], nil
}

// WithdrawHash is keccak256 of the RLP list [nonce, chain, token, receiver, amount]
func WithdrawHash(req WithdrawRequest) ([]byte, error) {
	nonce, amount, err := parseUints(req.Nonce, req.Amount)
	if err != nil {
		return nil, err
	}
	raw, err := rlp.EncodeToBytes([]interface{}{nonce, chainBytes(req.ChainID), req.Token, req.Receiver, amount})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(raw), nil
}

// ClearHash is keccak256 of the RLP list [nonce, chain, receiver]
func ClearHash(req ClearRequest) ([]byte, error) {
	nonce, _, err := parseUints(req.Nonce, "0")
	if err != nil {
		return nil, err
	}
	raw, err := rlp.EncodeToBytes([]interface{}{nonce, chainBytes(req.ChainID), req.Receiver})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(raw), nil
}

// chain ids include negative sentinels, RLP only carries unsigned integers
func chainBytes(chain int64) []byte {
	return []byte(strconv.FormatInt(chain, 10)) //nolint:gomnd
}

func parseUints(nonce, amount string) (*big.Int, *big.Int, error) {
	n, ok := new(big.Int).SetString(nonce, 10) //nolint:gomnd
	if !ok || n.Sign() < 0 {
		return nil, nil, errors.Errorf("invalid nonce %q", nonce)
	}
	a, ok := new(big.Int).SetString(amount, 10) //nolint:gomnd
	if !ok || a.Sign() < 0 {
		return nil, nil, errors.Errorf("invalid amount %q", amount)
	}
	return n, a, nil
}
