package near

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/omnibridge/omnibridge-service/rpcclient"
	"github.com/pkg/errors"
)

const finalityFinal = "final"

// Config of the NEAR JSON-RPC client
type Config struct {
	RPC rpcclient.Config `mapstructure:"RPC"`
	// TxPoll is the policy used to wait for a transaction after a broadcast timeout
	TxPoll retry.Policy `mapstructure:"TxPoll"`
}

// Client is a NEAR JSON-RPC client
type Client struct {
	rpc    jsonRPCCaller
	txPoll retry.Policy

	mu     sync.Mutex
	nonces map[string]uint64
	locks  map[string]*sync.Mutex
}

type jsonRPCCaller interface {
	CallJSONRPC(ctx context.Context, method string, params interface{}, result interface{}) error
}

// NewClient creates a NEAR client over the configured endpoint pool
func NewClient(cfg Config) (*Client, error) {
	rpc, err := rpcclient.New("near", cfg.RPC)
	if err != nil {
		return nil, err
	}
	return newClient(rpc, cfg.TxPoll), nil
}

func newClient(rpc jsonRPCCaller, txPoll retry.Policy) *Client {
	if txPoll.Attempts <= 0 {
		txPoll = retry.NewPolicy(20, 3*time.Second) //nolint:gomnd
	}
	return &Client{
		rpc:    rpc,
		txPoll: txPoll,
		nonces: make(map[string]uint64),
		locks:  make(map[string]*sync.Mutex),
	}
}

type callFunctionResult struct {
	Result      []int    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHeight uint64   `json:"block_height"`
	Error       string   `json:"error"`
}

// ViewFunction calls a read-only contract method with JSON args and decodes its JSON result
func (c *Client) ViewFunction(ctx context.Context, contract, method string, args interface{}, result interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(err, "marshal view args")
	}
	params := map[string]interface{}{
		"request_type": "call_function",
		"finality":     finalityFinal,
		"account_id":   contract,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(rawArgs),
	}
	var res callFunctionResult
	if err := c.rpc.CallJSONRPC(ctx, "query", params, &res); err != nil {
		return errors.Wrapf(err, "view %s.%s", contract, method)
	}
	if res.Error != "" {
		return errors.Errorf("view %s.%s: %s", contract, method, res.Error)
	}
	raw := make([]byte, len(res.Result))
	for i, v := range res.Result {
		raw[i] = byte(v)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return errors.Wrapf(err, "decode %s.%s result %q", contract, method, string(raw))
	}
	return nil
}

type accessKeyView struct {
	Nonce     uint64 `json:"nonce"`
	BlockHash string `json:"block_hash"`
	Error     string `json:"error"`
}

func (c *Client) viewAccessKey(ctx context.Context, accountID, publicKey string) (*accessKeyView, error) {
	params := map[string]interface{}{
		"request_type": "view_access_key",
		"finality":     finalityFinal,
		"account_id":   accountID,
		"public_key":   publicKey,
	}
	var res accessKeyView
	if err := c.rpc.CallJSONRPC(ctx, "query", params, &res); err != nil {
		return nil, errors.Wrapf(err, "view access key of %s", accountID)
	}
	if res.Error != "" {
		return nil, errors.Errorf("view access key of %s: %s", accountID, res.Error)
	}
	return &res, nil
}

func (c *Client) accountLock(accountID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[accountID] = l
	}
	return l
}

// SignAndSend builds, signs and broadcasts a transaction, waiting for its final outcome.
// Transactions of the same signer are serialized so access key nonces never collide.
func (c *Client) SignAndSend(ctx context.Context, signer Signer, receiverID string, actions []Action) (*FinalExecutionOutcome, error) {
	lock := c.accountLock(signer.AccountID())
	lock.Lock()
	defer lock.Unlock()

	publicKey := EncodePublicKey(signer.PublicKey())
	key, err := c.viewAccessKey(ctx, signer.AccountID(), publicKey)
	if err != nil {
		return nil, err
	}
	blockHash, err := base58.Decode(key.BlockHash)
	if err != nil || len(blockHash) != 32 { //nolint:gomnd
		return nil, errors.Errorf("invalid block hash %q", key.BlockHash)
	}

	c.mu.Lock()
	nonce := key.Nonce + 1
	if last := c.nonces[signer.AccountID()]; last >= nonce {
		nonce = last + 1
	}
	c.nonces[signer.AccountID()] = nonce
	c.mu.Unlock()

	tx := Transaction{
		SignerID:   signer.AccountID(),
		Nonce:      nonce,
		ReceiverID: receiverID,
		Actions:    actions,
	}
	tx.PublicKey.KeyType = keyTypeED25519
	copy(tx.PublicKey.Data[:], signer.PublicKey())
	copy(tx.BlockHash[:], blockHash)

	signed, hash, err := signTransaction(signer, tx)
	if err != nil {
		return nil, err
	}
	logger := log.WithFields("signer", signer.AccountID(), "receiver", receiverID, "txHash", hash)
	logger.Debugf("broadcasting near transaction with %d actions", len(actions))

	var outcome FinalExecutionOutcome
	err = c.rpc.CallJSONRPC(ctx, "broadcast_tx_commit", []string{base64.StdEncoding.EncodeToString(signed)}, &outcome)
	if err != nil {
		if !isTimeout(err) {
			return nil, errors.Wrap(err, "broadcast_tx_commit")
		}
		logger.Warnf("broadcast timed out, polling transaction status")
		res, pollErr := c.waitTransaction(ctx, hash, signer.AccountID())
		if pollErr != nil {
			return nil, pollErr
		}
		outcome = *res
	}
	if outcome.Transaction.Hash == "" {
		outcome.Transaction.Hash = hash
	}
	return &outcome, nil
}

// TransactionStatus returns the final outcome of a known transaction
func (c *Client) TransactionStatus(ctx context.Context, hash, senderID string) (*FinalExecutionOutcome, error) {
	var outcome FinalExecutionOutcome
	if err := c.rpc.CallJSONRPC(ctx, "tx", []string{hash, senderID}, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *Client) waitTransaction(ctx context.Context, hash, senderID string) (*FinalExecutionOutcome, error) {
	var outcome *FinalExecutionOutcome
	err := retry.Poll(ctx, c.txPoll, func(ctx context.Context) (bool, error) {
		res, err := c.TransactionStatus(ctx, hash, senderID)
		if err != nil {
			if isUnknownTransaction(err) || isTimeout(err) {
				return false, nil
			}
			return false, retry.Permanent(err)
		}
		outcome = res
		return true, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "wait near transaction %s", hash)
	}
	return outcome, nil
}

func signTransaction(signer Signer, tx Transaction) ([]byte, string, error) {
	raw, err := borsh.Serialize(tx)
	if err != nil {
		return nil, "", errors.Wrap(err, "serialize transaction")
	}
	hash := sha256.Sum256(raw)
	sig, err := signer.Sign(hash[:])
	if err != nil {
		return nil, "", errors.Wrap(err, "sign transaction")
	}
	if len(sig) != 64 { //nolint:gomnd
		return nil, "", fmt.Errorf("unexpected signature length %d", len(sig))
	}
	signed := SignedTransaction{Transaction: tx}
	signed.Signature.KeyType = keyTypeED25519
	copy(signed.Signature.Data[:], sig)
	out, err := borsh.Serialize(signed)
	if err != nil {
		return nil, "", errors.Wrap(err, "serialize signed transaction")
	}
	return out, base58.Encode(hash[:]), nil
}

func isTimeout(err error) bool {
	var rpcErr *rpcclient.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Name == "TIMEOUT_ERROR" || strings.Contains(string(rpcErr.Cause), "TIMEOUT_ERROR")
	}
	return false
}

func isUnknownTransaction(err error) bool {
	var rpcErr *rpcclient.RPCError
	if errors.As(err, &rpcErr) {
		return strings.Contains(string(rpcErr.Cause), "UNKNOWN_TRANSACTION")
	}
	return false
}
