package etherman

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
)

type ethClienter interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// endpoints runs calls against the first healthy RPC endpoint
type endpoints struct {
	name    string
	urls    []string
	clients []ethClienter

	mu      sync.Mutex
	current int
}

func (e *endpoints) pick() (int, ethClienter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.clients[e.current]
}

func (e *endpoints) rotate(failed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == failed {
		e.current = (e.current + 1) % len(e.clients)
	}
}

// call runs fn, moving to the next endpoint on transport failures
func (e *endpoints) call(ctx context.Context, fn func(c ethClienter) error) error {
	var lastErr error
	for i := 0; i < len(e.clients); i++ {
		idx, c := e.pick()
		err := fn(c)
		if err == nil || !isTransportError(ctx, err) {
			return err
		}
		log.Warnf("%s endpoint %s failed: %v", e.name, e.urls[idx], err)
		metrics.RecordEndpointFailover(e.name)
		e.rotate(idx)
		lastErr = err
	}
	return lastErr
}

func isTransportError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ethereum.NotFound) {
		return false
	}
	var rpcErr rpc.Error
	return !errors.As(err, &rpcErr)
}
