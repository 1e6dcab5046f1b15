package tonman

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/jetton"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Deploy is an outgoing internal message of the bridge that carries a StateInit
type Deploy struct {
	Dest *address.Address
	Data *cell.Cell
	Body *cell.Cell
}

type chainAPI interface {
	GetBalance(ctx context.Context, addr *address.Address) (*big.Int, error)
	IsActive(ctx context.Context, addr *address.Address) (bool, error)
	RunGetMethod(ctx context.Context, addr *address.Address, method string, params ...interface{}) ([]interface{}, error)
	JettonWallet(ctx context.Context, master, owner *address.Address) (*address.Address, error)
	OutgoingDeploys(ctx context.Context, from *address.Address, limit uint32) ([]Deploy, error)
}

// liteAPI implements chainAPI over a liteserver connection pool
type liteAPI struct {
	api ton.APIClientWrapped
}

func dialLiteAPI(ctx context.Context, configURL string) (*liteAPI, error) {
	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		return nil, errors.Wrap(err, "connect liteservers")
	}
	return &liteAPI{api: ton.NewAPIClient(pool).WithRetry()}, nil
}

func (l *liteAPI) account(ctx context.Context, addr *address.Address) (*tlb.Account, error) {
	block, err := l.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, err
	}
	return l.api.GetAccount(ctx, block, addr)
}

func (l *liteAPI) GetBalance(ctx context.Context, addr *address.Address) (*big.Int, error) {
	acc, err := l.account(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive || acc.State == nil {
		return new(big.Int), nil
	}
	return acc.State.Balance.Nano(), nil
}

func (l *liteAPI) IsActive(ctx context.Context, addr *address.Address) (bool, error) {
	acc, err := l.account(ctx, addr)
	if err != nil {
		return false, err
	}
	return acc.IsActive, nil
}

func (l *liteAPI) RunGetMethod(ctx context.Context, addr *address.Address, method string, params ...interface{}) ([]interface{}, error) {
	block, err := l.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, err
	}
	res, err := l.api.RunGetMethod(ctx, block, addr, method, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "run %s", method)
	}
	return res.AsTuple(), nil
}

func (l *liteAPI) JettonWallet(ctx context.Context, master, owner *address.Address) (*address.Address, error) {
	w, err := jetton.NewJettonMasterClient(l.api, master).GetJettonWallet(ctx, owner)
	if err != nil {
		return nil, err
	}
	return w.Address(), nil
}

func (l *liteAPI) OutgoingDeploys(ctx context.Context, from *address.Address, limit uint32) ([]Deploy, error) {
	acc, err := l.account(ctx, from)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive {
		return nil, nil
	}
	txs, err := l.api.ListTransactions(ctx, from, limit, acc.LastTxLT, acc.LastTxHash)
	if err != nil {
		return nil, err
	}
	var out []Deploy
	for _, tx := range txs {
		if tx.IO.Out == nil {
			continue
		}
		msgs, err := tx.IO.Out.ToSlice()
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.MsgType != tlb.MsgTypeInternal {
				continue
			}
			in := m.AsInternal()
			if in.StateInit == nil || in.StateInit.Data == nil {
				continue
			}
			out = append(out, Deploy{Dest: in.DstAddr, Data: in.StateInit.Data, Body: in.Body})
		}
	}
	return out, nil
}
