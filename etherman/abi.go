package etherman

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

const bridgeABIJSON = `[
{"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"receiver","type":"bytes"}],"outputs":[]},
{"type":"function","name":"depositToken","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"address"},{"name":"amount","type":"uint256"},{"name":"receiver","type":"bytes"}],"outputs":[]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"nonce","type":"uint128"},{"name":"contractId","type":"address"},{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
{"type":"function","name":"usedNonces","stateMutability":"view","inputs":[{"name":"nonce","type":"uint128"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"event","name":"NewTransfer","anonymous":false,"inputs":[{"name":"nonce","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"contractId","type":"address","indexed":false},{"name":"receiverId","type":"bytes","indexed":false}]}
]`

const erc20ABIJSON = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	// BridgeABI is the ABI of the bridge contract, shared by EVM and Tron
	BridgeABI = mustParseABI(bridgeABIJSON)
	// ERC20ABI is the subset of ERC20 used by the adapters
	ERC20ABI = mustParseABI(erc20ABIJSON)

	newTransferTopic = BridgeABI.Events["NewTransfer"].ID

	// ErrNoTransferLog is returned when a receipt holds no NewTransfer event
	ErrNoTransferLog = errors.New("no NewTransfer log in receipt")
)

// NewTransfer is the bridge event emitted for every deposit
type NewTransfer struct {
	Nonce      *big.Int       `abi:"nonce"`
	Amount     *big.Int       `abi:"amount"`
	ContractID common.Address `abi:"contractId"`
	ReceiverID []byte         `abi:"receiverId"`
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParseNewTransfer decodes the last NewTransfer event emitted by bridge among logs.
// A zero bridge address accepts events from any emitter.
func ParseNewTransfer(logs []*types.Log, bridge common.Address) (*NewTransfer, error) {
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		if len(l.Topics) == 0 || l.Topics[0] != newTransferTopic {
			continue
		}
		if bridge != (common.Address{}) && l.Address != bridge {
			continue
		}
		var ev NewTransfer
		if err := BridgeABI.UnpackIntoInterface(&ev, "NewTransfer", l.Data); err != nil {
			return nil, errors.Wrap(err, "unpack NewTransfer")
		}
		return &ev, nil
	}
	return nil, ErrNoTransferLog
}

// NewTransferTopic returns the topic of the NewTransfer event
func NewTransferTopic() common.Hash {
	return newTransferTopic
}
