package tronman

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type triggerRequest struct {
	OwnerAddress     string `json:"owner_address"`
	ContractAddress  string `json:"contract_address"`
	FunctionSelector string `json:"function_selector"`
	Parameter        string `json:"parameter"`
	FeeLimit         int64  `json:"fee_limit,omitempty"`
	CallValue        int64  `json:"call_value,omitempty"`
	Visible          bool   `json:"visible"`
}

type callResult struct {
	Result  bool   `json:"result"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type constantResponse struct {
	Result         callResult `json:"result"`
	ConstantResult []string   `json:"constant_result"`
}

// transaction keeps the node's JSON untouched apart from the fields we read and the signature
type transaction struct {
	TxID       string          `json:"txID"`
	RawData    json.RawMessage `json:"raw_data"`
	RawDataHex string          `json:"raw_data_hex"`
	Visible    bool            `json:"visible"`
	Signature  []string        `json:"signature,omitempty"`
}

type triggerResponse struct {
	Result      callResult   `json:"result"`
	Transaction *transaction `json:"transaction"`
}

type broadcastResponse struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type txLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type txInfo struct {
	ID          string `json:"id"`
	BlockNumber int64  `json:"blockNumber"`
	Receipt     struct {
		Result string `json:"result"`
	} `json:"receipt"`
	Log []txLog `json:"log"`
}

type account struct {
	Balance int64 `json:"balance"`
}

func (i *txInfo) evmLogs() []*types.Log {
	out := make([]*types.Log, 0, len(i.Log))
	for _, l := range i.Log {
		el := &types.Log{Address: common.HexToAddress(l.Address), Data: common.FromHex(l.Data)}
		for _, topic := range l.Topics {
			el.Topics = append(el.Topics, common.HexToHash(topic))
		}
		out = append(out, el)
	}
	return out
}

func (i *txInfo) succeeded() bool {
	return i.Receipt.Result == "" || strings.EqualFold(i.Receipt.Result, "SUCCESS")
}
