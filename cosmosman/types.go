package cosmosman

import (
	"encoding/base64"
	"encoding/json"
)

// Coin is an amount of a bank denom
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type smartQueryResponse struct {
	Data json.RawMessage `json:"data"`
}

type bankBalanceResponse struct {
	Balance Coin `json:"balance"`
}

type eventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type event struct {
	Type       string           `json:"type"`
	Attributes []eventAttribute `json:"attributes"`
}

type txResponse struct {
	TxHash string  `json:"txhash"`
	Height string  `json:"height"`
	Code   uint32  `json:"code"`
	RawLog string  `json:"raw_log"`
	Events []event `json:"events"`
}

type getTxResponse struct {
	TxResponse *txResponse `json:"tx_response"`
}

// attr decodes attributes emitted either plain or base64 encoded by older nodes
func attr(s string) string {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && printable(raw) {
		return string(raw)
	}
	return s
}

func printable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// wasmNonce returns the last nonce attribute of the wasm events
func (r *txResponse) wasmNonce() (string, bool) {
	var nonce string
	for _, e := range r.Events {
		if e.Type != "wasm" {
			continue
		}
		for _, a := range e.Attributes {
			if attr(a.Key) != "nonce" {
				continue
			}
			v := a.Value
			if !digits(v) {
				v = attr(v)
			}
			nonce = v
		}
	}
	return nonce, nonce != ""
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
