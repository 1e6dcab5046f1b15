package ledger

import (
	"encoding/json"
	"strconv"
)

// Transfer is a deposit or withdrawal as stored by the ledger contract.
// ContractID and ReceiverID are base58 OmniAddress values.
type Transfer struct {
	Nonce      string `json:"nonce"`
	ChainID    int64  `json:"chain_id"`
	ContractID string `json:"contract_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	SenderID   string `json:"sender_id,omitempty"`
}

// UnmarshalJSON accepts nonces and amounts encoded either as strings or numbers
func (t *Transfer) UnmarshalJSON(data []byte) error {
	var raw struct {
		Nonce      json.Number `json:"nonce"`
		ChainID    json.Number `json:"chain_id"`
		ContractID string      `json:"contract_id"`
		ReceiverID string      `json:"receiver_id"`
		Amount     json.Number `json:"amount"`
		SenderID   string      `json:"sender_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	chainID, err := strconv.ParseInt(raw.ChainID.String(), 10, 64) //nolint:gomnd
	if err != nil && raw.ChainID != "" {
		return err
	}
	*t = Transfer{
		Nonce:      raw.Nonce.String(),
		ChainID:    chainID,
		ContractID: raw.ContractID,
		ReceiverID: raw.ReceiverID,
		Amount:     raw.Amount.String(),
		SenderID:   raw.SenderID,
	}
	return nil
}

// DepositProof is what the ledger needs to credit a source chain deposit
type DepositProof struct {
	Nonce         string
	ChainID       int64
	Token         []byte
	IntentAccount string
	Amount        string
	Signature     string
}

// ClearRequest is one completed withdrawal to remove from the locker
type ClearRequest struct {
	Nonce     string
	Signature string
}

// Intent is a single action inside a signed intent message
type Intent map[string]interface{}

type intentMessage struct {
	SignerID string   `json:"signer_id"`
	Deadline string   `json:"deadline"`
	Intents  []Intent `json:"intents"`
}
