package messagepush

import (
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
)

const (
	BizCodeBridgeTransfer = "omnibridge_transfer"

	KindDeposit  = "deposit"
	KindWithdraw = "withdraw"
)

// PushMessage is the envelope written to the topic
type PushMessage struct {
	BizCode       string `json:"bizCode"`
	WalletAddress string `json:"walletAddress"`
	RequestID     string `json:"requestId"`
	PushContent   string `json:"pushContent"`
	Time          int64  `json:"time"`
}

// TransferUpdate is pushed every time a deposit or withdrawal changes status
type TransferUpdate struct {
	Kind          string       `json:"kind"`
	Chain         omni.Network `json:"chain"`
	Nonce         string       `json:"nonce"`
	Token         string       `json:"token"`
	Amount        string       `json:"amount"`
	Sender        string       `json:"sender"`
	Receiver      string       `json:"receiver"`
	IntentAccount string       `json:"intentAccount,omitempty"`
	TxHash        string       `json:"txHash,omitempty"`
	Status        string       `json:"status"`
}

// NewDepositUpdate builds the event for a deposit transition
func NewDepositUpdate(d *models.PendingDeposit) *TransferUpdate {
	return &TransferUpdate{
		Kind:          KindDeposit,
		Chain:         d.Chain,
		Nonce:         d.Nonce,
		Token:         d.Token,
		Amount:        d.Amount,
		Sender:        d.Sender,
		Receiver:      d.Receiver,
		IntentAccount: d.IntentAccount,
		TxHash:        d.TxHash,
		Status:        d.Status.String(),
	}
}

// NewWithdrawUpdate builds the event for a withdrawal transition
func NewWithdrawUpdate(w *models.PendingWithdraw) *TransferUpdate {
	return &TransferUpdate{
		Kind:     KindWithdraw,
		Chain:    w.Chain,
		Nonce:    w.Nonce,
		Token:    w.Token,
		Amount:   w.Amount,
		Sender:   w.Sender,
		Receiver: w.Receiver,
		TxHash:   w.TxHash,
		Status:   w.Status.String(),
	}
}

// wallet is the address the client subscribes with
func (u *TransferUpdate) wallet() string {
	if u.Kind == KindDeposit && u.IntentAccount != "" {
		return u.IntentAccount
	}
	if u.Kind == KindWithdraw {
		return u.Sender
	}
	return u.Receiver
}
