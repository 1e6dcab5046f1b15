package messagepush

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama/mocks"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProducer(t *testing.T) {
	p, err := NewKafkaProducer(Config{})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFakeProducerPushTransferUpdate(t *testing.T) {
	p, err := NewKafkaProducer(Config{Enabled: true, UseFakeProducer: true, Topic: "transfers"})
	require.NoError(t, err)

	deposit := &models.PendingDeposit{
		Chain:         omni.Ton,
		Nonce:         "77",
		Token:         "native",
		Amount:        "1000",
		IntentAccount: "alice.near",
		Status:        models.DepositStatusLedgerCredited,
	}
	require.NoError(t, p.PushTransferUpdate(NewDepositUpdate(deposit)))
	require.NoError(t, p.PushTransferUpdate(nil))

	msgs := p.GetFakeMessages("transfers")
	require.Len(t, msgs, 1)
	assert.Empty(t, p.GetFakeMessages("transfers"))

	var env PushMessage
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &env))
	assert.Equal(t, BizCodeBridgeTransfer, env.BizCode)
	assert.Equal(t, "alice.near", env.WalletAddress)

	var update TransferUpdate
	require.NoError(t, json.Unmarshal([]byte(env.PushContent), &update))
	assert.Equal(t, KindDeposit, update.Kind)
	assert.Equal(t, omni.Ton, update.Chain)
	assert.Equal(t, "ledger_credited", update.Status)
}

func TestFakeProducerKeepsLatestMessages(t *testing.T) {
	p := newFakeProducer(Config{Topic: "t"})
	for i := 0; i < fakeMessageLimit+5; i++ {
		require.NoError(t, p.Produce("m"))
	}
	require.NoError(t, p.Produce("other", WithTopic("x")))
	assert.Len(t, p.GetFakeMessages("t"), fakeMessageLimit)
	assert.Equal(t, []string{"other"}, p.GetFakeMessages("x"))
}

func TestKafkaProducerPushTransferUpdate(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env PushMessage
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		assert.Equal(t, "sender.near", env.WalletAddress)
		return nil
	})
	p := newKafkaProducer(mock, Config{Topic: "transfers"})

	withdraw := &models.PendingWithdraw{Chain: omni.Solana, Nonce: "5", Sender: "sender.near", Status: models.WithdrawStatusSignatureObtained}
	require.NoError(t, p.PushTransferUpdate(NewWithdrawUpdate(withdraw)))
	require.NoError(t, p.Close())
}
