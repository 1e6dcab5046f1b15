package messagepush

import (
	"encoding/json"
	"time"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/pkg/errors"
)

func convertMsgToString(msg interface{}) (string, error) {
	if v, ok := msg.(string); ok {
		return v, nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("msg cannot be encoded to json: msg[%v] err[%v]", msg, err)
		return "", errors.Wrap(err, "kafka produce: JSON marshal error")
	}
	return string(b), nil
}

func buildPushMessage(update *TransferUpdate) (*PushMessage, error) {
	b, err := json.Marshal(update)
	if err != nil {
		return nil, errors.Wrap(err, "json marshal error")
	}
	return &PushMessage{
		BizCode:       BizCodeBridgeTransfer,
		WalletAddress: update.wallet(),
		RequestID:     utils.GenerateTraceID(),
		PushContent:   string(b),
		Time:          time.Now().UnixMilli(),
	}, nil
}

func transferKey(update *TransferUpdate) string {
	return update.Chain.String() + ":" + update.Nonce
}
