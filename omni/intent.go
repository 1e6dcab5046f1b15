package omni

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

const (
	// DefaultLedgerContract is the settlement ledger contract id on NEAR mainnet
	DefaultLedgerContract = "v2_1.omni.hot.tg"
	// DefaultIntentPrefix is the multi-token prefix of bridged assets
	DefaultIntentPrefix = "nep245:" + DefaultLedgerContract

	nep141Prefix = "nep141:"
	// WrappedNear is the NEP-141 token standing for native NEAR
	WrappedNear = "wrap.near"
)

// IntentCodec converts between (chain, token) pairs and ledger intent ids.
type IntentCodec struct {
	prefix string
}

// NewIntentCodec returns an IntentCodec for the ledger contract
func NewIntentCodec(ledgerContract string) *IntentCodec {
	if ledgerContract == "" {
		ledgerContract = DefaultLedgerContract
	}
	return &IntentCodec{prefix: "nep245:" + ledgerContract}
}

var defaultIntentCodec = NewIntentCodec(DefaultLedgerContract)

// ToIntentId uses the mainnet ledger contract prefix
func ToIntentId(chain Network, token string) (string, error) {
	return defaultIntentCodec.ToIntentId(chain, token)
}

// FromIntentId uses the mainnet ledger contract prefix
func FromIntentId(id string) (Network, string, error) {
	return defaultIntentCodec.FromIntentId(id)
}

// Prefix returns the multi-token prefix of the codec
func (c *IntentCodec) Prefix() string {
	return c.prefix
}

// ToIntentId returns "<prefix>:<chain>_<base58(omni)>", or "nep141:<account>" for NEAR tokens.
func (c *IntentCodec) ToIntentId(chain Network, token string) (string, error) {
	if chain.Family() == FamilyNear {
		if utils.IsNative(token) {
			token = WrappedNear
		}
		if _, err := encodeNear(chain, token); err != nil {
			return "", err
		}
		return nep141Prefix + token, nil
	}
	omni, err := EncodeAddress(chain, token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d_%s", c.prefix, int64(chain), base58.Encode(omni)), nil
}

// FromIntentId reverses ToIntentId
func (c *IntentCodec) FromIntentId(id string) (Network, string, error) {
	if strings.HasPrefix(id, nep141Prefix) {
		token := strings.TrimPrefix(id, nep141Prefix)
		if token == WrappedNear {
			return Near, utils.NativeToken, nil
		}
		if _, err := encodeNear(Near, token); err != nil {
			return 0, "", err
		}
		return Near, token, nil
	}
	if !strings.HasPrefix(id, c.prefix+":") {
		return 0, "", &gerror.DecodeError{Input: id, Reason: "unknown intent prefix"}
	}
	rest := strings.TrimPrefix(id, c.prefix+":")
	sep := strings.Index(rest, "_")
	if sep <= 0 {
		return 0, "", &gerror.DecodeError{Input: id, Reason: "missing chain separator"}
	}
	chainID, err := strconv.ParseInt(rest[:sep], 10, 64) //nolint:gomnd
	if err != nil {
		return 0, "", &gerror.DecodeError{Input: id, Reason: "bad chain id"}
	}
	chain := Network(chainID)
	if chain.Family() == FamilyUnknown {
		return 0, "", &gerror.DecodeError{Chain: chainID, Input: id, Reason: "unknown chain"}
	}
	omni, err := base58.Decode(rest[sep+1:])
	if err != nil || len(omni) == 0 {
		return 0, "", &gerror.DecodeError{Chain: chainID, Input: id, Reason: "bad base58 payload"}
	}
	token, err := DecodeAddress(chain, omni)
	if err != nil {
		return 0, "", err
	}
	return chain, token, nil
}
