package omni

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/omnibridge/omnibridge-service/utils"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const (
	evmAddressLen    = 20
	tronPrefix       = 0x41
	tronChecksumLen  = 4
	tonStdAddrBits   = 267
	solanaNativeLen  = 34
	nearMaxAccountID = 64
)

var (
	evmNative       = make([]byte, evmAddressLen)
	evmLegacyNative = bytes.Repeat([]byte{0x11}, evmAddressLen+1)
	solanaNative    = bytes.Repeat([]byte{0x11}, solanaNativeLen)
	stellarNative   = []byte{0x11}
	// addr_none: two zero bits
	tonNativeBits = []byte{0x00}

	nearAccountRe = regexp.MustCompile(`^(([a-z\d]+[-_])*[a-z\d]+\.)*([a-z\d]+[-_])*[a-z\d]+$`)
	cosmosDenomRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{2,127}$`)
)

func decodeErr(chain Network, input, reason string) error {
	return &gerror.DecodeError{Chain: int64(chain), Input: input, Reason: reason}
}

// EncodeAddress converts a chain-native address or token id into its OmniAddress bytes.
// The reserved token name "native" maps to the chain's native currency sentinel.
func EncodeAddress(chain Network, addr string) ([]byte, error) {
	switch chain.Family() {
	case FamilyEVM:
		return encodeEvm(chain, addr)
	case FamilyTron:
		return encodeTron(chain, addr)
	case FamilySolana:
		return encodeSolana(chain, addr)
	case FamilyTon:
		return encodeTon(chain, addr)
	case FamilyStellar:
		return encodeStellar(chain, addr)
	case FamilyNear, FamilyHot:
		return encodeNear(chain, addr)
	case FamilyCosmos:
		return encodeCosmos(chain, addr)
	}
	return nil, &gerror.UnsupportedChainError{Chain: int64(chain)}
}

// DecodeAddress converts OmniAddress bytes back into the chain-native form.
// Native currency sentinels decode to "native". TON addresses come back bounceable
// on mainnet whatever flags were encoded, see ParseTonAddress.
func DecodeAddress(chain Network, omni []byte) (string, error) {
	switch chain.Family() {
	case FamilyEVM:
		return decodeEvm(chain, omni)
	case FamilyTron:
		return decodeTron(chain, omni)
	case FamilySolana:
		return decodeSolana(chain, omni)
	case FamilyTon:
		return decodeTon(chain, omni)
	case FamilyStellar:
		return decodeStellar(chain, omni)
	case FamilyNear, FamilyHot, FamilyCosmos:
		return decodeUTF8(chain, omni)
	}
	return "", &gerror.UnsupportedChainError{Chain: int64(chain)}
}

// EphemeralReceiver derives the 32 byte receiver used for deposits credited to intentAccount
func EphemeralReceiver(intentAccount string) []byte {
	h := sha256.Sum256([]byte(intentAccount))
	return h[:]
}

// EphemeralReceiverBase58 is EphemeralReceiver in base58
func EphemeralReceiverBase58(intentAccount string) string {
	return base58.Encode(EphemeralReceiver(intentAccount))
}

func encodeEvm(chain Network, addr string) ([]byte, error) {
	if utils.IsNative(addr) {
		return append([]byte(nil), evmNative...), nil
	}
	if !common.IsHexAddress(addr) {
		return nil, decodeErr(chain, addr, "not a hex address")
	}
	return common.HexToAddress(addr).Bytes(), nil
}

func decodeEvm(chain Network, omni []byte) (string, error) {
	if bytes.Equal(omni, evmLegacyNative) || bytes.Equal(omni, evmNative) {
		return utils.NativeToken, nil
	}
	if len(omni) != evmAddressLen {
		return "", decodeErr(chain, base58.Encode(omni), "expected 20 bytes")
	}
	return common.BytesToAddress(omni).Hex(), nil
}

func encodeTron(chain Network, addr string) ([]byte, error) {
	if utils.IsNative(addr) {
		return append([]byte(nil), evmNative...), nil
	}
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 1+evmAddressLen+tronChecksumLen {
		return nil, decodeErr(chain, addr, "not a base58check tron address")
	}
	payload, checksum := raw[:1+evmAddressLen], raw[1+evmAddressLen:]
	if payload[0] != tronPrefix || !bytes.Equal(checksum, doubleSha256(payload)[:tronChecksumLen]) {
		return nil, decodeErr(chain, addr, "bad tron prefix or checksum")
	}
	return append([]byte(nil), payload[1:]...), nil
}

func decodeTron(chain Network, omni []byte) (string, error) {
	if bytes.Equal(omni, evmNative) {
		return utils.NativeToken, nil
	}
	if len(omni) != evmAddressLen {
		return "", decodeErr(chain, base58.Encode(omni), "expected 20 bytes")
	}
	return TronAddress(omni), nil
}

// TronAddress formats 20 address bytes as a base58check "T..." address
func TronAddress(addr20 []byte) string {
	payload := append([]byte{tronPrefix}, addr20...)
	return base58.Encode(append(payload, doubleSha256(payload)[:tronChecksumLen]...))
}

func doubleSha256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

func encodeSolana(chain Network, addr string) ([]byte, error) {
	if utils.IsNative(addr) {
		return append([]byte(nil), solanaNative...), nil
	}
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return nil, decodeErr(chain, addr, err.Error())
	}
	return pk.Bytes(), nil
}

func decodeSolana(chain Network, omni []byte) (string, error) {
	if bytes.Equal(omni, solanaNative) {
		return utils.NativeToken, nil
	}
	if len(omni) != solana.PublicKeyLength {
		return "", decodeErr(chain, base58.Encode(omni), "expected 32 bytes")
	}
	return solana.PublicKeyFromBytes(omni).String(), nil
}

func encodeTon(chain Network, addr string) ([]byte, error) {
	if utils.IsNative(addr) {
		return rlp.EncodeToBytes(tonNativeBits)
	}
	parsed, err := ParseTonAddress(addr)
	if err != nil {
		return nil, decodeErr(chain, addr, err.Error())
	}
	b := cell.BeginCell()
	if err := b.StoreAddr(parsed); err != nil {
		return nil, decodeErr(chain, addr, err.Error())
	}
	built := b.EndCell()
	bits, err := built.BeginParse().LoadSlice(built.BitsSize())
	if err != nil {
		return nil, decodeErr(chain, addr, err.Error())
	}
	return rlp.EncodeToBytes(bits)
}

func decodeTon(chain Network, omni []byte) (string, error) {
	var bits []byte
	if err := rlp.DecodeBytes(omni, &bits); err != nil {
		return "", decodeErr(chain, base58.Encode(omni), "invalid rlp: "+err.Error())
	}
	if bytes.Equal(bits, tonNativeBits) {
		return utils.NativeToken, nil
	}
	if len(bits) != (tonStdAddrBits+7)/8 { //nolint:gomnd
		return "", decodeErr(chain, base58.Encode(omni), "unexpected address bit length")
	}
	b := cell.BeginCell()
	if err := b.StoreSlice(bits, tonStdAddrBits); err != nil {
		return "", decodeErr(chain, base58.Encode(omni), err.Error())
	}
	addr, err := b.EndCell().BeginParse().LoadAddr()
	if err != nil {
		return "", decodeErr(chain, base58.Encode(omni), err.Error())
	}
	addr.SetBounce(true)
	return addr.String(), nil
}

// ParseTonAddress accepts user-friendly and raw ("wc:hex") TON addresses.
// Only the workchain and account id survive EncodeAddress, so the bounce and
// testnet flags of the input are lost: DecodeAddress always yields the bounceable
// mainnet form (EQ...), and UQ or testnet inputs do not round-trip byte for byte.
func ParseTonAddress(addr string) (*address.Address, error) {
	if wc, hash, ok := strings.Cut(addr, ":"); ok {
		return parseRawTonAddress(wc, hash)
	}
	return address.ParseAddr(addr)
}

func parseRawTonAddress(wc, hash string) (*address.Address, error) {
	workchain, err := strconv.ParseInt(wc, 10, 8)
	if err != nil {
		return nil, errors.New("invalid workchain " + wc)
	}
	data, err := hex.DecodeString(hash)
	if err != nil || len(data) != 32 { //nolint:gomnd
		return nil, errors.New("raw address needs a 32 byte hex account id")
	}
	return address.NewAddress(0, byte(int8(workchain)), data), nil
}

func encodeStellar(chain Network, addr string) ([]byte, error) {
	if utils.IsNative(addr) {
		return append([]byte(nil), stellarNative...), nil
	}
	var sc xdr.ScAddress
	switch {
	case strkey.IsValidEd25519PublicKey(addr):
		accountID, err := xdr.AddressToAccountId(addr)
		if err != nil {
			return nil, decodeErr(chain, addr, err.Error())
		}
		sc = xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &accountID}
	default:
		raw, err := strkey.Decode(strkey.VersionByteContract, addr)
		if err != nil {
			return nil, decodeErr(chain, addr, "not an account or contract strkey")
		}
		var contractID xdr.Hash
		copy(contractID[:], raw)
		sc = xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &contractID}
	}
	out, err := sc.MarshalBinary()
	if err != nil {
		return nil, decodeErr(chain, addr, err.Error())
	}
	return out, nil
}

func decodeStellar(chain Network, omni []byte) (string, error) {
	if bytes.Equal(omni, stellarNative) {
		return utils.NativeToken, nil
	}
	var sc xdr.ScAddress
	if err := xdr.SafeUnmarshal(omni, &sc); err != nil {
		return "", decodeErr(chain, base58.Encode(omni), "invalid ScAddress xdr")
	}
	switch sc.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		return sc.AccountId.Address(), nil
	case xdr.ScAddressTypeScAddressTypeContract:
		out, err := strkey.Encode(strkey.VersionByteContract, sc.ContractId[:])
		if err != nil {
			return "", decodeErr(chain, base58.Encode(omni), err.Error())
		}
		return out, nil
	}
	return "", decodeErr(chain, base58.Encode(omni), "unknown ScAddress type")
}

func encodeNear(chain Network, addr string) ([]byte, error) {
	if utils.IsNative(addr) {
		return []byte(utils.NativeToken), nil
	}
	if len(addr) < 2 || len(addr) > nearMaxAccountID || !nearAccountRe.MatchString(addr) {
		return nil, decodeErr(chain, addr, "invalid account id")
	}
	return []byte(addr), nil
}

func encodeCosmos(chain Network, addr string) ([]byte, error) {
	if utils.IsNative(addr) {
		return []byte(utils.NativeToken), nil
	}
	if _, _, err := bech32.Decode(addr); err == nil {
		return []byte(addr), nil
	}
	if !cosmosDenomRe.MatchString(addr) {
		return nil, decodeErr(chain, addr, "neither a bech32 address nor a denom")
	}
	return []byte(addr), nil
}

func decodeUTF8(chain Network, omni []byte) (string, error) {
	if len(omni) == 0 || !utf8.Valid(omni) {
		return "", decodeErr(chain, base58.Encode(omni), "not utf-8")
	}
	return string(omni), nil
}
