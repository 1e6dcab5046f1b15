package omni

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsNeverEVM(t *testing.T) {
	for n := range sentinels {
		assert.False(t, n.IsEVM(), n.String())
	}
	for _, n := range KnownEVMNetworks() {
		assert.False(t, n.IsSentinel(), n.String())
		assert.Equal(t, FamilyEVM, n.Family())
	}
	assert.Equal(t, FamilyEVM, Network(8453).Family())
	assert.Equal(t, FamilyUnknown, Network(-100).Family())
}

func TestParseNetwork(t *testing.T) {
	n, ok := ParseNetwork("TON")
	require.True(t, ok)
	assert.Equal(t, Ton, n)
	n, ok = ParseNetwork("8453")
	require.True(t, ok)
	assert.Equal(t, Base, n)
	_, ok = ParseNetwork("-77")
	assert.False(t, ok)
	_, ok = ParseNetwork("nowhere")
	assert.False(t, ok)
	assert.Equal(t, "1337", Network(1337).String())
}

func TestAddressRoundTrip(t *testing.T) {
	contract, err := strkey.Encode(strkey.VersionByteContract, bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	tcs := []struct {
		name  string
		chain Network
		addr  string
	}{
		{"evm native", Eth, "native"},
		{"evm token", Base, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
		{"tron native", Tron, "native"},
		{"tron token", Tron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"},
		{"solana native", Solana, "native"},
		{"solana token", Solana, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		{"ton native", Ton, "native"},
		{"stellar native", Stellar, "native"},
		{"stellar account", Stellar, keypair.MustRandom().Address()},
		{"stellar contract", Stellar, contract},
		{"near account", Near, "alice.near"},
		{"hot account", Hot, "bob.tg"},
		{"cosmos denom", Juno, "ujuno"},
		{"cosmos address", Juno, "juno1qyqszqgpqyqszqgpqyqszqgpqyqszqgpjnp7du"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := EncodeAddress(tc.chain, tc.addr)
			require.NoError(t, err)
			dec, err := DecodeAddress(tc.chain, enc)
			require.NoError(t, err)
			assert.Equal(t, tc.addr, dec)
		})
	}
}

func TestTonAddressCanonicalForm(t *testing.T) {
	raw := "0:" + strings.Repeat("ab", 32)
	enc, err := EncodeAddress(Ton, raw)
	require.NoError(t, err)

	friendly, err := DecodeAddress(Ton, enc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(friendly, "EQ"), friendly)

	again, err := EncodeAddress(Ton, friendly)
	require.NoError(t, err)
	assert.Equal(t, enc, again)

	back, err := DecodeAddress(Ton, again)
	require.NoError(t, err)
	assert.Equal(t, friendly, back)
}

func TestParseTonRawAddress(t *testing.T) {
	hash := strings.Repeat("0f", 32)
	addr, err := ParseTonAddress("-1:" + hash)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), addr.Workchain())
	assert.Equal(t, bytes.Repeat([]byte{0x0f}, 32), addr.Data())

	addr, err = ParseTonAddress("0:" + strings.ToUpper(hash))
	require.NoError(t, err)
	assert.Equal(t, int32(0), addr.Workchain())

	for _, bad := range []string{"0:abcd", "x:" + hash, "0:" + strings.Repeat("zz", 32), "300:" + hash} {
		_, err := ParseTonAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestTonNonBounceableDecodesBounceable(t *testing.T) {
	raw, err := ParseTonAddress("0:" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	raw.SetBounce(false)
	nonBounce := raw.String()
	require.True(t, strings.HasPrefix(nonBounce, "UQ"), nonBounce)

	enc, err := EncodeAddress(Ton, nonBounce)
	require.NoError(t, err)
	dec, err := DecodeAddress(Ton, enc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dec, "EQ"), dec)
	assert.NotEqual(t, nonBounce, dec)
}

func TestLegacyEvmNative(t *testing.T) {
	dec, err := DecodeAddress(Eth, bytes.Repeat([]byte{0x11}, 21))
	require.NoError(t, err)
	assert.Equal(t, "native", dec)
}

func TestDecodeErrors(t *testing.T) {
	tcs := []struct {
		name  string
		chain Network
		data  []byte
	}{
		{"evm short", Eth, []byte{1, 2, 3}},
		{"tron short", Tron, []byte{1}},
		{"solana short", Solana, []byte{1, 2}},
		{"ton bad rlp", Ton, []byte{0xff, 0xff}},
		{"ton bad length", Ton, []byte{0x83, 1, 2, 3}},
		{"stellar garbage", Stellar, []byte{9, 9, 9}},
		{"near empty", Near, nil},
		{"near invalid utf8", Near, []byte{0xff, 0xfe}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeAddress(tc.chain, tc.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gerror.ErrDecode))
		})
	}
	_, err := EncodeAddress(Eth, "0x1234")
	assert.True(t, errors.Is(err, gerror.ErrDecode))
	_, err = EncodeAddress(Tron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u")
	assert.True(t, errors.Is(err, gerror.ErrDecode))
	_, err = EncodeAddress(Near, "Bad Account")
	assert.True(t, errors.Is(err, gerror.ErrDecode))
	_, err = EncodeAddress(Network(-100), "x")
	assert.True(t, errors.Is(err, gerror.ErrUnsupportedChain))
}

func TestIntentIds(t *testing.T) {
	id, err := ToIntentId(Eth, "native")
	require.NoError(t, err)
	assert.Equal(t, "nep245:v2_1.omni.hot.tg:1_11111111111111111111", id)

	chain, token, err := FromIntentId(id)
	require.NoError(t, err)
	assert.Equal(t, Eth, chain)
	assert.Equal(t, "native", token)

	usdc := "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	id, err = ToIntentId(Base, usdc)
	require.NoError(t, err)
	chain, token, err = FromIntentId(id)
	require.NoError(t, err)
	assert.Equal(t, Base, chain)
	assert.Equal(t, usdc, token)

	id, err = ToIntentId(Near, "native")
	require.NoError(t, err)
	assert.Equal(t, "nep141:wrap.near", id)
	chain, token, err = FromIntentId(id)
	require.NoError(t, err)
	assert.Equal(t, Near, chain)
	assert.Equal(t, "native", token)

	chain, token, err = FromIntentId("nep141:usdt.tether-token.near")
	require.NoError(t, err)
	assert.Equal(t, Near, chain)
	assert.Equal(t, "usdt.tether-token.near", token)

	custom := NewIntentCodec("v2.omni.testnet")
	id, err = custom.ToIntentId(Solana, "native")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "nep245:v2.omni.testnet:1001_"))
	_, _, err = FromIntentId(id)
	assert.True(t, errors.Is(err, gerror.ErrDecode))
}

func TestIntentIdErrors(t *testing.T) {
	for _, id := range []string{
		"nep245:v2_1.omni.hot.tg:1",
		"nep245:v2_1.omni.hot.tg:x_111",
		"nep245:v2_1.omni.hot.tg:-100_111",
		"nep245:v2_1.omni.hot.tg:1_0OIl",
		"nep245:v2_1.omni.hot.tg:1_1111",
		"erc20:0x00",
	} {
		_, _, err := FromIntentId(id)
		require.Error(t, err, id)
		assert.True(t, errors.Is(err, gerror.ErrDecode), id)
	}
}

func TestEphemeralReceiver(t *testing.T) {
	a := EphemeralReceiver("alice.near")
	assert.Len(t, a, 32)
	assert.Equal(t, a, EphemeralReceiver("alice.near"))
	assert.NotEqual(t, a, EphemeralReceiver("bob.near"))
	assert.NotEmpty(t, EphemeralReceiverBase58("alice.near"))
}
