package stellarman

import (
	"math/big"

	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/pkg/errors"
	"github.com/stellar/go/xdr"
)

var mask64 = new(big.Int).SetUint64(^uint64(0))

func scAddress(addr string) (xdr.ScAddress, error) {
	var sc xdr.ScAddress
	raw, err := omni.EncodeAddress(omni.Stellar, addr)
	if err != nil {
		return sc, err
	}
	if err := xdr.SafeUnmarshal(raw, &sc); err != nil {
		return sc, errors.Wrap(err, addr)
	}
	return sc, nil
}

func addressVal(addr string) (xdr.ScVal, error) {
	sc, err := scAddress(addr)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &sc}, nil
}

func bytesVal(b []byte) xdr.ScVal {
	v := xdr.ScBytes(b)
	return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &v}
}

func u128Val(n *big.Int) xdr.ScVal {
	parts := xdr.UInt128Parts{
		Hi: xdr.Uint64(new(big.Int).Rsh(n, 64).Uint64()), //nolint:gomnd
		Lo: xdr.Uint64(new(big.Int).And(n, mask64).Uint64()),
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvU128, U128: &parts}
}

func i128Val(n *big.Int) (xdr.ScVal, error) {
	if n.Sign() < 0 || n.BitLen() > 127 { //nolint:gomnd
		return xdr.ScVal{}, errors.Errorf("amount %s out of i128 range", n)
	}
	parts := xdr.Int128Parts{
		Hi: xdr.Int64(new(big.Int).Rsh(n, 64).Int64()), //nolint:gomnd
		Lo: xdr.Uint64(new(big.Int).And(n, mask64).Uint64()),
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}, nil
}

// scInt reads u128, i128 and u64 values
func scInt(v xdr.ScVal) (*big.Int, error) {
	switch v.Type {
	case xdr.ScValTypeScvU128:
		hi := new(big.Int).SetUint64(uint64(v.U128.Hi))
		return hi.Lsh(hi, 64).Or(hi, new(big.Int).SetUint64(uint64(v.U128.Lo))), nil //nolint:gomnd
	case xdr.ScValTypeScvI128:
		hi := big.NewInt(int64(v.I128.Hi))
		return hi.Lsh(hi, 64).Or(hi, new(big.Int).SetUint64(uint64(v.I128.Lo))), nil //nolint:gomnd
	case xdr.ScValTypeScvU64:
		return new(big.Int).SetUint64(uint64(*v.U64)), nil
	}
	return nil, errors.Errorf("unexpected %s value", v.Type)
}

func scBool(v xdr.ScVal) (bool, error) {
	if v.Type != xdr.ScValTypeScvBool || v.B == nil {
		return false, errors.Errorf("unexpected %s value", v.Type)
	}
	return *v.B, nil
}
