package fee

import (
	"math/big"

	"github.com/omnibridge/omnibridge-service/omni"
)

// ReviewFee is the normalized fee estimate shared by every chain adapter.
// Amounts are in the smallest unit of the chain's native currency.
type ReviewFee struct {
	Chain omni.Network
	// BaseFee is the per-unit base price (EVM), or the per-signature fee (Solana)
	BaseFee *big.Int
	// PriorityFee is the per-unit tip
	PriorityFee *big.Int
	// GasLimit is the unit budget of the transaction
	GasLimit *big.Int
	// Reserve covers storage or rent the transaction must leave behind
	Reserve *big.Int
	// Additional is native value sent along with the transaction besides the gas
	Additional *big.Int
	// Gasless is set when a relayer pays the fee
	Gasless bool
	// Legacy is set on EVM chains without EIP-1559
	Legacy bool
	// Token the fee is denominated in, always native for now
	Token string
	// Options are alternative estimates, usually slower or faster tiers
	Options []*ReviewFee
}

// EvmGas is the gas part of an EVM transaction built from a ReviewFee
type EvmGas struct {
	GasLimit             uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// NewEvm builds an EVM fee. BaseFee should already carry any safety multiplier.
func NewEvm(chain omni.Network, baseFee, priorityFee *big.Int, gasLimit uint64, legacy bool) *ReviewFee {
	return &ReviewFee{
		Chain:       chain,
		BaseFee:     orZero(baseFee),
		PriorityFee: orZero(priorityFee),
		GasLimit:    new(big.Int).SetUint64(gasLimit),
		Legacy:      legacy,
		Token:       "native",
	}
}

// NewSolana builds a Solana fee: baseFee in lamports, priorityFee in lamports per compute unit
func NewSolana(baseFee, priorityFee *big.Int, computeUnits uint64) *ReviewFee {
	return &ReviewFee{
		Chain:       omni.Solana,
		BaseFee:     orZero(baseFee),
		PriorityFee: orZero(priorityFee),
		GasLimit:    new(big.Int).SetUint64(computeUnits),
		Token:       "native",
	}
}

// NewFixed builds a fee where the whole cost is known up front (TON, Stellar, Cosmos, Tron)
func NewFixed(chain omni.Network, amount *big.Int) *ReviewFee {
	return &ReviewFee{
		Chain:       chain,
		BaseFee:     orZero(amount),
		PriorityFee: new(big.Int),
		GasLimit:    big.NewInt(1),
		Token:       "native",
	}
}

// NewGasless builds a fee paid by a relayer
func NewGasless(chain omni.Network) *ReviewFee {
	return &ReviewFee{
		Chain:       chain,
		BaseFee:     new(big.Int),
		PriorityFee: new(big.Int),
		GasLimit:    new(big.Int),
		Gasless:     true,
		Token:       "native",
	}
}

// GasPrice is the per-unit price
func (f *ReviewFee) GasPrice() *big.Int {
	return new(big.Int).Add(orZero(f.BaseFee), orZero(f.PriorityFee))
}

// Fee is the total gas cost of the transaction
func (f *ReviewFee) Fee() *big.Int {
	if f.Gasless {
		return new(big.Int)
	}
	limit := orZero(f.GasLimit)
	if f.Chain == omni.Solana {
		out := new(big.Int).Mul(limit, orZero(f.PriorityFee))
		return out.Add(out, orZero(f.BaseFee))
	}
	return new(big.Int).Mul(limit, f.GasPrice())
}

// NeedNative is the native balance the sender must hold for the transaction, zero when gasless
func (f *ReviewFee) NeedNative() *big.Int {
	if f.Gasless {
		return new(big.Int)
	}
	out := f.Fee()
	out.Add(out, orZero(f.Reserve))
	return out.Add(out, orZero(f.Additional))
}

// EvmGas returns the gas fields for an EVM transaction
func (f *ReviewFee) EvmGas() EvmGas {
	gas := EvmGas{GasLimit: orZero(f.GasLimit).Uint64()}
	if f.Legacy {
		gas.GasPrice = f.GasPrice()
		return gas
	}
	gas.MaxFeePerGas = f.GasPrice()
	gas.MaxPriorityFeePerGas = new(big.Int).Set(orZero(f.PriorityFee))
	return gas
}

// Clone returns a deep copy
func (f *ReviewFee) Clone() *ReviewFee {
	c := *f
	c.BaseFee = new(big.Int).Set(orZero(f.BaseFee))
	c.PriorityFee = new(big.Int).Set(orZero(f.PriorityFee))
	c.GasLimit = new(big.Int).Set(orZero(f.GasLimit))
	if f.Reserve != nil {
		c.Reserve = new(big.Int).Set(f.Reserve)
	}
	if f.Additional != nil {
		c.Additional = new(big.Int).Set(f.Additional)
	}
	c.Options = nil
	for _, o := range f.Options {
		c.Options = append(c.Options, o.Clone())
	}
	return &c
}

// WithReserve returns a copy with Reserve set
func (f *ReviewFee) WithReserve(reserve *big.Int) *ReviewFee {
	c := f.Clone()
	c.Reserve = orZero(reserve)
	return c
}

// WithAdditional returns a copy with Additional set
func (f *ReviewFee) WithAdditional(additional *big.Int) *ReviewFee {
	c := f.Clone()
	c.Additional = orZero(additional)
	return c
}
