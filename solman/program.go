package solman

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
	"github.com/pkg/errors"
)

// Bridge program instructions
const (
	IxNativeDeposit    = "native_deposit"
	IxTokenDeposit     = "token_deposit"
	IxNativeWithdraw   = "native_withdraw"
	IxTokenWithdraw    = "token_withdraw"
	IxClearDepositInfo = "clear_deposit_info"

	discriminatorLen = 8

	// account sizes used for rent estimates
	tokenAccountSize   = 165
	userAccountSize    = discriminatorLen + 16
	depositAccountSize = discriminatorLen + 16 + 32 + 32 + 8 + 32
)

var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Discriminator is the Anchor instruction selector sha256("global:<name>")[:8]
func Discriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:discriminatorLen]
}

// NonceBytes encodes a u128 little endian
func NonceBytes(n *big.Int) [16]byte {
	var out [16]byte
	be := n.FillBytes(make([]byte, 16)) //nolint:gomnd
	for i := range be {
		out[i] = be[15-i]
	}
	return out
}

// NonceFromBytes decodes a u128 little endian
func NonceFromBytes(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	return new(big.Int).SetBytes(be)
}

type depositArgs struct {
	Receiver [32]byte
	Amount   uint64
}

type withdrawArgs struct {
	Nonce     [16]byte
	Amount    uint64
	Signature []byte
}

type clearArgs struct {
	Nonce [16]byte
}

func instructionData(name string, args interface{}) ([]byte, error) {
	raw, err := borsh.Serialize(args)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return append(Discriminator(name), raw...), nil
}

// program derives the bridge accounts
type program struct {
	id solana.PublicKey
}

func (p program) pda(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, p.id)
	return addr, err
}

// State is the global bridge account, it owns the token vaults
func (p program) State() (solana.PublicKey, error) {
	return p.pda([]byte("state"))
}

// User holds the last withdrawn nonce of owner
func (p program) User(owner solana.PublicKey) (solana.PublicKey, error) {
	return p.pda([]byte("user"), owner.Bytes())
}

// Deposit records a deposit of sender until it is cleared
func (p program) Deposit(sender solana.PublicKey, nonce *big.Int) (solana.PublicKey, error) {
	n := NonceBytes(nonce)
	return p.pda([]byte("deposit"), sender.Bytes(), n[:])
}

func computeBudget(units uint32, microLamports uint64) []solana.Instruction {
	limit := make([]byte, 5) //nolint:gomnd
	limit[0] = 2
	binary.LittleEndian.PutUint32(limit[1:], units)
	price := make([]byte, 9) //nolint:gomnd
	price[0] = 3
	binary.LittleEndian.PutUint64(price[1:], microLamports)
	return []solana.Instruction{
		solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, limit),
		solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, price),
	}
}
