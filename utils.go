package passkeywallet

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsAddress reports whether s is a 0x-prefixed 20 byte hex address.
func IsAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	return common.IsHexAddress(s)
}

// InitCode returns factory ++ factoryData, or nil for deployed accounts.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return nil
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PaymasterAndData returns the packed paymaster field of the on-chain PackedUserOperation.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	packed := op.Paymaster.Bytes()
	packed = append(packed, uint128(op.PaymasterVerificationGasLimit)...)
	packed = append(packed, uint128(op.PaymasterPostOpGasLimit)...)
	return append(packed, op.PaymasterData...)
}

// Hash computes the v0.7 user operation hash that the account signs.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) common.Hash {
	packed := make([]byte, 0, 32*8)
	packed = append(packed, common.LeftPadBytes(op.Sender.Bytes(), 32)...)
	packed = append(packed, word(op.Nonce)...)
	packed = append(packed, crypto.Keccak256(op.InitCode())...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	packed = append(packed, uint128(op.VerificationGasLimit)...)
	packed = append(packed, uint128(op.CallGasLimit)...)
	packed = append(packed, word(op.PreVerificationGas)...)
	packed = append(packed, uint128(op.MaxPriorityFeePerGas)...)
	packed = append(packed, uint128(op.MaxFeePerGas)...)
	packed = append(packed, crypto.Keccak256(op.PaymasterAndData())...)

	outer := make([]byte, 0, 32*3)
	outer = append(outer, crypto.Keccak256(packed)...)
	outer = append(outer, common.LeftPadBytes(entryPoint.Bytes(), 32)...)
	outer = append(outer, common.LeftPadBytes(chainID.Bytes(), 32)...)
	return crypto.Keccak256Hash(outer)
}

func bigOf(v *hexutil.Big) *big.Int {
	if n := v.ToInt(); n != nil {
		return n
	}
	return new(big.Int)
}

func word(v *hexutil.Big) []byte {
	return common.LeftPadBytes(bigOf(v).Bytes(), 32)
}

func uint128(v *hexutil.Big) []byte {
	return common.LeftPadBytes(bigOf(v).Bytes(), 16)
}
