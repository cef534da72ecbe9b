package usecase

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
)

const erc20ABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

var erc20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EncodeTransfer builds the call moving value minor units of currency to recipient.
func EncodeTransfer(recipient common.Address, currency domain.Currency, value *big.Int) (passkeywallet.Call, error) {
	if currency.Native {
		return passkeywallet.Call{To: recipient, Value: new(big.Int).Set(value)}, nil
	}

	data, err := erc20.Pack("transfer", recipient, value)
	if err != nil {
		return passkeywallet.Call{}, err
	}
	return passkeywallet.Call{To: currency.Contract, Value: new(big.Int), Data: data}, nil
}
