package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	pkgerrors "github.com/pkg/errors"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/usecase"
)

// AccountClient submits user operations for one smart account.
type AccountClient struct {
	client  ChainClient
	config  ChainConfig
	address common.Address
	owner   []byte
	signer  *WebAuthnSigner
}

func (c *AccountClient) Address() common.Address {
	return c.address
}

// BuildUserOperation fills every field except the final signature.
func (c *AccountClient) BuildUserOperation(ctx context.Context, calls []passkeywallet.Call, opts usecase.SendOptions) (*passkeywallet.UserOperation, error) {
	callData, err := encodeCalls(calls)
	if err != nil {
		return nil, err
	}

	nonce, err := c.nonce(ctx)
	if err != nil {
		return nil, err
	}

	maxFee, maxPriorityFee, err := c.client.SuggestFees(ctx)
	if err != nil {
		return nil, err
	}

	op := &passkeywallet.UserOperation{
		Sender:               c.address,
		Nonce:                (*hexutil.Big)(nonce),
		CallData:             callData,
		CallGasLimit:         new(hexutil.Big),
		VerificationGasLimit: new(hexutil.Big),
		PreVerificationGas:   new(hexutil.Big),
		MaxFeePerGas:         (*hexutil.Big)(maxFee),
		MaxPriorityFeePerGas: (*hexutil.Big)(maxPriorityFee),
		Signature:            c.signer.StubSignature(),
	}

	code, err := c.client.CodeAt(ctx, c.address)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		factoryData, err := factoryABI.Pack("createAccount", [][]byte{c.owner}, big.NewInt(0))
		if err != nil {
			return nil, pkgerrors.Wrap(err, "encode createAccount")
		}
		factory := c.config.Factory
		op.Factory = &factory
		op.FactoryData = factoryData
	}

	var stub *passkeywallet.PaymasterData
	if opts.Sponsored {
		stub, err = c.client.GetPaymasterStubData(ctx, op, c.config.EntryPoint, c.config.ChainID, c.config.PaymasterContext)
		if err != nil {
			return nil, err
		}
		applyPaymaster(op, stub)
	}

	estimate, err := c.client.EstimateUserOperationGas(ctx, op, c.config.EntryPoint)
	if err != nil {
		return nil, err
	}
	op.CallGasLimit = estimate.CallGasLimit
	op.VerificationGasLimit = estimate.VerificationGasLimit
	op.PreVerificationGas = estimate.PreVerificationGas
	if estimate.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = estimate.PaymasterVerificationGasLimit
	}
	if estimate.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = estimate.PaymasterPostOpGasLimit
	}

	if opts.Sponsored && !stub.IsFinal {
		final, err := c.client.GetPaymasterData(ctx, op, c.config.EntryPoint, c.config.ChainID, c.config.PaymasterContext)
		if err != nil {
			return nil, err
		}
		applyPaymaster(op, final)
	}

	return op, nil
}

func (c *AccountClient) SendUserOperation(ctx context.Context, calls []passkeywallet.Call, opts usecase.SendOptions) (common.Hash, error) {
	op, err := c.BuildUserOperation(ctx, calls, opts)
	if err != nil {
		return common.Hash{}, domain.E(domain.KindSubmissionFailed, "AccountClient.SendUserOperation", err, c.address.Hex())
	}

	hash := op.Hash(c.config.EntryPoint, c.config.ChainID)
	signature, err := c.signer.Sign(ctx, hash)
	if err != nil {
		return common.Hash{}, domain.E(domain.KindAuthenticationFailed, "AccountClient.SendUserOperation", err, c.address.Hex())
	}
	op.Signature = signature

	sent, err := c.client.SendUserOperation(ctx, op, c.config.EntryPoint)
	if err != nil {
		return common.Hash{}, domain.E(domain.KindSubmissionFailed, "AccountClient.SendUserOperation", err, c.address.Hex())
	}
	if sent != hash {
		slog.WarnContext(ctx, "bundler returned a different user operation hash",
			slog.String("local", hash.Hex()),
			slog.String("bundler", sent.Hex()),
			slog.String("module", "gateway"),
		)
	}
	return sent, nil
}

// WaitForReceipt polls the bundler until the operation is included or ctx ends.
func (c *AccountClient) WaitForReceipt(ctx context.Context, userOpHash common.Hash) (*passkeywallet.UserOperationReceipt, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.GetUserOperationReceipt(ctx, userOpHash)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *AccountClient) nonce(ctx context.Context) (*big.Int, error) {
	data, err := entryPointABI.Pack("getNonce", c.address, big.NewInt(0))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode getNonce")
	}
	out, err := c.client.CallContract(ctx, c.config.EntryPoint, data)
	if err != nil {
		return nil, err
	}
	values, err := entryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "decode getNonce")
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getNonce returned %T", values[0])
	}
	return nonce, nil
}

type accountCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

func encodeCalls(calls []passkeywallet.Call) ([]byte, error) {
	switch len(calls) {
	case 0:
		return nil, fmt.Errorf("no calls")
	case 1:
		return accountABI.Pack("execute", calls[0].To, valueOf(calls[0]), calls[0].Data)
	}
	batch := make([]accountCall, len(calls))
	for i, call := range calls {
		batch[i] = accountCall{Target: call.To, Value: valueOf(call), Data: call.Data}
	}
	return accountABI.Pack("executeBatch", batch)
}

func valueOf(call passkeywallet.Call) *big.Int {
	if call.Value == nil {
		return new(big.Int)
	}
	return call.Value
}

func applyPaymaster(op *passkeywallet.UserOperation, data *passkeywallet.PaymasterData) {
	if data == nil {
		return
	}
	op.Paymaster = data.Paymaster
	op.PaymasterData = data.PaymasterData
	if data.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = data.PaymasterVerificationGasLimit
	}
	if data.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = data.PaymasterPostOpGasLimit
	}
}
