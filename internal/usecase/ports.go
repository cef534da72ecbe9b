package usecase

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
)

// LoginRequest selects a credential either by username or by credential id.
type LoginRequest struct {
	Username     domain.IdentityKey
	CredentialID string
}

// PasskeyTransport runs WebAuthn ceremonies against the relying-party service.
// Register must report an already registered identity with domain.ErrCredentialExists.
type PasskeyTransport interface {
	Register(ctx context.Context, username domain.IdentityKey) (domain.PasskeyCredential, error)
	Login(ctx context.Context, req LoginRequest) (domain.PasskeyCredential, error)
}

// AccountFactory derives the smart account owned by a credential on one chain.
type AccountFactory interface {
	ChainID() *big.Int
	Derive(ctx context.Context, credential domain.PasskeyCredential) (AccountClient, error)
}

// SendOptions controls how a user operation is submitted.
type SendOptions struct {
	Sponsored bool
}

// AccountClient submits user operations for exactly one account on one chain.
type AccountClient interface {
	Address() common.Address
	SendUserOperation(ctx context.Context, calls []passkeywallet.Call, opts SendOptions) (common.Hash, error)
	WaitForReceipt(ctx context.Context, userOpHash common.Hash) (*passkeywallet.UserOperationReceipt, error)
}

// AccountLocker serializes work per account key. The returned func releases the lock.
type AccountLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// OperationJournal records the user operation lifecycle.
type OperationJournal interface {
	Submitted(ctx context.Context, record domain.OperationRecord) error
	Resolve(ctx context.Context, userOpHash string, status domain.OperationStatus, txHash string, reason string) error
	Get(ctx context.Context, userOpHash string) (domain.OperationRecord, error)
}

// TransferNotifier publishes lifecycle events to interested subscribers.
type TransferNotifier interface {
	Publish(ctx context.Context, record domain.OperationRecord) error
}

// WalletDirectory stores identity -> credential/account links on behalf of callers.
type WalletDirectory interface {
	Save(ctx context.Context, wallet domain.Wallet) error
	Get(ctx context.Context, identityKey domain.IdentityKey) (domain.Wallet, error)
}
