package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/passkey-wallet/internal/domain"
)

// BoundAccount is a smart account derived from a passkey credential.
// Only AccountUsecase.BindAccount produces a usable value.
type BoundAccount struct {
	Address    common.Address           `json:"address"`
	ChainID    *big.Int                 `json:"chainId"`
	Credential domain.PasskeyCredential `json:"-"`

	client AccountClient
}

// Bound reports whether the account came from BindAccount.
func (a *BoundAccount) Bound() bool {
	return a != nil && a.client != nil
}

// Client returns the transaction client scoped to this account.
func (a *BoundAccount) Client() AccountClient {
	if a == nil {
		return nil
	}
	return a.client
}

func (a *BoundAccount) lockKey() string {
	chain := "0"
	if a.ChainID != nil {
		chain = a.ChainID.String()
	}
	return chain + ":" + a.Address.Hex()
}

// AccountUsecase binds credentials to smart accounts.
type AccountUsecase struct {
	factory AccountFactory
}

func NewAccountUsecase(factory AccountFactory) *AccountUsecase {
	return &AccountUsecase{factory: factory}
}

// BindAccount derives the account whose sole owner is credential. The result is
// deterministic for a given credential and chain configuration.
func (uc *AccountUsecase) BindAccount(ctx context.Context, credential domain.PasskeyCredential) (*BoundAccount, error) {
	const op = "AccountUsecase.BindAccount"
	ctx, span := tracer.Start(ctx, "Account.Usecase.BindAccount")
	defer span.End()

	if uc.factory == nil {
		return nil, domain.E(domain.KindNotInitialized, op, errors.New("execution client is not configured"))
	}
	if credential.ID == "" {
		return nil, domain.E(domain.KindBindingFailed, op, errors.New("credential id is required"))
	}
	span.SetAttributes(attribute.String("CredentialID", credential.ID))

	client, err := uc.factory.Derive(ctx, credential)
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "derive smart account failed",
			slog.String("credentialId", credential.ID),
			slog.String("error", err.Error()),
			slog.String("module", "account"),
		)
		if errors.Is(err, domain.ErrNotInitialized) {
			return nil, domain.E(domain.KindNotInitialized, op, err, credential.ID)
		}
		return nil, domain.E(domain.KindBindingFailed, op, err, credential.ID)
	}

	account := &BoundAccount{
		Address:    client.Address(),
		ChainID:    uc.factory.ChainID(),
		Credential: credential,
		client:     client,
	}
	span.SetAttributes(attribute.String("Address", account.Address.Hex()))

	return account, nil
}
