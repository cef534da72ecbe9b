package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/infra/database/models"
)

// WalletRepository stores identity -> credential/account links.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Save(ctx context.Context, wallet domain.Wallet) error {
	model := models.Wallet{
		IdentityKey:  string(wallet.IdentityKey),
		CredentialID: wallet.Credential.ID,
		RPID:         wallet.Credential.RPID,
		PublicKey:    wallet.Credential.PublicKey,
		Address:      wallet.Address,
		ChainID:      wallet.ChainID,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"credential_id", "rp_id", "public_key", "address", "chain_id"}),
	}).Create(&model).Error
}

func (r *WalletRepository) Get(ctx context.Context, identityKey domain.IdentityKey) (domain.Wallet, error) {
	var model models.Wallet
	err := r.db.WithContext(ctx).Where("identity_key = ?", string(identityKey)).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Wallet{}, domain.NotFoundError{Resource: "wallet " + string(identityKey)}
		}
		return domain.Wallet{}, err
	}
	return domain.Wallet{
		IdentityKey: domain.IdentityKey(model.IdentityKey),
		Credential: domain.PasskeyCredential{
			ID:        model.CredentialID,
			RPID:      model.RPID,
			PublicKey: model.PublicKey,
		},
		Address:      model.Address,
		ChainID:      model.ChainID,
		RegisteredAt: model.CDate,
	}, nil
}
