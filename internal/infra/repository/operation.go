package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/infra/database/models"
)

// OperationRepository is the gorm-backed operation journal.
type OperationRepository struct {
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

func (r *OperationRepository) Submitted(ctx context.Context, record domain.OperationRecord) error {
	if record.Status == "" {
		record.Status = domain.OperationSubmitted
	}
	model := toOperationModel(record)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// Resolve moves an operation forward. Backward or repeated transitions are rejected.
func (r *OperationRepository) Resolve(ctx context.Context, userOpHash string, status domain.OperationStatus, txHash string, reason string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Operation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_op_hash = ?", userOpHash).
			Take(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "operation " + userOpHash}
			}
			return err
		}

		updates, err := resolution(current, status, txHash, reason, time.Now().UTC())
		if err != nil {
			return err
		}
		return tx.Model(&current).Updates(updates).Error
	})
}

// resolution builds the column updates for moving current to status.
func resolution(current models.Operation, status domain.OperationStatus, txHash string, reason string, now time.Time) (map[string]any, error) {
	from := domain.OperationStatus(current.Status)
	if !from.CanTransition(status) {
		return nil, fmt.Errorf("operation %s cannot move from %s to %s", current.UserOpHash, from, status)
	}

	updates := map[string]any{
		"status":           string(status),
		"transaction_hash": txHash,
		"reason":           reason,
	}
	if status.IsTerminal() {
		updates["resolved_at"] = now
	}
	return updates, nil
}

func (r *OperationRepository) Get(ctx context.Context, userOpHash string) (domain.OperationRecord, error) {
	var model models.Operation
	err := r.db.WithContext(ctx).Where("user_op_hash = ?", userOpHash).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.OperationRecord{}, domain.NotFoundError{Resource: "operation " + userOpHash}
		}
		return domain.OperationRecord{}, err
	}
	return toOperationRecord(model), nil
}

func toOperationModel(record domain.OperationRecord) models.Operation {
	return models.Operation{
		UserOpHash:      record.UserOpHash,
		ChainID:         record.ChainID,
		Sender:          record.Sender,
		Recipient:       record.Recipient,
		Currency:        record.Currency,
		Amount:          record.Amount,
		MinorUnits:      record.MinorUnits,
		Sponsored:       record.Sponsored,
		Status:          string(record.Status),
		TransactionHash: record.TransactionHash,
		Reason:          record.Reason,
		SubmittedAt:     record.SubmittedAt,
		ResolvedAt:      record.ResolvedAt,
	}
}

func toOperationRecord(model models.Operation) domain.OperationRecord {
	return domain.OperationRecord{
		UserOpHash:      model.UserOpHash,
		ChainID:         model.ChainID,
		Sender:          model.Sender,
		Recipient:       model.Recipient,
		Currency:        model.Currency,
		Amount:          model.Amount,
		MinorUnits:      model.MinorUnits,
		Sponsored:       model.Sponsored,
		Status:          domain.OperationStatus(model.Status),
		TransactionHash: model.TransactionHash,
		Reason:          model.Reason,
		SubmittedAt:     model.SubmittedAt,
		ResolvedAt:      model.ResolvedAt,
	}
}
