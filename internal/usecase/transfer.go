package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
)

// TransferConfig holds the submission policy shared by every transfer.
type TransferConfig struct {
	// Sponsored requests paymaster sponsorship for every user operation.
	Sponsored bool
	// ConfirmationTimeout bounds the wait for a receipt. Zero waits until ctx ends.
	ConfirmationTimeout time.Duration
}

// TransferUsecase submits sponsored token transfers from bound accounts.
type TransferUsecase struct {
	registry *domain.CurrencyRegistry
	locker   AccountLocker
	journal  OperationJournal
	notifier TransferNotifier
	config   TransferConfig
	clock    func() time.Time
}

func NewTransferUsecase(
	registry *domain.CurrencyRegistry,
	locker AccountLocker,
	journal OperationJournal,
	notifier TransferNotifier,
	config TransferConfig,
) *TransferUsecase {
	return &TransferUsecase{
		registry: registry,
		locker:   locker,
		journal:  journal,
		notifier: notifier,
		config:   config,
		clock:    time.Now,
	}
}

// Transfer moves amount of currency from account to recipient and returns the
// confirmed user operation hash. It is not idempotent: a retry after a Timeout
// may transfer twice, so callers should look up the hash carried by the error
// (or the operation journal) before resubmitting.
func (uc *TransferUsecase) Transfer(ctx context.Context, req domain.TransferRequest, account *BoundAccount) (common.Hash, error) {
	const op = "TransferUsecase.Transfer"
	ctx, span := tracer.Start(ctx, "Transfer.Usecase.Transfer")
	defer span.End()

	if !account.Bound() {
		return common.Hash{}, domain.E(domain.KindAccountNotInitialized, op, errors.New("smart account not initialized"))
	}
	if uc.registry == nil {
		return common.Hash{}, domain.E(domain.KindNotInitialized, op, errors.New("currency registry is not configured"))
	}
	span.SetAttributes(
		attribute.String("Sender", account.Address.Hex()),
		attribute.String("Recipient", req.Recipient),
		attribute.String("Currency", req.Currency),
	)

	value, err := uc.registry.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		span.RecordError(err)
		return common.Hash{}, err
	}
	currency, err := uc.registry.Lookup(req.Currency)
	if err != nil {
		return common.Hash{}, err
	}

	if !passkeywallet.IsAddress(req.Recipient) {
		return common.Hash{}, domain.E(domain.KindSubmissionFailed, op, errors.New("malformed recipient address"), req.Recipient)
	}
	recipient := common.HexToAddress(req.Recipient)

	call, err := EncodeTransfer(recipient, currency, value)
	if err != nil {
		return common.Hash{}, domain.E(domain.KindTransferFailed, op, err, "encode transfer")
	}

	slog.InfoContext(ctx, "send transfer",
		slog.String("sender", account.Address.Hex()),
		slog.String("recipient", recipient.Hex()),
		slog.String("amount", req.Amount),
		slog.String("currency", currency.Code),
		slog.String("module", "transfer"),
	)

	if uc.locker != nil {
		unlock, err := uc.locker.Lock(ctx, account.lockKey())
		if err != nil {
			return common.Hash{}, domain.E(domain.KindTransferFailed, op, err, "lock account "+account.Address.Hex())
		}
		defer unlock()
	}

	hash, err := account.client.SendUserOperation(ctx, []passkeywallet.Call{call}, SendOptions{Sponsored: uc.config.Sponsored})
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "send user operation failed", slog.String("error", err.Error()), slog.String("module", "transfer"))
		return common.Hash{}, domain.E(domain.KindTransferFailed, op, err, account.Address.Hex())
	}
	span.SetAttributes(attribute.String("UserOpHash", hash.Hex()))
	slog.InfoContext(ctx, "user operation submitted", slog.String("userOpHash", hash.Hex()), slog.String("module", "transfer"))

	record := domain.OperationRecord{
		UserOpHash:  hash.Hex(),
		Sender:      account.Address.Hex(),
		Recipient:   recipient.Hex(),
		Currency:    currency.Code,
		Amount:      req.Amount,
		MinorUnits:  value.String(),
		Sponsored:   uc.config.Sponsored,
		Status:      domain.OperationSubmitted,
		SubmittedAt: uc.clock().UTC(),
	}
	if account.ChainID != nil {
		record.ChainID = account.ChainID.String()
	}
	uc.recordSubmitted(ctx, record)

	waitCtx := ctx
	if uc.config.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, uc.config.ConfirmationTimeout)
		defer cancel()
	}

	receipt, err := account.client.WaitForReceipt(waitCtx, hash)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return hash, domain.E(domain.KindTimeout, op, err, hash.Hex())
		}
		return hash, domain.E(domain.KindTransferFailed, op, err, hash.Hex())
	}

	if !receipt.Success {
		reason := receipt.Reason
		if reason == "" {
			reason = "user operation reverted"
		}
		record.Status = domain.OperationFailed
		record.TransactionHash = receipt.Receipt.TransactionHash.Hex()
		record.Reason = reason
		uc.recordResolved(ctx, record)
		return hash, domain.E(domain.KindTransferFailed, op, fmt.Errorf("%s", reason), hash.Hex())
	}

	record.Status = domain.OperationConfirmed
	record.TransactionHash = receipt.Receipt.TransactionHash.Hex()
	uc.recordResolved(ctx, record)

	slog.InfoContext(ctx, "transfer confirmed",
		slog.String("userOpHash", receipt.UserOpHash.Hex()),
		slog.String("transactionHash", record.TransactionHash),
		slog.String("module", "transfer"),
	)

	if receipt.UserOpHash == (common.Hash{}) {
		return hash, nil
	}
	return receipt.UserOpHash, nil
}

// Operation returns the journal entry for a submitted user operation.
func (uc *TransferUsecase) Operation(ctx context.Context, userOpHash string) (domain.OperationRecord, error) {
	if uc.journal == nil {
		return domain.OperationRecord{}, domain.E(domain.KindNotInitialized, "TransferUsecase.Operation", errors.New("operation journal is not configured"))
	}
	return uc.journal.Get(ctx, userOpHash)
}

// Journal and notifier failures never undo a submitted operation; they are logged.
func (uc *TransferUsecase) recordSubmitted(ctx context.Context, record domain.OperationRecord) {
	if uc.journal != nil {
		if err := uc.journal.Submitted(ctx, record); err != nil {
			slog.ErrorContext(ctx, "journal submitted operation failed", slog.String("userOpHash", record.UserOpHash), slog.String("error", err.Error()), slog.String("module", "transfer"))
		}
	}
	uc.publish(ctx, record)
}

func (uc *TransferUsecase) recordResolved(ctx context.Context, record domain.OperationRecord) {
	if uc.journal != nil {
		if err := uc.journal.Resolve(ctx, record.UserOpHash, record.Status, record.TransactionHash, record.Reason); err != nil {
			slog.ErrorContext(ctx, "journal resolve operation failed", slog.String("userOpHash", record.UserOpHash), slog.String("error", err.Error()), slog.String("module", "transfer"))
		}
	}
	uc.publish(ctx, record)
}

func (uc *TransferUsecase) publish(ctx context.Context, record domain.OperationRecord) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Publish(ctx, record); err != nil {
		slog.WarnContext(ctx, "publish transfer event failed", slog.String("userOpHash", record.UserOpHash), slog.String("error", err.Error()), slog.String("module", "transfer"))
	}
}
