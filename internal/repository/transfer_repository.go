package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ContractLand/terra-bridge-contracts/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransferRepository defines the interface for transfer lifecycle data access.
// Events for one transfer can arrive in any order relative to each other, so
// every write is an upsert that only fills its own columns.
type TransferRepository interface {
	RecordInitiated(ctx context.Context, t *models.Transfer) error
	RecordCollected(ctx context.Context, transferID, chain, messageHash, relayer string, at time.Time) error
	RecordExecuted(ctx context.Context, t *models.Transfer) error
	GetByTransferID(ctx context.Context, transferID string) (*models.Transfer, error)
	FindByStatus(ctx context.Context, status models.TransferStatus, page, limit int) ([]*models.Transfer, int64, error)
	FindByRecipient(ctx context.Context, recipient string, page, limit int) ([]*models.Transfer, int64, error)
}

type transferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{db: db}
}

// ErrTransferNotFound is returned by GetByTransferID for unknown ids.
var ErrTransferNotFound = errors.New("transfer not found")

func (r *transferRepository) RecordInitiated(ctx context.Context, t *models.Transfer) error {
	if t.Status == "" {
		t.Status = models.TransferStatusInitiated
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "transfer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_chain", "source_asset", "target_asset", "sender", "recipient", "amount", "initiated_at", "updated_at",
		}),
	}).Create(t).Error
}

func (r *transferRepository) RecordCollected(ctx context.Context, transferID, chain, messageHash, relayer string, at time.Time) error {
	t := &models.Transfer{
		TransferID:  transferID,
		Status:      models.TransferStatusCollected,
		TargetChain: chain,
		MessageHash: messageHash,
		Relayer:     relayer,
		CollectedAt: &at,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "transfer_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"target_chain": chain,
			"message_hash": messageHash,
			"relayer":      relayer,
			"collected_at": at,
			"updated_at":   time.Now(),
			// executed is terminal
			"status": gorm.Expr("CASE WHEN bridge_transfers.status = ? THEN bridge_transfers.status ELSE ? END",
				models.TransferStatusExecuted, models.TransferStatusCollected),
		}),
	}).Create(t).Error
}

func (r *transferRepository) RecordExecuted(ctx context.Context, t *models.Transfer) error {
	t.Status = models.TransferStatusExecuted
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "transfer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "target_chain", "target_asset", "recipient", "paid_amount", "message_hash", "relayer", "executed_at", "updated_at",
		}),
	}).Create(t).Error
}

func (r *transferRepository) GetByTransferID(ctx context.Context, transferID string) (*models.Transfer, error) {
	var t models.Transfer
	err := r.db.WithContext(ctx).Where("transfer_id = ?", transferID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transferRepository) FindByStatus(ctx context.Context, status models.TransferStatus, page, limit int) ([]*models.Transfer, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transfer{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	return r.paginate(query, page, limit)
}

func (r *transferRepository) FindByRecipient(ctx context.Context, recipient string, page, limit int) ([]*models.Transfer, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transfer{}).Where("recipient = ?", recipient)
	return r.paginate(query, page, limit)
}

func (r *transferRepository) paginate(query *gorm.DB, page, limit int) ([]*models.Transfer, int64, error) {
	var transfers []*models.Transfer
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, limit = normalizePage(page, limit)
	if err := query.Offset((page - 1) * limit).Limit(limit).Order("created_at DESC").Find(&transfers).Error; err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}
