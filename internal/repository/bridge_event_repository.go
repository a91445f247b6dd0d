package repository

import (
	"context"

	"github.com/ContractLand/terra-bridge-contracts/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BridgeEventRepository defines the interface for event log data access
type BridgeEventRepository interface {
	// Create stores event. An event id that is already stored is ignored.
	Create(ctx context.Context, event *models.BridgeEvent) error
	FindByChain(ctx context.Context, chain, name string, page, limit int) ([]*models.BridgeEvent, int64, error)
	FindByTransferID(ctx context.Context, transferID string) ([]*models.BridgeEvent, error)
	FindByMessageHash(ctx context.Context, messageHash string) ([]*models.BridgeEvent, error)
}

type bridgeEventRepository struct {
	db *gorm.DB
}

func NewBridgeEventRepository(db *gorm.DB) BridgeEventRepository {
	return &bridgeEventRepository{db: db}
}

func (r *bridgeEventRepository) Create(ctx context.Context, event *models.BridgeEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event).Error
}

func (r *bridgeEventRepository) FindByChain(ctx context.Context, chain, name string, page, limit int) ([]*models.BridgeEvent, int64, error) {
	var events []*models.BridgeEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&models.BridgeEvent{})
	if chain != "" {
		query = query.Where("chain = ?", chain)
	}
	if name != "" {
		query = query.Where("name = ?", name)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit = normalizePage(page, limit)
	err := query.Offset((page - 1) * limit).Limit(limit).Order("emitted_at DESC, id DESC").Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *bridgeEventRepository) FindByTransferID(ctx context.Context, transferID string) ([]*models.BridgeEvent, error) {
	var events []*models.BridgeEvent
	err := r.db.WithContext(ctx).Where("transfer_id = ?", transferID).Order("emitted_at ASC, id ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *bridgeEventRepository) FindByMessageHash(ctx context.Context, messageHash string) ([]*models.BridgeEvent, error) {
	var events []*models.BridgeEvent
	err := r.db.WithContext(ctx).Where("message_hash = ?", messageHash).Order("emitted_at ASC, id ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// normalizePage clamps 1-based paging parameters.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
