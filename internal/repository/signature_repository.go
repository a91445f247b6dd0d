package repository

import (
	"context"
	"errors"

	"github.com/ContractLand/terra-bridge-contracts/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignatureRepository defines the interface for validator signature data access
type SignatureRepository interface {
	// EnsureSigned stores msg once per (chain, message hash, signer).
	EnsureSigned(ctx context.Context, msg *models.SignedMessage) error
	// MarkCollected stores the quorum record and flags the responsible signer.
	MarkCollected(ctx context.Context, msg *models.CollectedMessage) error
	FindSigned(ctx context.Context, chain, messageHash string) ([]*models.SignedMessage, error)
	GetCollected(ctx context.Context, chain, messageHash string) (*models.CollectedMessage, error)
}

type signatureRepository struct {
	db *gorm.DB
}

func NewSignatureRepository(db *gorm.DB) SignatureRepository {
	return &signatureRepository{db: db}
}

func (r *signatureRepository) EnsureSigned(ctx context.Context, msg *models.SignedMessage) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "message_hash"}, {Name: "signer"}},
		DoNothing: true,
	}).Create(msg).Error
}

func (r *signatureRepository) MarkCollected(ctx context.Context, msg *models.CollectedMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain"}, {Name: "message_hash"}},
			DoNothing: true,
		}).Create(msg).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.SignedMessage{}).
			Where("chain = ? AND message_hash = ? AND signer = ?", msg.Chain, msg.MessageHash, msg.ResponsibleSigner).
			Update("is_responsible", true).Error
	})
}

func (r *signatureRepository) FindSigned(ctx context.Context, chain, messageHash string) ([]*models.SignedMessage, error) {
	var msgs []*models.SignedMessage
	err := r.db.WithContext(ctx).
		Where("chain = ? AND message_hash = ?", chain, messageHash).
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *signatureRepository) GetCollected(ctx context.Context, chain, messageHash string) (*models.CollectedMessage, error) {
	var msg models.CollectedMessage
	err := r.db.WithContext(ctx).Where("chain = ? AND message_hash = ?", chain, messageHash).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
