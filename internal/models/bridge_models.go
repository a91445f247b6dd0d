package models

import (
	"time"
)

// TransferStatus lifecycle of a cross-chain transfer as seen by this node
type TransferStatus string

const (
	TransferStatusInitiated TransferStatus = "initiated" // locked or burned on the source chain
	TransferStatusCollected TransferStatus = "collected" // quorum of signatures collected on the destination
	TransferStatusExecuted  TransferStatus = "executed"  // paid out on the destination chain
)

// BridgeEvent every committed event, as published
type BridgeEvent struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID     string    `json:"event_id" gorm:"size:36;uniqueIndex;not null"`
	Chain       string    `json:"chain" gorm:"size:32;index;not null"`
	Name        string    `json:"name" gorm:"size:64;index;not null"`
	Contract    string    `json:"contract" gorm:"size:42;not null"`
	TransferID  string    `json:"transfer_id" gorm:"size:66;index"`
	MessageHash string    `json:"message_hash" gorm:"size:66;index"`
	Asset       string    `json:"asset" gorm:"size:42"`
	Recipient   string    `json:"recipient" gorm:"size:42;index"`
	Sender      string    `json:"sender" gorm:"size:42;index"`
	Signer      string    `json:"signer" gorm:"size:42"`
	Amount      string    `json:"amount"`
	Attributes  string    `json:"attributes" gorm:"type:jsonb"`
	EmittedAt   time.Time `json:"emitted_at" gorm:"index;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (BridgeEvent) TableName() string {
	return "bridge_events"
}

// Transfer one transfer, keyed by the reference the source chain assigned.
// Amount is in canonical units, PaidAmount in the target chain's units.
type Transfer struct {
	ID          uint64         `json:"id" gorm:"primaryKey;autoIncrement"`
	TransferID  string         `json:"transfer_id" gorm:"size:66;uniqueIndex;not null"`
	Status      TransferStatus `json:"status" gorm:"size:16;index;not null;default:'initiated'"`
	SourceChain string         `json:"source_chain" gorm:"size:32;index"`
	TargetChain string         `json:"target_chain" gorm:"size:32;index"`
	SourceAsset string         `json:"source_asset" gorm:"size:42"`
	TargetAsset string         `json:"target_asset" gorm:"size:42"`
	Sender      string         `json:"sender" gorm:"size:42;index"`
	Recipient   string         `json:"recipient" gorm:"size:42;index"`
	Amount      string         `json:"amount"`
	PaidAmount  string         `json:"paid_amount"`
	MessageHash string         `json:"message_hash" gorm:"size:66;index"`
	Relayer     string         `json:"relayer" gorm:"size:42"`
	InitiatedAt *time.Time     `json:"initiated_at"`
	CollectedAt *time.Time     `json:"collected_at"`
	ExecutedAt  *time.Time     `json:"executed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Transfer) TableName() string {
	return "bridge_transfers"
}

// SignedMessage one validator signature accepted for a message hash
type SignedMessage struct {
	ID            uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Chain         string    `json:"chain" gorm:"size:32;not null;uniqueIndex:idx_signed_chain_hash_signer"`
	MessageHash   string    `json:"message_hash" gorm:"size:66;not null;uniqueIndex:idx_signed_chain_hash_signer"`
	Signer        string    `json:"signer" gorm:"size:42;not null;uniqueIndex:idx_signed_chain_hash_signer"`
	Submitter     string    `json:"submitter" gorm:"size:42"`
	Direct        bool      `json:"direct"`         // cast through a withdraw vote rather than the collector
	IsResponsible bool      `json:"is_responsible"` // completed the quorum
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (SignedMessage) TableName() string {
	return "bridge_signed_messages"
}

// CollectedMessage a message hash that reached quorum
type CollectedMessage struct {
	ID                 uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Chain              string    `json:"chain" gorm:"size:32;not null;uniqueIndex:idx_collected_chain_hash"`
	MessageHash        string    `json:"message_hash" gorm:"size:66;not null;uniqueIndex:idx_collected_chain_hash"`
	ResponsibleSigner  string    `json:"responsible_signer" gorm:"size:42;not null"`
	Relayer            string    `json:"relayer" gorm:"size:42"`
	NumSignatures      int       `json:"num_signatures" gorm:"not null"`
	RequiredSignatures int       `json:"required_signatures" gorm:"not null"`
	CreatedAt          time.Time `json:"created_at"`
}

func (CollectedMessage) TableName() string {
	return "bridge_collected_messages"
}
