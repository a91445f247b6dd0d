package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/metrics"
	"github.com/ContractLand/terra-bridge-contracts/internal/models"
	"github.com/ContractLand/terra-bridge-contracts/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ErrAuditQueueFull is returned by Publish when the writer is behind.
var ErrAuditQueueFull = errors.New("audit queue full")

// AuditService persists committed events and folds them into transfer and
// signature records. Publish only queues; a single writer drains the queue.
type AuditService struct {
	events     repository.BridgeEventRepository
	transfers  repository.TransferRepository
	signatures repository.SignatureRepository
	log        *logrus.Entry

	queue  chan events.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewAuditService(
	eventRepo repository.BridgeEventRepository,
	transferRepo repository.TransferRepository,
	signatureRepo repository.SignatureRepository,
	logger *logrus.Logger,
	queueSize int,
) *AuditService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &AuditService{
		events:     eventRepo,
		transfers:  transferRepo,
		signatures: signatureRepo,
		log:        logger.WithField("component", "audit"),
		queue:      make(chan events.Event, queueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *AuditService) Start() {
	s.log.Info("🚀 Starting audit writer")
	s.wg.Add(1)
	go s.run()
}

// Stop drains what is already queued and waits for the writer to exit.
func (s *AuditService) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.log.Info("✅ Audit writer stopped")
}

func (s *AuditService) Publish(_ context.Context, ev events.Event) error {
	select {
	case s.queue <- ev:
		return nil
	default:
		return ErrAuditQueueFull
	}
}

func (s *AuditService) run() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		select {
		case ev := <-s.queue:
			s.write(ctx, ev)
		case <-s.stopCh:
			for {
				select {
				case ev := <-s.queue:
					s.write(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (s *AuditService) write(ctx context.Context, ev events.Event) {
	start := time.Now()
	err := s.Record(ctx, ev)
	metrics.DBQueryDuration.WithLabelValues("audit_record").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EventSinkErrors.WithLabelValues(ev.Chain).Inc()
		s.log.WithFields(logrus.Fields{
			"chain": ev.Chain,
			"event": ev.Name,
			"id":    ev.ID,
			"error": err.Error(),
		}).Error("failed to record event")
	}
}

// Record writes ev synchronously.
func (s *AuditService) Record(ctx context.Context, ev events.Event) error {
	row, err := eventRow(ev)
	if err != nil {
		return err
	}
	if err := s.events.Create(ctx, row); err != nil {
		return err
	}

	at := ev.Timestamp
	switch ev.Name {
	case events.TransferInitiated:
		return s.transfers.RecordInitiated(ctx, &models.Transfer{
			TransferID:  ev.TransferID.Hex(),
			SourceChain: ev.Chain,
			SourceAsset: ev.Attr("localAsset"),
			TargetAsset: ev.Asset.Hex(),
			Sender:      ev.Sender.Hex(),
			Recipient:   ev.Recipient.Hex(),
			Amount:      amountString(ev),
			InitiatedAt: &at,
		})

	case events.SignatureSubmitted:
		return s.signatures.EnsureSigned(ctx, &models.SignedMessage{
			Chain:       ev.Chain,
			MessageHash: ev.MessageHash.Hex(),
			Signer:      ev.Signer.Hex(),
			Submitter:   ev.Sender.Hex(),
		})

	case events.SignedForTransfer:
		return s.signatures.EnsureSigned(ctx, &models.SignedMessage{
			Chain:       ev.Chain,
			MessageHash: ev.MessageHash.Hex(),
			Signer:      ev.Signer.Hex(),
			Submitter:   ev.Signer.Hex(),
			Direct:      true,
		})

	case events.CollectedSignatures:
		votes, _ := strconv.Atoi(ev.Attr("votes"))
		required, _ := strconv.Atoi(ev.Attr("requiredSignatures"))
		if err := s.signatures.MarkCollected(ctx, &models.CollectedMessage{
			Chain:              ev.Chain,
			MessageHash:        ev.MessageHash.Hex(),
			ResponsibleSigner:  ev.Signer.Hex(),
			Relayer:            ev.Sender.Hex(),
			NumSignatures:      votes,
			RequiredSignatures: required,
		}); err != nil {
			return err
		}
		return s.transfers.RecordCollected(ctx, ev.TransferID.Hex(), ev.Chain, ev.MessageHash.Hex(), ev.Sender.Hex(), at)

	case events.TransferExecuted:
		return s.transfers.RecordExecuted(ctx, &models.Transfer{
			TransferID:  ev.TransferID.Hex(),
			TargetChain: ev.Chain,
			TargetAsset: ev.Asset.Hex(),
			Recipient:   ev.Recipient.Hex(),
			Amount:      amountString(ev),
			PaidAmount:  ev.Attr("localAmount"),
			MessageHash: ev.MessageHash.Hex(),
			Relayer:     ev.Sender.Hex(),
			ExecutedAt:  &at,
		})
	}
	return nil
}

func eventRow(ev events.Event) (*models.BridgeEvent, error) {
	attrs := "{}"
	if len(ev.Attributes) > 0 {
		raw, err := json.Marshal(ev.Attributes)
		if err != nil {
			return nil, err
		}
		attrs = string(raw)
	}
	row := &models.BridgeEvent{
		EventID:    ev.ID,
		Chain:      ev.Chain,
		Name:       ev.Name,
		Contract:   ev.Contract.Hex(),
		Asset:      ev.Asset.Hex(),
		Recipient:  ev.Recipient.Hex(),
		Sender:     ev.Sender.Hex(),
		Signer:     ev.Signer.Hex(),
		Amount:     amountString(ev),
		Attributes: attrs,
		EmittedAt:  ev.Timestamp,
	}
	if ev.TransferID != (common.Hash{}) {
		row.TransferID = ev.TransferID.Hex()
	}
	if ev.MessageHash != (common.Hash{}) {
		row.MessageHash = ev.MessageHash.Hex()
	}
	return row, nil
}

func amountString(ev events.Event) string {
	if ev.Amount == nil {
		return ""
	}
	return ev.Amount.String()
}
