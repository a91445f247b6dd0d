package metrics

import (
	"context"

	"github.com/ContractLand/terra-bridge-contracts/internal/events"
)

// Observer returns an event sink that feeds the protocol counters.
func Observer() events.Sink {
	return events.SinkFunc(func(_ context.Context, ev events.Event) error {
		EventsPublished.WithLabelValues(ev.Chain, ev.Name).Inc()

		switch ev.Name {
		case events.SignatureSubmitted:
			SignaturesAccepted.WithLabelValues(ev.Chain, "collected").Inc()
		case events.SignedForTransfer:
			SignaturesAccepted.WithLabelValues(ev.Chain, "direct").Inc()
		case events.CollectedSignatures:
			QuorumsReached.WithLabelValues(ev.Chain).Inc()
		case events.TransferInitiated:
			TransfersInitiated.WithLabelValues(ev.Chain).Inc()
		case events.TransferExecuted:
			TransfersExecuted.WithLabelValues(ev.Chain).Inc()
		}
		return nil
	})
}
