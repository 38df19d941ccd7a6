package consumers

import (
	"ledger-service/internal/services"

	"go.uber.org/zap"
)

// CommissionProcessor runs the queued jobs: commission distribution and
// reversal against the ledger, and audit event delivery.
type CommissionProcessor struct {
	Distribution *services.DistributionService
	Audit        *services.AuditService
	Log          *zap.Logger
}

func NewCommissionProcessor(distribution *services.DistributionService, audit *services.AuditService, log *zap.Logger) *CommissionProcessor {
	return &CommissionProcessor{
		Distribution: distribution,
		Audit:        audit,
		Log:          log,
	}
}

// ProcessDistribute pays out commission for one SUCCESS transaction.
// Returning the error lets the queue retry transient failures; the
// distributor's own earnings guard makes redelivery safe.
func (p *CommissionProcessor) ProcessDistribute(data services.CommissionJobPayload) error {
	if err := p.Distribution.Distribute(data.TransactionId); err != nil {
		p.Log.Error("commission distribution failed",
			zap.Int("transaction_id", data.TransactionId), zap.Error(err))
		return err
	}
	return nil
}

// ProcessReverse claws back a prior distribution.
func (p *CommissionProcessor) ProcessReverse(data services.CommissionJobPayload) error {
	if err := p.Distribution.Reverse(data.TransactionId); err != nil {
		p.Log.Error("commission reversal failed",
			zap.Int("transaction_id", data.TransactionId), zap.Error(err))
		return err
	}
	return nil
}

// ProcessAuditEvent persists and delivers one audit event.
func (p *CommissionProcessor) ProcessAuditEvent(event services.AuditEvent) {
	p.Audit.Deliver(event)
}
