package services

import (
	"fmt"
	"math"
	"time"

	"ledger-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemUserId is the virtual payer funding the top-of-chain leg.
const SystemUserId = 0

const distributionActor = "commission-engine"

// PayoutInstruction is one leg of a distribution: FromUserId pays ToUserId.
// FromUserId is SystemUserId for the pool leg.
type PayoutInstruction struct {
	FromUserId      int
	ToUserId        int
	Amount          int64
	Level           int
	CommissionType  string
	CommissionValue float64
	Narration       string
	Metadata        models.EarningMetadata
}

// applyRule computes a rule amount against a base. FLAT values are already
// minor units; PERCENTAGE rounds half away from zero.
func applyRule(commissionType string, value float64, base int64) int64 {
	if commissionType == models.CommissionTypePercentage {
		return int64(math.Round(float64(base) * value / 100))
	}
	return int64(math.Round(value))
}

// ComputePayouts turns a resolved chain (top first) and the transaction base
// amount into the commission pool and the ordered payout legs.
//
// The top member's rule applied to the base amount produces the pool. Every
// member after the top, except the last, takes its own rule of the pool still
// remaining; the last member takes the pure remainder, so the legs sum to the
// pool by construction. A mid-chain FLAT rule larger than the remainder is
// clamped to it (recorded in metadata) so no leg can go negative. The
// verification step re-sums the legs: a drift of one minor unit is absorbed
// into the last leg, anything larger is a calculation bug and fails hard.
func ComputePayouts(chain []ChainMember, baseAmount int64) ([]PayoutInstruction, int64, error) {
	if len(chain) == 0 {
		return nil, 0, fmt.Errorf("%w: empty chain", ErrChainValidation)
	}
	if baseAmount < 0 {
		return nil, 0, ErrInvalidAmount
	}

	top := chain[0]
	pool := applyRule(top.CommissionType, top.CommissionValue, baseAmount)
	if pool <= 0 {
		return nil, 0, nil
	}

	instructions := []PayoutInstruction{{
		FromUserId:      SystemUserId,
		ToUserId:        top.UserId,
		Amount:          pool,
		Level:           top.Level,
		CommissionType:  top.CommissionType,
		CommissionValue: top.CommissionValue,
		Narration:       fmt.Sprintf("commission pool, level %d", top.Level),
	}}
	if len(chain) == 1 {
		return instructions, pool, nil
	}

	remaining := pool
	shares := make([]int64, len(chain)-1)
	metas := make([]models.EarningMetadata, len(chain)-1)
	for i := 1; i < len(chain)-1; i++ {
		m := chain[i]
		share := applyRule(m.CommissionType, m.CommissionValue, remaining)
		if m.CommissionType == models.CommissionTypeFlat && share > remaining {
			metas[i-1].Clamp = &models.FlatClamp{ConfiguredAmount: share, ClampedTo: remaining}
			share = remaining
		}
		shares[i-1] = share
		remaining -= share
	}
	// The bottom member's own rule is deliberately not applied; it takes
	// whatever remains.
	shares[len(shares)-1] = remaining

	var sum int64
	for _, share := range shares {
		sum += share
	}
	if diff := pool - sum; diff != 0 {
		if diff < -1 || diff > 1 {
			return nil, 0, fmt.Errorf("%w: pool %d, shares %d", ErrDistributionMismatch, pool, sum)
		}
		last := len(shares) - 1
		shares[last] += diff
		metas[last].Rounding = &models.RoundingCorrection{
			AppliedToUserId: chain[len(chain)-1].UserId,
			Delta:           diff,
		}
	}

	for i := 1; i < len(chain); i++ {
		m := chain[i]
		instructions = append(instructions, PayoutInstruction{
			FromUserId:      chain[i-1].UserId,
			ToUserId:        m.UserId,
			Amount:          shares[i-1],
			Level:           m.Level,
			CommissionType:  m.CommissionType,
			CommissionValue: m.CommissionValue,
			Narration:       fmt.Sprintf("commission share, level %d", m.Level),
			Metadata:        metas[i-1],
		})
	}
	return instructions, pool, nil
}

// DistributionService executes computed payouts against commission wallets,
// one database transaction per full distribution so a mid-chain failure
// leaves no partial payout behind.
type DistributionService struct {
	DB         *gorm.DB
	Wallets    *WalletService
	Commission *CommissionService
	Audit      *AuditService
	Log        *zap.Logger
}

func NewDistributionService(db *gorm.DB, wallets *WalletService, commission *CommissionService, audit *AuditService, log *zap.Logger) *DistributionService {
	return &DistributionService{
		DB:         db,
		Wallets:    wallets,
		Commission: commission,
		Audit:      audit,
		Log:        log,
	}
}

// Distribute resolves, computes and pays out the commission for a SUCCESS
// transaction. Safe to re-run: a transaction that already has earnings is
// skipped, which makes queue redelivery harmless.
func (s *DistributionService) Distribute(transactionId int) error {
	var trx models.Transaction
	if err := s.DB.First(&trx, transactionId).Error; err != nil {
		return fmt.Errorf("load transaction %d: %w", transactionId, err)
	}
	if trx.Status != models.TrxStatusSuccess {
		return fmt.Errorf("transaction %d is %s: %w", transactionId, trx.Status, ErrInvalidState)
	}

	// Cheap fast path: a clearly redelivered task skips the identity call.
	// Not authoritative; the locked re-check inside the transaction is.
	var existing int64
	if err := s.DB.Model(&models.CommissionEarning{}).
		Where("transaction_id = ? AND is_reversal = ?", transactionId, false).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		s.Log.Info("commission already distributed, skipping",
			zap.Int("transaction_id", transactionId))
		return nil
	}

	chain, err := s.Commission.ResolveChain(trx.UserId, trx.ServiceId, trx.Channel)
	if err != nil {
		return err
	}
	instructions, pool, err := ComputePayouts(chain, trx.Amount)
	if err != nil {
		return err
	}
	if pool == 0 {
		s.Log.Info("zero commission pool, nothing to distribute",
			zap.Int("transaction_id", transactionId))
		return nil
	}

	var alreadyDone bool
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the transaction row so two overlapping deliveries of the
		// same task serialize here; the loser re-reads the earnings and
		// backs off instead of double-paying.
		var locked models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, transactionId).Error; err != nil {
			return err
		}
		var done int64
		if err := tx.Model(&models.CommissionEarning{}).
			Where("transaction_id = ? AND is_reversal = ?", transactionId, false).
			Count(&done).Error; err != nil {
			return err
		}
		if done > 0 {
			alreadyDone = true
			return nil
		}

		for _, ins := range instructions {
			if err := s.executeLeg(tx, &trx, ins, false); err != nil {
				return fmt.Errorf("payout leg %d -> %d: %w", ins.FromUserId, ins.ToUserId, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if alreadyDone {
		s.Log.Info("commission already distributed, skipping",
			zap.Int("transaction_id", transactionId))
		return nil
	}

	s.Log.Info("commission distributed",
		zap.Int("transaction_id", transactionId),
		zap.Int64("pool", pool),
		zap.Int("legs", len(instructions)))
	s.Audit.Emit(AuditEvent{
		Action:      "commission.distribute",
		Entity:      "transaction",
		EntityId:    fmt.Sprintf("%d", transactionId),
		PerformedBy: distributionActor,
		Status:      "DISTRIBUTED",
	})
	return nil
}

// executeLeg applies one payout leg: a SYSTEM leg only credits the recipient;
// a member leg debits the payer first, then credits the recipient. The
// earning receipt is written in the same scope. A zero-amount leg (a member
// whose rule resolved to the zero-flat fallback, or a clamped-out bottom
// share) moves no money but still gets its receipt, so the earnings trail
// covers the whole chain.
func (s *DistributionService) executeLeg(tx *gorm.DB, trx *models.Transaction, ins PayoutInstruction, reversal bool) error {
	if ins.Amount > 0 && ins.FromUserId != SystemUserId {
		_, err := s.Wallets.DebitIn(tx, DebitDTO{
			UserId:        ins.FromUserId,
			WalletType:    models.WalletTypeCommission,
			Amount:        ins.Amount,
			ReferenceType: models.RefTypeCommission,
			TransactionId: &trx.ID,
			ServiceId:     &trx.ServiceId,
			Narration:     ins.Narration,
			CreatedBy:     distributionActor,
		})
		if err != nil {
			return err
		}
	}

	if ins.Amount > 0 {
		if _, err := s.Wallets.CreditIn(tx, CreditDTO{
			UserId:        ins.ToUserId,
			WalletType:    models.WalletTypeCommission,
			Amount:        ins.Amount,
			ReferenceType: models.RefTypeCommission,
			TransactionId: &trx.ID,
			ServiceId:     &trx.ServiceId,
			Narration:     ins.Narration,
			CreatedBy:     distributionActor,
		}); err != nil {
			return err
		}
	}

	earning := models.CommissionEarning{
		UserId:          ins.ToUserId,
		ServiceId:       trx.ServiceId,
		TransactionId:   trx.ID,
		Amount:          ins.Amount,
		CommissionType:  ins.CommissionType,
		CommissionValue: ins.CommissionValue,
		Level:           ins.Level,
		Narration:       ins.Narration,
		IsReversal:      reversal,
		Metadata:        ins.Metadata,
		CreatedBy:       distributionActor,
	}
	if ins.FromUserId != SystemUserId {
		from := ins.FromUserId
		earning.FromUserId = &from
	}
	return tx.Create(&earning).Error
}

// Reverse undoes a prior distribution for a transaction. Every original leg
// is replayed inverted, last leg first, and a mirrored negative-amount
// earning is appended per recipient so history is preserved, never deleted.
func (s *DistributionService) Reverse(transactionId int) error {
	var trx models.Transaction
	if err := s.DB.First(&trx, transactionId).Error; err != nil {
		return fmt.Errorf("load transaction %d: %w", transactionId, err)
	}

	var earnings []models.CommissionEarning
	if err := s.DB.Where("transaction_id = ? AND is_reversal = ?", transactionId, false).
		Order("id ASC").Find(&earnings).Error; err != nil {
		return err
	}
	if len(earnings) == 0 {
		s.Log.Info("no earnings to reverse", zap.Int("transaction_id", transactionId))
		return nil
	}

	// Fast path only; the locked re-check inside the transaction decides.
	var reversed int64
	if err := s.DB.Model(&models.CommissionEarning{}).
		Where("transaction_id = ? AND is_reversal = ?", transactionId, true).
		Count(&reversed).Error; err != nil {
		return err
	}
	if reversed > 0 {
		s.Log.Info("commission already reversed, skipping",
			zap.Int("transaction_id", transactionId))
		return nil
	}

	now := time.Now()
	var alreadyDone bool
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, transactionId).Error; err != nil {
			return err
		}
		var done int64
		if err := tx.Model(&models.CommissionEarning{}).
			Where("transaction_id = ? AND is_reversal = ?", transactionId, true).
			Count(&done).Error; err != nil {
			return err
		}
		if done > 0 {
			alreadyDone = true
			return nil
		}

		for i := len(earnings) - 1; i >= 0; i-- {
			e := earnings[i]
			if e.Amount > 0 {
				// Debit the original recipient.
				if _, err := s.Wallets.DebitIn(tx, DebitDTO{
					UserId:        e.UserId,
					WalletType:    models.WalletTypeCommission,
					Amount:        e.Amount,
					ReferenceType: models.RefTypeCommission,
					TransactionId: &trx.ID,
					ServiceId:     &trx.ServiceId,
					Narration:     fmt.Sprintf("reversal: %s", e.Narration),
					CreatedBy:     distributionActor,
				}); err != nil {
					return fmt.Errorf("reverse earning %d: %w", e.ID, err)
				}
				// Credit the original payer; SYSTEM-funded legs have no
				// one to credit back.
				if e.FromUserId != nil {
					if _, err := s.Wallets.CreditIn(tx, CreditDTO{
						UserId:        *e.FromUserId,
						WalletType:    models.WalletTypeCommission,
						Amount:        e.Amount,
						ReferenceType: models.RefTypeCommission,
						TransactionId: &trx.ID,
						ServiceId:     &trx.ServiceId,
						Narration:     fmt.Sprintf("reversal: %s", e.Narration),
						CreatedBy:     distributionActor,
					}); err != nil {
						return fmt.Errorf("reverse earning %d: %w", e.ID, err)
					}
				}
			}

			mirror := models.CommissionEarning{
				UserId:          e.UserId,
				FromUserId:      e.FromUserId,
				ServiceId:       e.ServiceId,
				TransactionId:   e.TransactionId,
				Amount:          -e.Amount,
				CommissionType:  e.CommissionType,
				CommissionValue: e.CommissionValue,
				Level:           e.Level,
				Narration:       fmt.Sprintf("reversal: %s", e.Narration),
				IsReversal:      true,
				Metadata: models.EarningMetadata{
					Reversal: &models.ReversalInfo{OriginalEarningId: e.ID, ReversedAt: now},
				},
				CreatedBy: distributionActor,
			}
			if err := tx.Create(&mirror).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if alreadyDone {
		s.Log.Info("commission already reversed, skipping",
			zap.Int("transaction_id", transactionId))
		return nil
	}

	s.Log.Info("commission reversed",
		zap.Int("transaction_id", transactionId),
		zap.Int("legs", len(earnings)))
	s.Audit.Emit(AuditEvent{
		Action:      "commission.reverse",
		Entity:      "transaction",
		EntityId:    fmt.Sprintf("%d", transactionId),
		PerformedBy: distributionActor,
		Status:      "REVERSED",
	})
	return nil
}
