package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"ledger-service/internal/models"
	"ledger-service/pkg/common"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionService owns the payment transaction state machine. The payer is
// debited at creation; FAILED auto-reverses that debit; SUCCESS only stamps
// timestamps and hands the transaction to commission distribution.
type TransactionService struct {
	DB          *gorm.DB
	Wallets     *WalletService
	Idempotency *IdempotencyService
	Audit       *AuditService
	Queue       *asynq.Client
	Log         *zap.Logger
}

func NewTransactionService(db *gorm.DB, wallets *WalletService, idem *IdempotencyService, audit *AuditService, queue *asynq.Client, log *zap.Logger) *TransactionService {
	return &TransactionService{
		DB:          db,
		Wallets:     wallets,
		Idempotency: idem,
		Audit:       audit,
		Queue:       queue,
		Log:         log,
	}
}

type CreateTransactionDTO struct {
	UserId         int
	WalletId       int
	Amount         int64
	PaymentType    string
	ServiceId      int
	Channel        *string
	Commission     int64
	Tax            int64
	Fee            int64
	Cashback       int64
	IdempotencyKey *string
	CreatedBy      string
}

// Create validates wallet ownership, claims the idempotency key, inserts the
// PENDING row and debits the payer, all in one transaction. A replay with an
// already-bound key returns the original transaction with no new debit.
func (s *TransactionService) Create(data CreateTransactionDTO) (*models.Transaction, error) {
	if data.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if data.IdempotencyKey != nil && *data.IdempotencyKey != "" {
		var existing models.Transaction
		err := s.DB.Where("idempotency_key = ?", *data.IdempotencyKey).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	netAmount := data.Amount - data.Commission - data.Tax - data.Fee + data.Cashback

	var trx models.Transaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		if err := tx.First(&w, data.WalletId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		if w.UserId != data.UserId || !w.IsActive {
			return ErrWalletNotFound
		}
		if w.Balance < data.Amount {
			return ErrInsufficientFunds
		}

		if data.IdempotencyKey != nil && *data.IdempotencyKey != "" {
			if _, err := s.Idempotency.ClaimIn(tx, *data.IdempotencyKey, &data.UserId, "transaction-create"); err != nil {
				return err
			}
		}

		trx = models.Transaction{
			UserId:         data.UserId,
			WalletId:       w.ID,
			TransactionNo:  common.GenerateTrxNo(),
			Amount:         data.Amount,
			NetAmount:      netAmount,
			Status:         models.TrxStatusPending,
			PaymentType:    data.PaymentType,
			ServiceId:      data.ServiceId,
			Channel:        data.Channel,
			IdempotencyKey: data.IdempotencyKey,
		}
		if err := tx.Create(&trx).Error; err != nil {
			return err
		}

		_, err := s.Wallets.DebitIn(tx, DebitDTO{
			UserId:         w.UserId,
			WalletType:     w.WalletType,
			Amount:         data.Amount,
			ReferenceType:  models.RefTypeTransaction,
			TransactionId:  &trx.ID,
			ServiceId:      &data.ServiceId,
			Narration:      fmt.Sprintf("%s payment %s", data.PaymentType, trx.TransactionNo),
			CreatedBy:      data.CreatedBy,
			IdempotencyKey: data.IdempotencyKey,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Emit(AuditEvent{
		Action:      "transaction.create",
		Entity:      "transaction",
		EntityId:    strconv.Itoa(trx.ID),
		PerformedBy: data.CreatedBy,
		Status:      trx.Status,
	})
	return &trx, nil
}

type UpdateStatusDTO struct {
	TransactionId     int
	Status            string
	ProviderReference *string
	PerformedBy       string
}

// UpdateStatus applies a provider outcome. FAILED credits the original amount
// back to the payer in the same transaction; SUCCESS stamps timestamps only
// (the debit already settled at creation) and queues commission distribution.
func (s *TransactionService) UpdateStatus(data UpdateStatusDTO) (*models.Transaction, error) {
	var trx models.Transaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&trx, data.TransactionId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("transaction %d: %w", data.TransactionId, ErrInvalidState)
			}
			return err
		}
		if !trx.CanTransition(data.Status) {
			return fmt.Errorf("%s -> %s: %w", trx.Status, data.Status, ErrInvalidState)
		}

		now := time.Now()
		switch data.Status {
		case models.TrxStatusSuccess:
			trx.ProcessedAt = &now
			trx.CompletedAt = &now
		case models.TrxStatusFailed:
			trx.ProcessedAt = &now
			var w models.Wallet
			if err := tx.First(&w, trx.WalletId).Error; err != nil {
				return err
			}
			_, err := s.Wallets.CreditIn(tx, CreditDTO{
				UserId:        w.UserId,
				WalletType:    w.WalletType,
				Amount:        trx.Amount,
				ReferenceType: models.RefTypeAdjustment,
				TransactionId: &trx.ID,
				ServiceId:     &trx.ServiceId,
				Narration:     fmt.Sprintf("reversal of failed payment %s", trx.TransactionNo),
				CreatedBy:     data.PerformedBy,
			})
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s -> %s: %w", trx.Status, data.Status, ErrInvalidState)
		}

		trx.Status = data.Status
		trx.ProviderReference = data.ProviderReference
		return tx.Save(&trx).Error
	})
	if err != nil {
		return nil, err
	}

	if trx.Status == models.TrxStatusSuccess {
		s.enqueueDistribution(trx.ID)
	}

	s.Audit.Emit(AuditEvent{
		Action:      "transaction.status",
		Entity:      "transaction",
		EntityId:    strconv.Itoa(trx.ID),
		PerformedBy: data.PerformedBy,
		Status:      trx.Status,
	})
	return &trx, nil
}

type RefundDTO struct {
	TransactionId int
	Amount        int64
	Reason        string
	PerformedBy   string
}

// Refund reverses a SUCCESS transaction: credits the payer, records a Refund
// row and a REFUND ledger entry, and transitions to REFUNDED.
func (s *TransactionService) Refund(data RefundDTO) (*models.Transaction, error) {
	if data.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var trx models.Transaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&trx, data.TransactionId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("transaction %d: %w", data.TransactionId, ErrInvalidState)
			}
			return err
		}
		if !trx.CanTransition(models.TrxStatusRefunded) {
			return fmt.Errorf("%s -> %s: %w", trx.Status, models.TrxStatusRefunded, ErrInvalidState)
		}
		if data.Amount > trx.Amount {
			return ErrInvalidAmount
		}

		var w models.Wallet
		if err := tx.First(&w, trx.WalletId).Error; err != nil {
			return err
		}
		_, err := s.Wallets.CreditIn(tx, CreditDTO{
			UserId:        w.UserId,
			WalletType:    w.WalletType,
			Amount:        data.Amount,
			ReferenceType: models.RefTypeRefund,
			TransactionId: &trx.ID,
			ServiceId:     &trx.ServiceId,
			Narration:     fmt.Sprintf("refund of %s: %s", trx.TransactionNo, data.Reason),
			CreatedBy:     data.PerformedBy,
		})
		if err != nil {
			return err
		}

		refund := models.Refund{
			TransactionId: trx.ID,
			WalletId:      trx.WalletId,
			Amount:        data.Amount,
			Reason:        data.Reason,
			CreatedBy:     data.PerformedBy,
		}
		if err := tx.Create(&refund).Error; err != nil {
			return err
		}

		trx.Status = models.TrxStatusRefunded
		return tx.Save(&trx).Error
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Emit(AuditEvent{
		Action:      "transaction.refund",
		Entity:      "transaction",
		EntityId:    strconv.Itoa(trx.ID),
		PerformedBy: data.PerformedBy,
		Status:      trx.Status,
	})
	return &trx, nil
}

func (s *TransactionService) enqueueDistribution(transactionId int) {
	if s.Queue == nil {
		return
	}
	task, err := NewCommissionDistributeTask(CommissionJobPayload{TransactionId: transactionId})
	if err != nil {
		s.Log.Error("failed to build distribution task", zap.Error(err))
		return
	}
	if _, err := s.Queue.Enqueue(task, asynq.Queue("critical")); err != nil {
		s.Log.Error("failed to enqueue commission distribution",
			zap.Int("transaction_id", transactionId), zap.Error(err))
	}
}

type ListTransactionsDTO struct {
	UserId    int
	Status    string
	StartDate string
	EndDate   string
	Page      int
	Limit     int
}

// List returns transactions for a user, newest first.
func (s *TransactionService) List(data ListTransactionsDTO) ([]models.Transaction, int64, error) {
	limit := data.Limit
	if limit <= 0 {
		limit = 50
	}
	page := data.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := s.DB.Model(&models.Transaction{}).Where("user_id = ?", data.UserId)
	if data.Status != "" {
		query = query.Where("status = ?", data.Status)
	}
	if data.StartDate != "" {
		query = query.Where("DATE(initiated_at) >= ?", data.StartDate)
	}
	if data.EndDate != "" {
		query = query.Where("DATE(initiated_at) <= ?", data.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var transactions []models.Transaction
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&transactions).Error; err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// ReportStalePending logs PENDING transactions older than the cutoff. Runs
// from the scheduler; log-only so operators can chase stuck provider calls.
func (s *TransactionService) ReportStalePending(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)
	var count int64
	if err := s.DB.Model(&models.Transaction{}).
		Where("status = ? AND initiated_at < ?", models.TrxStatusPending, cutoff).
		Count(&count).Error; err != nil {
		s.Log.Error("stale pending report failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.Log.Warn("stale pending transactions",
			zap.Int64("count", count),
			zap.Time("older_than", cutoff))
	}
}

// StartScheduler reports stale PENDING transactions every 15 minutes.
func (s *TransactionService) StartScheduler() {
	c := cron.New()
	_, err := c.AddFunc("*/15 * * * *", func() {
		s.ReportStalePending(30 * time.Minute)
	})
	if err != nil {
		s.Log.Error("failed to schedule stale pending report", zap.Error(err))
		return
	}
	c.Start()
	s.Log.Info("stale pending report scheduler started")
}
