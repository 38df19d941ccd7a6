package services

import (
	"errors"
	"time"

	"ledger-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Bounded retry for version conflicts. The whole read-compute-update cycle is
// retried, never just the UPDATE.
const (
	casMaxAttempts = 3
	casBackoffBase = 25 * time.Millisecond
)

// WalletService owns every balance mutation. The wallet row is the single
// point of truth: each operation re-reads the row inside its transaction,
// computes the next state in memory and commits it with a compare-and-swap on
// the version column. Settled movements (credit/debit) append a ledger entry
// in the same transaction; holds and releases do not.
type WalletService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewWalletService(db *gorm.DB, log *zap.Logger) *WalletService {
	return &WalletService{DB: db, Log: log}
}

type CreditDTO struct {
	UserId         int
	WalletType     string
	Amount         int64
	ReferenceType  string
	TransactionId  *int
	ServiceId      *int
	Narration      string
	CreatedBy      string
	IdempotencyKey *string
}

type DebitDTO = CreditDTO

type HoldDTO struct {
	UserId     int
	WalletType string
	Amount     int64
}

// walletMutator computes the next wallet state in place and returns the ledger
// entry to append, or nil when the movement is unsettled.
type walletMutator func(w *models.Wallet) (*models.LedgerEntry, error)

// inTransaction reports whether db is already inside a transaction (its
// connection pool can commit/roll back).
func inTransaction(db *gorm.DB) bool {
	if db.Statement == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// mutate runs one wallet operation end to end with bounded CAS retry. When
// the handle is already transactional the CAS is attempted exactly once:
// under REPEATABLE READ a retry inside the enclosing transaction would
// re-read the same snapshot forever, and sleeping there only stretches the
// outer transaction's locks. The conflict surfaces as retryable and the
// enclosing scope (caller, queue redelivery) owns the retry.
func (s *WalletService) mutate(db *gorm.DB, userId int, walletType string, fn walletMutator) (*models.Wallet, error) {
	attempts := casMaxAttempts
	if inTransaction(db) {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(casBackoffBase * time.Duration(attempt))
		}
		w, err := s.tryMutate(db, userId, walletType, fn)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return nil, err
		}
		if attempt+1 < attempts {
			s.Log.Warn("wallet version conflict, retrying",
				zap.Int("user_id", userId),
				zap.String("wallet_type", walletType),
				zap.Int("attempt", attempt+1))
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *WalletService) tryMutate(db *gorm.DB, userId int, walletType string, fn walletMutator) (*models.Wallet, error) {
	var out models.Wallet
	err := db.Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		if err := tx.Where("user_id = ? AND wallet_type = ? AND is_active = ?", userId, walletType, true).
			First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}

		expected := w.Version
		entry, err := fn(&w)
		if err != nil {
			return err
		}

		// Compare-and-swap keyed on the version read above. Zero rows
		// affected means another writer won the race.
		res := tx.Model(&models.Wallet{}).
			Where("id = ? AND version = ?", w.ID, expected).
			Updates(map[string]interface{}{
				"balance":           w.Balance,
				"available_balance": w.AvailableBalance,
				"hold_balance":      w.HoldBalance,
				"version":           expected + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrencyConflict
		}
		w.Version = expected + 1

		if entry != nil {
			entry.WalletId = w.ID
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}

		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Credit settles funds into a wallet and appends a CREDIT ledger entry.
func (s *WalletService) Credit(data CreditDTO) (*models.Wallet, error) {
	return s.CreditIn(s.DB, data)
}

// CreditIn is Credit on a caller-supplied handle so that compound operations
// (transaction create, payout execution) share one atomic scope.
func (s *WalletService) CreditIn(db *gorm.DB, data CreditDTO) (*models.Wallet, error) {
	if data.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.mutate(db, data.UserId, data.WalletType, func(w *models.Wallet) (*models.LedgerEntry, error) {
		w.Balance += data.Amount
		w.AvailableBalance += data.Amount
		return &models.LedgerEntry{
			TransactionId:  data.TransactionId,
			EntryType:      models.EntryTypeCredit,
			ReferenceType:  data.ReferenceType,
			Amount:         data.Amount,
			RunningBalance: w.Balance,
			Narration:      data.Narration,
			CreatedBy:      data.CreatedBy,
			IdempotencyKey: data.IdempotencyKey,
			ServiceId:      data.ServiceId,
		}, nil
	})
}

// Debit settles funds out of a wallet and appends a DEBIT ledger entry.
func (s *WalletService) Debit(data DebitDTO) (*models.Wallet, error) {
	return s.DebitIn(s.DB, data)
}

func (s *WalletService) DebitIn(db *gorm.DB, data DebitDTO) (*models.Wallet, error) {
	if data.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.mutate(db, data.UserId, data.WalletType, func(w *models.Wallet) (*models.LedgerEntry, error) {
		if w.AvailableBalance < data.Amount {
			return nil, ErrInsufficientFunds
		}
		w.Balance -= data.Amount
		w.AvailableBalance -= data.Amount
		return &models.LedgerEntry{
			TransactionId:  data.TransactionId,
			EntryType:      models.EntryTypeDebit,
			ReferenceType:  data.ReferenceType,
			Amount:         data.Amount,
			RunningBalance: w.Balance,
			Narration:      data.Narration,
			CreatedBy:      data.CreatedBy,
			IdempotencyKey: data.IdempotencyKey,
			ServiceId:      data.ServiceId,
		}, nil
	})
}

// Hold moves available funds into the hold bucket. Not a settled movement, so
// no ledger entry is written.
func (s *WalletService) Hold(data HoldDTO) (*models.Wallet, error) {
	if data.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.mutate(s.DB, data.UserId, data.WalletType, func(w *models.Wallet) (*models.LedgerEntry, error) {
		if w.AvailableBalance < data.Amount {
			return nil, ErrInsufficientFunds
		}
		w.AvailableBalance -= data.Amount
		w.HoldBalance += data.Amount
		return nil, nil
	})
}

// Release moves held funds back to available.
func (s *WalletService) Release(data HoldDTO) (*models.Wallet, error) {
	if data.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.mutate(s.DB, data.UserId, data.WalletType, func(w *models.Wallet) (*models.LedgerEntry, error) {
		if w.HoldBalance < data.Amount {
			return nil, ErrInsufficientHold
		}
		w.HoldBalance -= data.Amount
		w.AvailableBalance += data.Amount
		return nil, nil
	})
}

type CreateWalletDTO struct {
	UserId int
}

// CreateWallets provisions the main and commission wallets for a user on
// onboarding. Safe to repeat per (user, type) via FirstOrCreate.
func (s *WalletService) CreateWallets(data CreateWalletDTO) ([]models.Wallet, error) {
	wallets := []models.Wallet{
		{UserId: data.UserId, WalletType: models.WalletTypeMain, IsActive: true},
		{UserId: data.UserId, WalletType: models.WalletTypeCommission, IsActive: true},
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range wallets {
			if err := tx.Where("user_id = ? AND wallet_type = ?", wallets[i].UserId, wallets[i].WalletType).
				FirstOrCreate(&wallets[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// GetWallet fetches one wallet row.
func (s *WalletService) GetWallet(userId int, walletType string) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.DB.Where("user_id = ? AND wallet_type = ?", userId, walletType).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

type LedgerQueryDTO struct {
	UserId     int
	WalletType string
	Page       int
	Limit      int
}

// ListLedger returns the ledger entries for a wallet, newest first.
func (s *WalletService) ListLedger(data LedgerQueryDTO) ([]models.LedgerEntry, int64, error) {
	w, err := s.GetWallet(data.UserId, data.WalletType)
	if err != nil {
		return nil, 0, err
	}

	limit := data.Limit
	if limit <= 0 {
		limit = 50
	}
	page := data.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := s.DB.Model(&models.LedgerEntry{}).Where("wallet_id = ?", w.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.LedgerEntry
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
