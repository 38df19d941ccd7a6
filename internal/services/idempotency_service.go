package services

import (
	"errors"
	"strings"
	"time"

	"ledger-service/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const idempotencyTTL = time.Hour

// IdempotencyService gates mutating financial requests on a caller-supplied
// key. The lookup-or-create runs inside the same transaction as the guarded
// mutation so two concurrent requests cannot both observe "not found".
type IdempotencyService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewIdempotencyService(db *gorm.DB, log *zap.Logger) *IdempotencyService {
	return &IdempotencyService{DB: db, Log: log}
}

// ClaimIn claims key on the given handle. First sight creates the record with
// used=true and a 1-hour expiry. A live used record fails with
// ErrAlreadyProcessed; an expired record is deleted and re-created. The loser
// of a concurrent insert race hits the unique index and gets the same
// ErrAlreadyProcessed as a plain reuse.
func (s *IdempotencyService) ClaimIn(db *gorm.DB, key string, userId *int, meta string) (*models.IdempotencyKey, error) {
	var rec models.IdempotencyKey
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("idem_key = ?", key).First(&rec).Error
		switch {
		case err == nil:
			if time.Now().Before(rec.ExpiresAt) {
				if rec.Used {
					return ErrAlreadyProcessed
				}
				rec.Used = true
				return tx.Model(&rec).Update("used", true).Error
			}
			if err := tx.Delete(&models.IdempotencyKey{}, rec.ID).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// fall through to create
		default:
			return err
		}

		rec = models.IdempotencyKey{
			Key:       key,
			UserId:    userId,
			Used:      true,
			ExpiresAt: time.Now().Add(idempotencyTTL),
			Meta:      meta,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrAlreadyProcessed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Claim claims key on the service's own handle.
func (s *IdempotencyService) Claim(key string, userId *int, meta string) (*models.IdempotencyKey, error) {
	return s.ClaimIn(s.DB, key, userId, meta)
}

// Guard runs fn in one transaction that also claims key, so the deduplication
// record and the guarded financial effect commit or roll back together.
func (s *IdempotencyService) Guard(key string, userId *int, meta string, fn func(tx *gorm.DB) error) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ClaimIn(tx, key, userId, meta); err != nil {
			return err
		}
		return fn(tx)
	})
}

// Sweep deletes records whose expiry has passed, used or not.
func (s *IdempotencyService) Sweep() (int64, error) {
	res := s.DB.Where("expires_at < ?", time.Now()).Delete(&models.IdempotencyKey{})
	return res.RowsAffected, res.Error
}

// StartScheduler runs the sweep every 10 minutes.
func (s *IdempotencyService) StartScheduler() {
	c := cron.New()
	_, err := c.AddFunc("*/10 * * * *", func() {
		n, err := s.Sweep()
		if err != nil {
			s.Log.Error("idempotency sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			s.Log.Info("purged expired idempotency keys", zap.Int64("count", n))
		}
	})
	if err != nil {
		s.Log.Error("failed to schedule idempotency sweep", zap.Error(err))
		return
	}
	c.Start()
	s.Log.Info("idempotency sweep scheduler started")
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// mysql driver surfaces error 1062 before gorm translation in some paths
	return strings.Contains(err.Error(), "Duplicate entry")
}
