package models

import (
	"time"
)

// CommissionEarning is one payout receipt per recipient per transaction.
// Append-only; reversals insert mirrored negative-amount rows instead of
// touching history. FromUserId is nil for the SYSTEM-funded top-of-chain leg.
type CommissionEarning struct {
	ID              int             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId          int             `gorm:"column:user_id;not null;index" json:"user_id"`
	FromUserId      *int            `gorm:"column:from_user_id" json:"from_user_id,omitempty"`
	ServiceId       int             `gorm:"column:service_id;not null" json:"service_id"`
	TransactionId   int             `gorm:"column:transaction_id;not null;index" json:"transaction_id"`
	Amount          int64           `gorm:"column:amount;not null" json:"amount"`
	CommissionType  string          `gorm:"column:commission_type;size:20;not null" json:"commission_type"`
	CommissionValue float64         `gorm:"column:commission_value;type:decimal(10,4);not null" json:"commission_value"`
	Level           int             `gorm:"column:level;not null" json:"level"`
	Narration       string          `gorm:"column:narration;size:255" json:"narration"`
	IsReversal      bool            `gorm:"column:is_reversal;not null;default:false" json:"is_reversal"`
	Metadata        EarningMetadata `gorm:"column:metadata;type:json" json:"metadata"`
	CreatedBy       string          `gorm:"column:created_by;size:100" json:"created_by"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CommissionEarning) TableName() string {
	return "commission_earnings"
}
