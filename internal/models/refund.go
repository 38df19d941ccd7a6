package models

import (
	"time"
)

// Refund records a SUCCESS -> REFUNDED reversal against a transaction.
type Refund struct {
	ID            int       `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionId int       `gorm:"column:transaction_id;not null;index" json:"transaction_id"`
	WalletId      int       `gorm:"column:wallet_id;not null" json:"wallet_id"`
	Amount        int64     `gorm:"column:amount;not null" json:"amount"`
	Reason        string    `gorm:"column:reason;size:255" json:"reason"`
	CreatedBy     string    `gorm:"column:created_by;size:100" json:"created_by"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Refund) TableName() string {
	return "refunds"
}
