package models

import (
	"time"
)

// Transaction statuses. Legal transitions: PENDING -> SUCCESS, PENDING -> FAILED,
// SUCCESS -> REFUNDED. Terminal rows are immutable apart from SUCCESS -> REFUNDED.
const (
	TrxStatusPending  = "PENDING"
	TrxStatusSuccess  = "SUCCESS"
	TrxStatusFailed   = "FAILED"
	TrxStatusRefunded = "REFUNDED"
)

type Transaction struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId            int        `gorm:"column:user_id;not null;index" json:"user_id"`
	WalletId          int        `gorm:"column:wallet_id;not null;index" json:"wallet_id"`
	TransactionNo     string     `gorm:"column:transaction_no;size:50;not null;index" json:"transaction_no"`
	Amount            int64      `gorm:"column:amount;not null" json:"amount"`
	NetAmount         int64      `gorm:"column:net_amount;not null" json:"net_amount"`
	Status            string     `gorm:"column:status;size:20;not null;default:PENDING;index" json:"status"`
	PaymentType       string     `gorm:"column:payment_type;size:50;not null" json:"payment_type"`
	ServiceId         int        `gorm:"column:service_id;not null;index" json:"service_id"`
	Channel           *string    `gorm:"column:channel;size:50" json:"channel,omitempty"`
	IdempotencyKey    *string    `gorm:"column:idempotency_key;size:100;uniqueIndex" json:"idempotency_key,omitempty"`
	ProviderReference *string    `gorm:"column:provider_reference;size:255" json:"provider_reference,omitempty"`
	InitiatedAt       time.Time  `gorm:"column:initiated_at;autoCreateTime" json:"initiated_at"`
	ProcessedAt       *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// CanTransition reports whether the state machine permits moving to next.
func (t *Transaction) CanTransition(next string) bool {
	switch t.Status {
	case TrxStatusPending:
		return next == TrxStatusSuccess || next == TrxStatusFailed
	case TrxStatusSuccess:
		return next == TrxStatusRefunded
	default:
		return false
	}
}
