package models

import (
	"time"
)

const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"
)

const (
	RefTypeTransaction = "TRANSACTION"
	RefTypeRefund      = "REFUND"
	RefTypeCommission  = "COMMISSION"
	RefTypeAdjustment  = "ADJUSTMENT"
)

// LedgerEntry is an immutable, append-only record of one settled balance
// movement. RunningBalance is the wallet balance immediately after the entry;
// replaying all entries for a wallet in creation order reproduces its balance.
// Holds and releases do not write entries (they are not settled movements).
type LedgerEntry struct {
	ID             int       `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletId       int       `gorm:"column:wallet_id;not null;index" json:"wallet_id"`
	TransactionId  *int      `gorm:"column:transaction_id;index" json:"transaction_id,omitempty"`
	EntryType      string    `gorm:"column:entry_type;size:10;not null" json:"entry_type"`
	ReferenceType  string    `gorm:"column:reference_type;size:20;not null" json:"reference_type"`
	Amount         int64     `gorm:"column:amount;not null" json:"amount"`
	RunningBalance int64     `gorm:"column:running_balance;not null" json:"running_balance"`
	Narration      string    `gorm:"column:narration;size:255" json:"narration"`
	CreatedBy      string    `gorm:"column:created_by;size:100" json:"created_by"`
	IdempotencyKey *string   `gorm:"column:idempotency_key;size:100" json:"idempotency_key,omitempty"`
	ServiceId      *int      `gorm:"column:service_id" json:"service_id,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
