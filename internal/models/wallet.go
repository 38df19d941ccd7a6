package models

import (
	"time"
)

// Wallet types. Every user gets one row per type on onboarding.
const (
	WalletTypeMain       = "main"
	WalletTypeCommission = "commission"
)

// Wallet holds one balance per (user, wallet type). All amounts are integer
// minor-currency units (paise). Invariant: Balance = AvailableBalance + HoldBalance.
// Version is the optimistic-concurrency counter; every mutation must go through
// a compare-and-swap on it, never a blind column increment.
type Wallet struct {
	ID               int       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId           int       `gorm:"column:user_id;not null;uniqueIndex:idx_wallet_user_type" json:"user_id"`
	WalletType       string    `gorm:"column:wallet_type;size:20;not null;default:main;uniqueIndex:idx_wallet_user_type" json:"wallet_type"`
	Balance          int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	AvailableBalance int64     `gorm:"column:available_balance;not null;default:0" json:"available_balance"`
	HoldBalance      int64     `gorm:"column:hold_balance;not null;default:0" json:"hold_balance"`
	Version          int64     `gorm:"column:version;not null;default:0" json:"version"`
	IsActive         bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
