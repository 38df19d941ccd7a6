package models

import (
	"time"
)

// IdempotencyKey gates client-initiated financial mutations. A key is claimed
// (used=true) the moment it is first seen; reuse before expiry is rejected.
// Expired rows are purged by the sweep and may be re-claimed.
type IdempotencyKey struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"column:idem_key;size:100;not null;uniqueIndex" json:"key"`
	UserId    *int      `gorm:"column:user_id" json:"user_id,omitempty"`
	Used      bool      `gorm:"column:used;not null;default:false" json:"used"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index" json:"expires_at"`
	Meta      string    `gorm:"column:meta;size:255" json:"meta"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}
