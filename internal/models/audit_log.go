package models

import (
	"time"
)

// AuditLog is the persisted copy of the audit event emitted after every
// mutating operation. Delivery to the external audit service is best-effort;
// this row is the durable record.
type AuditLog struct {
	ID           int       `gorm:"primaryKey;autoIncrement" json:"id"`
	EventId      string    `gorm:"column:event_id;size:50;not null;uniqueIndex" json:"event_id"`
	Action       string    `gorm:"column:action;size:50;not null" json:"action"`
	Entity       string    `gorm:"column:entity;size:50;not null" json:"entity"`
	EntityId     string    `gorm:"column:entity_id;size:50;not null;index" json:"entity_id"`
	PerformedBy  string    `gorm:"column:performed_by;size:100" json:"performed_by"`
	OldValues    *string   `gorm:"column:old_values;type:text" json:"old_values,omitempty"`
	NewValues    *string   `gorm:"column:new_values;type:text" json:"new_values,omitempty"`
	Status       string    `gorm:"column:status;size:20;not null" json:"status"`
	ErrorMessage *string   `gorm:"column:error_message;size:500" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
