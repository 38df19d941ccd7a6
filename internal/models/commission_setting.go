package models

import (
	"time"
)

const (
	ScopeRole = "ROLE"
	ScopeUser = "USER"
)

const (
	CommissionTypeFlat       = "FLAT"
	CommissionTypePercentage = "PERCENTAGE"
)

// CommissionSetting is one commission rule. Scope decides the target column:
// ROLE settings carry RoleId, USER settings carry TargetUserId. For a given
// target and service, the active setting whose effective window covers now and
// whose EffectiveFrom is the latest wins. USER settings beat ROLE settings.
type CommissionSetting struct {
	ID              int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Scope           string     `gorm:"column:scope;size:10;not null;index:idx_setting_lookup" json:"scope"`
	RoleId          *int       `gorm:"column:role_id;index:idx_setting_lookup" json:"role_id,omitempty"`
	TargetUserId    *int       `gorm:"column:target_user_id;index:idx_setting_lookup" json:"target_user_id,omitempty"`
	ServiceId       int        `gorm:"column:service_id;not null;index:idx_setting_lookup" json:"service_id"`
	Channel         *string    `gorm:"column:channel;size:50" json:"channel,omitempty"`
	CommissionType  string     `gorm:"column:commission_type;size:20;not null" json:"commission_type"`
	CommissionValue float64    `gorm:"column:commission_value;type:decimal(10,4);not null" json:"commission_value"`
	EffectiveFrom   time.Time  `gorm:"column:effective_from;not null" json:"effective_from"`
	EffectiveTo     *time.Time `gorm:"column:effective_to" json:"effective_to,omitempty"`
	IsActive        bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CommissionSetting) TableName() string {
	return "commission_settings"
}

// Covers reports whether the effective window contains the given instant.
func (s *CommissionSetting) Covers(now time.Time) bool {
	if now.Before(s.EffectiveFrom) {
		return false
	}
	if s.EffectiveTo != nil && now.After(*s.EffectiveTo) {
		return false
	}
	return true
}
