package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RoundingCorrection records a rounding delta absorbed into one member's share
// during distribution.
type RoundingCorrection struct {
	AppliedToUserId int   `json:"applied_to_user_id"`
	Delta           int64 `json:"delta"`
}

// FlatClamp records a mid-chain FLAT rule that exceeded the remaining pool and
// was clamped down to it.
type FlatClamp struct {
	ConfiguredAmount int64 `json:"configured_amount"`
	ClampedTo        int64 `json:"clamped_to"`
}

// ReversalInfo links a negative mirror earning back to the row it reverses.
type ReversalInfo struct {
	OriginalEarningId int       `json:"original_earning_id"`
	ReversedAt        time.Time `json:"reversed_at"`
}

// EarningMetadata is the audit trail attached to a commission earning. Each
// variant is an explicit struct so the shape is enforced at compile time
// instead of living in an ad-hoc JSON blob.
type EarningMetadata struct {
	Rounding *RoundingCorrection `json:"rounding,omitempty"`
	Clamp    *FlatClamp          `json:"clamp,omitempty"`
	Reversal *ReversalInfo       `json:"reversal,omitempty"`
}

func (m EarningMetadata) Value() (driver.Value, error) {
	if m.Rounding == nil && m.Clamp == nil && m.Reversal == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *EarningMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = EarningMetadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into EarningMetadata", value)
	}
}
