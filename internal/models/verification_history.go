package models

import "time"

// VerificationHistory is an append-only timeline entry for a property.
// Rows are never updated or deleted except by the property cascade.
type VerificationHistory struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID uint      `gorm:"not null;index:idx_history_property_timestamp" json:"property_id"`
	Status     string    `gorm:"type:varchar(50);not null" json:"status"`
	VerifiedBy string    `gorm:"type:varchar(50);not null" json:"verified_by"`
	Timestamp  time.Time `gorm:"not null;index:idx_history_property_timestamp,priority:2" json:"timestamp"`
	Notes      string    `gorm:"type:text" json:"notes,omitempty"`
}

// TableName specifies the table name
func (VerificationHistory) TableName() string {
	return "verification_history"
}

// History status labels that are not record or property statuses
const (
	HistoryRequested  = "verification_requested"
	HistoryUnverified = "unverified"
)

// Actor tags written to VerifiedBy
const (
	ActorSystemScheduler  = "system:scheduler"
	ActorSystemExpiration = "system:expiration"
)
