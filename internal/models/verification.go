package models

import (
	"time"

	"gorm.io/datatypes"
)

// VerificationRecord is one verification cycle for one property
type VerificationRecord struct {
	ID               uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID       uint               `gorm:"not null;index:idx_verification_property_requested" json:"property_id"`
	VerificationType VerificationType   `gorm:"type:varchar(50);not null" json:"verification_type"`
	Status           VerificationStatus `gorm:"type:varchar(50);not null;default:'pending';index:idx_verification_status_expiration" json:"status"`
	RequestedAt      time.Time          `gorm:"not null;index:idx_verification_property_requested,priority:2" json:"requested_at"`
	Expiration       time.Time          `gorm:"not null;index:idx_verification_status_expiration,priority:2" json:"expiration"`
	ResponderID      *uint              `gorm:"index" json:"responder_id,omitempty"`

	ResponseData   datatypes.JSONType[Decision] `gorm:"column:response_data" json:"response_data"`
	SystemDecision datatypes.JSONType[Decision] `gorm:"column:system_decision" json:"system_decision"`

	// ActiveKey mirrors PropertyID while the record is pending and is NULL
	// afterwards, so the unique index allows one pending record per property.
	ActiveKey *uint `gorm:"uniqueIndex" json:"-"`

	NotifiedAt     *time.Time `json:"notified_at,omitempty"`
	NotifyAttempts int        `gorm:"not null;default:0" json:"notify_attempts"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (VerificationRecord) TableName() string {
	return "verifications"
}

// VerificationType tells who opened the cycle
type VerificationType string

const (
	VerificationAutomatic VerificationType = "automatic"
	VerificationOwner     VerificationType = "owner"
	VerificationAgent     VerificationType = "agent"
)

// VerificationStatus is the closed set of record states.
// Everything except pending is final for the record.
type VerificationStatus string

const (
	StatusPending        VerificationStatus = "pending"
	StatusOwnerResponded VerificationStatus = "owner_responded"
	StatusVerified       VerificationStatus = "verified"
	StatusRejected       VerificationStatus = "rejected"
	StatusPendingChanges VerificationStatus = "pending_changes"
	StatusExpired        VerificationStatus = "expired"

	// legacyStatusCompleted was written for owner responses by older clients
	legacyStatusCompleted VerificationStatus = "completed"
)

// Canonical folds legacy spellings into the closed status set
func (s VerificationStatus) Canonical() VerificationStatus {
	if s == legacyStatusCompleted {
		return StatusOwnerResponded
	}
	return s
}

// IsPending reports whether the record still awaits a response
func (r *VerificationRecord) IsPending() bool {
	return r.Status.Canonical() == StatusPending
}

// IsOverdue reports whether the response deadline has passed at now
func (r *VerificationRecord) IsOverdue(now time.Time) bool {
	return r.Expiration.Before(now)
}

// Decision is the fixed shape stored in response_data and system_decision:
// {status, notes, evidence?, timestamp, owner_id|admin_id}.
type Decision struct {
	Status    string         `json:"status,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	Evidence  map[string]any `json:"evidence,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	OwnerID   *uint          `json:"owner_id,omitempty"`
	AdminID   *uint          `json:"admin_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
}

// VerificationView is a record together with its property context
type VerificationView struct {
	VerificationRecord
	Property PropertySummary `json:"property"`
}
