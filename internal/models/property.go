package models

import (
	"time"

	"gorm.io/datatypes"
)

// Property is the listing whose accuracy the verification engine tracks.
type Property struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID      uint    `gorm:"not null;index" json:"owner_id"`
	Title        string  `gorm:"type:varchar(255);not null" json:"title"`
	PropertyType string  `gorm:"type:varchar(50)" json:"property_type,omitempty"`
	RentAmount   float64 `gorm:"type:decimal(12,2)" json:"rent_amount"`
	Address      string  `gorm:"type:varchar(255)" json:"address,omitempty"`
	Neighborhood string  `gorm:"type:varchar(255)" json:"neighborhood,omitempty"`
	City         string  `gorm:"type:varchar(255);index" json:"city,omitempty"`

	// Verification state
	AvailabilityStatus AvailabilityStatus `gorm:"type:varchar(50);not null;default:'available';index" json:"availability_status"`
	VerificationStatus PropertyVerification `gorm:"type:varchar(50);not null;default:'pending'" json:"verification_status"`
	ReliabilityScore   float64              `gorm:"not null;default:0.5" json:"reliability_score"`
	LastVerified       *time.Time           `json:"last_verified,omitempty"`
	ExpirationDate     *time.Time           `json:"expiration_date,omitempty"`

	AutoVerification datatypes.JSONType[AutoVerificationSettings] `gorm:"column:auto_verification_settings" json:"auto_verification_settings"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Owner         *User                 `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	Verifications []VerificationRecord  `gorm:"foreignKey:PropertyID;constraint:OnDelete:CASCADE" json:"-"`
	History       []VerificationHistory `gorm:"foreignKey:PropertyID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name
func (Property) TableName() string {
	return "properties"
}

// AvailabilityStatus is the real-world state of a listing
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityRented      AvailabilityStatus = "rented"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
	AvailabilityMaintenance AvailabilityStatus = "maintenance"
)

// Valid reports whether s is a known availability status
func (s AvailabilityStatus) Valid() bool {
	switch s {
	case AvailabilityAvailable, AvailabilityRented, AvailabilityUnavailable, AvailabilityMaintenance:
		return true
	}
	return false
}

// PropertyVerification is the admin-facing verification state of a listing
type PropertyVerification string

const (
	PropertyPending        PropertyVerification = "pending"
	PropertyVerified       PropertyVerification = "verified"
	PropertyRejected       PropertyVerification = "rejected"
	PropertyPendingChanges PropertyVerification = "pending_changes"
)

// AutoVerificationSettings controls the scheduler cadence for one property.
// A nil Enabled means the property never opted out.
type AutoVerificationSettings struct {
	Enabled       *bool `json:"enabled,omitempty"`
	FrequencyDays int   `json:"frequency_days,omitempty"`
}

// IsEnabled defaults to true when the setting was never written
func (s AutoVerificationSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Frequency returns the cadence, falling back to defaultDays when unset
func (s AutoVerificationSettings) Frequency(defaultDays int) time.Duration {
	days := s.FrequencyDays
	if days <= 0 {
		days = defaultDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// IsAvailable reports whether the listing is currently offered
func (p *Property) IsAvailable() bool {
	return p.AvailabilityStatus == AvailabilityAvailable
}

// Summary builds the value object returned next to verification records
func (p *Property) Summary() PropertySummary {
	return PropertySummary{
		ID:                 p.ID,
		OwnerID:            p.OwnerID,
		Title:              p.Title,
		Address:            p.Address,
		City:               p.City,
		AvailabilityStatus: p.AvailabilityStatus,
		VerificationStatus: p.VerificationStatus,
		ReliabilityScore:   p.ReliabilityScore,
		LastVerified:       p.LastVerified,
		ExpirationDate:     p.ExpirationDate,
	}
}

// PropertySummary is the property context attached to verification responses
type PropertySummary struct {
	ID                 uint                 `json:"id"`
	OwnerID            uint                 `json:"owner_id"`
	Title              string               `json:"title"`
	Address            string               `json:"address,omitempty"`
	City               string               `json:"city,omitempty"`
	AvailabilityStatus AvailabilityStatus   `json:"availability_status"`
	VerificationStatus PropertyVerification `json:"verification_status"`
	ReliabilityScore   float64              `json:"reliability_score"`
	LastVerified       *time.Time           `json:"last_verified,omitempty"`
	ExpirationDate     *time.Time           `json:"expiration_date,omitempty"`
}
