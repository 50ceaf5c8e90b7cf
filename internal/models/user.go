package models

import (
	"time"

	"gorm.io/datatypes"
)

// User is the account owning properties and answering verification requests.
// Authentication lives elsewhere; only the fields the engine reads are mapped.
type User struct {
	ID           uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string   `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	FullName     string   `gorm:"type:varchar(255)" json:"full_name"`
	PhoneNumber  string   `gorm:"type:varchar(50)" json:"phone_number,omitempty"`
	Role         UserRole `gorm:"type:varchar(50);not null;default:'tenant'" json:"role"`
	TokenBalance int      `gorm:"not null;default:0" json:"token_balance"`

	NotificationPreferences datatypes.JSONType[NotificationPreferences] `gorm:"column:notification_preferences" json:"notification_preferences"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

// UserRole constants
type UserRole string

const (
	RoleTenant UserRole = "tenant"
	RoleOwner  UserRole = "owner"
	RoleAdmin  UserRole = "admin"
)

// NotificationPreferences lists the channels a user accepts.
// Unset channels are treated as enabled.
type NotificationPreferences struct {
	Email *bool `json:"email,omitempty"`
	SMS   *bool `json:"sms,omitempty"`
	InApp *bool `json:"in_app,omitempty"`
}

// AllowsEmail reports whether email notifications are accepted
func (p NotificationPreferences) AllowsEmail() bool {
	return p.Email == nil || *p.Email
}

// AllowsSMS reports whether SMS notifications are accepted
func (p NotificationPreferences) AllowsSMS() bool {
	return p.SMS == nil || *p.SMS
}
