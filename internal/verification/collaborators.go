package verification

import (
	"context"
	"fmt"
	"time"

	"rental-marketplace/internal/models"
)

// Caller is the authenticated actor supplied by the transport layer
type Caller struct {
	UserID uint
	Role   models.UserRole
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// actorTag is the verified_by value written to history
func (c Caller) actorTag() string {
	if c.IsAdmin() {
		return fmt.Sprintf("admin_%d", c.UserID)
	}
	return fmt.Sprintf("owner_%d", c.UserID)
}

// NotificationRequest carries what a sender needs to reach the owner
type NotificationRequest struct {
	VerificationID uint
	PropertyID     uint
	PropertyTitle  string
	Expiration     time.Time
	Owner          models.User
}

// Delivery reports which channel accepted the notification
type Delivery struct {
	Channel string
}

// NotificationSender delivers verification requests to property owners.
// Failures are logged by the engine and never roll back a record.
type NotificationSender interface {
	SendVerificationRequest(ctx context.Context, req NotificationRequest) (Delivery, error)
}

// Indexer publishes a property's trust signals to search
type Indexer interface {
	IndexProperty(ctx context.Context, summary models.PropertySummary) error
}

// RewardGranter credits tokens for timely owner responses
type RewardGranter interface {
	GrantTokens(ctx context.Context, userID uint, amount int, reason string) error
}

type nopNotifier struct{}

func (nopNotifier) SendVerificationRequest(context.Context, NotificationRequest) (Delivery, error) {
	return Delivery{Channel: "none"}, nil
}

type nopIndexer struct{}

func (nopIndexer) IndexProperty(context.Context, models.PropertySummary) error { return nil }

type nopRewards struct{}

func (nopRewards) GrantTokens(context.Context, uint, int, string) error { return nil }
