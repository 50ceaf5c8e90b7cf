package verification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rental-marketplace/internal/models"
)

// Processor applies owner and admin actions to verifications and properties.
// Every mutating call commits its record, property and history writes in one
// transaction.
type Processor struct {
	deps
}

// NewProcessor creates a new response processor
func NewProcessor(db *gorm.DB, policy Policy, opts ...Option) *Processor {
	return &Processor{deps: newDeps(db, policy, "processor", opts)}
}

// OwnerResponse is an owner's answer to a pending verification
type OwnerResponse struct {
	Status   string
	Notes    string
	Evidence map[string]any
}

// AdminDecision is an admin override of a verification or property
type AdminDecision struct {
	Status string
	Notes  string
}

// RequestOptions tune a manual verification request
type RequestOptions struct {
	// ExpirationDays overrides the response window; zero keeps the default
	ExpirationDays int
}

// ParseOwnerStatus maps an owner answer to an availability status.
// "yes" and "no" are accepted from SMS replies.
func ParseOwnerStatus(s string) (models.AvailabilityStatus, error) {
	switch v := models.AvailabilityStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case "yes":
		return models.AvailabilityAvailable, nil
	case "no":
		return models.AvailabilityRented, nil
	default:
		if v.Valid() {
			return v, nil
		}
	}
	return "", validationf("invalid status %q: must be one of available, rented, unavailable, maintenance", s)
}

// ParseAdminStatus validates an admin decision status
func ParseAdminStatus(s string) (models.PropertyVerification, error) {
	switch v := models.PropertyVerification(strings.ToLower(strings.TrimSpace(s))); v {
	case models.PropertyVerified, models.PropertyRejected, models.PropertyPendingChanges:
		return v, nil
	}
	return "", validationf("invalid status %q: must be one of verified, rejected, pending_changes", s)
}

// RespondAsOwner records the owner's answer, moves the record to
// owner_responded and updates the property's availability.
func (p *Processor) RespondAsOwner(ctx context.Context, caller Caller, id uint, resp OwnerResponse) (*models.VerificationView, error) {
	status, err := ParseOwnerStatus(resp.Status)
	if err != nil {
		return nil, err
	}
	now := p.now()

	var propertyID uint
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		records := p.records.WithTx(tx)
		properties := p.properties.WithTx(tx)

		rec, err := records.Get(ctx, id)
		if err != nil {
			return err
		}
		prop, err := properties.Get(ctx, rec.PropertyID)
		if err != nil {
			return err
		}
		if prop.OwnerID != caller.UserID {
			return forbiddenf("only the property owner can respond to verification %d", id)
		}
		if !rec.IsPending() {
			return conflictf("verification %d has already been processed", id)
		}
		if rec.IsOverdue(now) {
			return conflictf("verification %d expired at %s", id, rec.Expiration.Format(time.RFC3339))
		}

		ownerID := caller.UserID
		decision := models.Decision{
			Status:    string(status),
			Notes:     resp.Notes,
			Evidence:  resp.Evidence,
			Timestamp: &now,
			OwnerID:   &ownerID,
		}
		if err := records.Finalize(ctx, id, models.StatusOwnerResponded, map[string]interface{}{
			"responder_id":  caller.UserID,
			"response_data": datatypes.NewJSONType(decision),
		}); err != nil {
			return err
		}

		if err := properties.UpdateAvailabilityStatus(ctx, prop.ID, status, &now); err != nil {
			return err
		}

		propertyID = prop.ID
		return p.history.WithTx(tx).Append(ctx, &models.VerificationHistory{
			PropertyID: prop.ID,
			Status:     string(status),
			VerifiedBy: caller.actorTag(),
			Timestamp:  now,
			Notes:      historyNotes(fmt.Sprintf("Owner response: %s", status), resp.Notes),
		})
	})
	if err != nil {
		return nil, persistence("apply owner response", err)
	}

	p.entry(id, propertyID).WithField("status", status).Info("Processor: owner response recorded")

	if err := p.rewards.GrantTokens(ctx, caller.UserID, p.policy.OwnerResponseReward, "verification response"); err != nil {
		p.entry(id, propertyID).WithError(err).Warn("Processor: failed to grant response reward")
	}
	p.reindex(ctx, propertyID)

	return p.records.GetView(ctx, id)
}

// RespondAsAdmin finalizes a pending record with an admin decision and
// applies it to the property's verification status.
func (p *Processor) RespondAsAdmin(ctx context.Context, caller Caller, id uint, decision AdminDecision) (*models.VerificationView, error) {
	if !caller.IsAdmin() {
		return nil, forbiddenf("admin privileges required")
	}
	status, err := ParseAdminStatus(decision.Status)
	if err != nil {
		return nil, err
	}
	now := p.now()

	var propertyID uint
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := p.records.WithTx(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		if !rec.IsPending() {
			return conflictf("verification %d has already been processed", id)
		}
		propertyID = rec.PropertyID
		return p.applyAdminDecision(ctx, tx, caller, rec, rec.PropertyID, status, decision.Notes, now)
	})
	if err != nil {
		return nil, persistence("apply admin decision", err)
	}

	p.entry(id, propertyID).WithField("status", status).Info("Processor: admin decision recorded")
	p.reindex(ctx, propertyID)

	return p.records.GetView(ctx, id)
}

// VerifyProperty applies an admin decision directly to a property. A pending
// record, if any, is finalized with the same decision.
func (p *Processor) VerifyProperty(ctx context.Context, caller Caller, propertyID uint, decision AdminDecision) (*models.PropertySummary, error) {
	if !caller.IsAdmin() {
		return nil, forbiddenf("admin privileges required")
	}
	status, err := ParseAdminStatus(decision.Status)
	if err != nil {
		return nil, err
	}
	now := p.now()

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := p.properties.WithTx(tx).Get(ctx, propertyID); err != nil {
			return err
		}
		rec, err := p.records.WithTx(tx).PendingFor(ctx, propertyID)
		if err != nil {
			return err
		}
		return p.applyAdminDecision(ctx, tx, caller, rec, propertyID, status, decision.Notes, now)
	})
	if err != nil {
		return nil, persistence("verify property", err)
	}

	p.log.WithFields(logrus.Fields{"property_id": propertyID, "status": status}).Info("Processor: property verification updated")
	p.reindex(ctx, propertyID)

	summary, err := p.properties.Summary(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// applyAdminDecision runs inside tx; rec may be nil when no record is pending
func (p *Processor) applyAdminDecision(ctx context.Context, tx *gorm.DB, caller Caller, rec *models.VerificationRecord,
	propertyID uint, status models.PropertyVerification, notes string, now time.Time) error {
	if rec != nil {
		adminID := caller.UserID
		decision := models.Decision{
			Status:    string(status),
			Notes:     notes,
			Timestamp: &now,
			AdminID:   &adminID,
		}
		if err := p.records.WithTx(tx).Finalize(ctx, rec.ID, models.VerificationStatus(status), map[string]interface{}{
			"responder_id":    caller.UserID,
			"system_decision": datatypes.NewJSONType(decision),
		}); err != nil {
			return err
		}
	}

	if err := p.properties.WithTx(tx).UpdateVerificationStatus(ctx, propertyID, status, now, p.policy.VerifiedValidity); err != nil {
		return err
	}

	return p.history.WithTx(tx).Append(ctx, &models.VerificationHistory{
		PropertyID: propertyID,
		Status:     string(status),
		VerifiedBy: caller.actorTag(),
		Timestamp:  now,
		Notes:      historyNotes(fmt.Sprintf("Admin decision: %s", status), notes),
	})
}

// UpdateAvailability changes a property's availability outside a
// verification cycle. Owners and admins may call it.
func (p *Processor) UpdateAvailability(ctx context.Context, caller Caller, propertyID uint, rawStatus string) (*models.PropertySummary, error) {
	status := models.AvailabilityStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if !status.Valid() {
		return nil, validationf("invalid status %q: must be one of available, rented, unavailable, maintenance", rawStatus)
	}
	now := p.now()

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prop, err := p.properties.WithTx(tx).Get(ctx, propertyID)
		if err != nil {
			return err
		}
		if prop.OwnerID != caller.UserID && !caller.IsAdmin() {
			return forbiddenf("not enough permissions for property %d", propertyID)
		}
		if err := p.properties.WithTx(tx).UpdateAvailabilityStatus(ctx, propertyID, status, nil); err != nil {
			return err
		}
		return p.history.WithTx(tx).Append(ctx, &models.VerificationHistory{
			PropertyID: propertyID,
			Status:     string(status),
			VerifiedBy: caller.actorTag(),
			Timestamp:  now,
			Notes:      fmt.Sprintf("Status updated to: %s", status),
		})
	})
	if err != nil {
		return nil, persistence("update availability", err)
	}

	p.reindex(ctx, propertyID)

	summary, err := p.properties.Summary(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// RequestVerification opens a manual verification. The owner gets type
// owner; an admin gets type agent and the owner is notified.
func (p *Processor) RequestVerification(ctx context.Context, caller Caller, propertyID uint, opts RequestOptions) (*models.VerificationView, error) {
	window, err := p.policy.responseWindow(opts.ExpirationDays)
	if err != nil {
		return nil, err
	}
	now := p.now()

	var (
		rec  *models.VerificationRecord
		prop *models.Property
	)
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		prop, err = p.properties.WithTx(tx).Get(ctx, propertyID)
		if err != nil {
			return err
		}

		vType := models.VerificationOwner
		switch {
		case prop.OwnerID == caller.UserID:
		case caller.IsAdmin():
			vType = models.VerificationAgent
		default:
			return forbiddenf("not enough permissions for property %d", propertyID)
		}

		rec = &models.VerificationRecord{
			PropertyID:       propertyID,
			VerificationType: vType,
			RequestedAt:      now,
			Expiration:       now.Add(window),
		}
		// owners asking for their own check are already aware of it
		if vType == models.VerificationOwner {
			rec.NotifiedAt = &now
		}
		if err := p.records.WithTx(tx).Create(ctx, rec); err != nil {
			return err
		}
		return p.history.WithTx(tx).Append(ctx, &models.VerificationHistory{
			PropertyID: propertyID,
			Status:     models.HistoryRequested,
			VerifiedBy: caller.actorTag(),
			Timestamp:  now,
			Notes:      fmt.Sprintf("Manual %s verification requested", vType),
		})
	})
	if err != nil {
		return nil, persistence("request verification", err)
	}

	p.entry(rec.ID, propertyID).WithField("type", rec.VerificationType).Info("Processor: manual verification requested")

	if rec.VerificationType == models.VerificationAgent {
		p.notifyOwner(ctx, rec, prop)
	}

	return p.records.GetView(ctx, rec.ID)
}

// Get returns one verification with its property. Only the owner and
// admins may read it.
func (p *Processor) Get(ctx context.Context, caller Caller, id uint) (*models.VerificationView, error) {
	view, err := p.records.GetView(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.Property.OwnerID != caller.UserID && !caller.IsAdmin() {
		return nil, forbiddenf("not enough permissions for verification %d", id)
	}
	return view, nil
}

// ListPendingFor returns the caller's pending verifications, oldest first.
// Admins see every pending verification.
func (p *Processor) ListPendingFor(ctx context.Context, caller Caller, page Page) ([]models.VerificationView, error) {
	if caller.IsAdmin() {
		return p.records.ListPending(ctx, nil, page)
	}
	ownerID := caller.UserID
	return p.records.ListPending(ctx, &ownerID, page)
}

// ListForProperty returns a property's verifications, newest first
func (p *Processor) ListForProperty(ctx context.Context, caller Caller, propertyID uint, page Page) ([]models.VerificationView, error) {
	prop, err := p.properties.Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if prop.OwnerID != caller.UserID && !caller.IsAdmin() {
		return nil, forbiddenf("not enough permissions for property %d", propertyID)
	}
	return p.records.ListByProperty(ctx, propertyID, page)
}

// History returns a property's verification timeline, newest first
func (p *Processor) History(ctx context.Context, propertyID uint, page Page) ([]models.VerificationHistory, error) {
	if _, err := p.properties.Get(ctx, propertyID); err != nil {
		return nil, err
	}
	return p.history.ListByProperty(ctx, propertyID, page)
}

func (p *Processor) entry(verificationID, propertyID uint) *logrus.Entry {
	return p.log.WithFields(logrus.Fields{
		"verification_id": verificationID,
		"property_id":     propertyID,
	})
}

func historyNotes(summary, notes string) string {
	if notes == "" {
		return summary
	}
	return summary + ": " + notes
}
