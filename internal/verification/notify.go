package verification

import (
	"context"

	"github.com/sirupsen/logrus"

	"rental-marketplace/internal/models"
)

// notifyOwner dispatches a verification request and records the outcome on
// the record. Failures are logged and reported as false, never returned.
func (d *deps) notifyOwner(ctx context.Context, rec *models.VerificationRecord, prop *models.Property) bool {
	entry := d.log.WithFields(logrus.Fields{
		"verification_id": rec.ID,
		"property_id":     prop.ID,
		"owner_id":        prop.OwnerID,
	})

	owner, err := d.properties.Owner(ctx, prop.OwnerID)
	if err != nil {
		entry.WithError(err).Warn("Notification: failed to load owner")
		d.recordNotifyFailure(ctx, rec.ID, entry)
		return false
	}

	delivery, err := d.notifier.SendVerificationRequest(ctx, NotificationRequest{
		VerificationID: rec.ID,
		PropertyID:     prop.ID,
		PropertyTitle:  prop.Title,
		Expiration:     rec.Expiration,
		Owner:          *owner,
	})
	if err != nil {
		entry.WithError(err).Warn("Notification: failed to notify owner")
		d.recordNotifyFailure(ctx, rec.ID, entry)
		return false
	}

	if err := d.records.MarkNotified(ctx, rec.ID, d.now()); err != nil {
		entry.WithError(err).Error("Notification: delivered but failed to record it")
	}
	entry.WithField("channel", delivery.Channel).Info("Notification: owner notified")
	return true
}

func (d *deps) recordNotifyFailure(ctx context.Context, id uint, entry *logrus.Entry) {
	if err := d.records.RecordNotifyFailure(ctx, id); err != nil {
		entry.WithError(err).Error("Notification: failed to record attempt")
	}
}

// reindex pushes the property's current trust signals; failures are logged
func (d *deps) reindex(ctx context.Context, propertyID uint) {
	summary, err := d.properties.Summary(ctx, propertyID)
	if err == nil {
		err = d.indexer.IndexProperty(ctx, summary)
	}
	if err != nil {
		d.log.WithError(err).WithField("property_id", propertyID).Warn("Search: failed to reindex property")
	}
}
