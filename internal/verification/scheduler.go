package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rental-marketplace/internal/models"
)

// Scheduler opens automatic verification requests for properties whose
// last verification is older than their configured cadence.
type Scheduler struct {
	deps
}

// NewScheduler creates a new verification scheduler
func NewScheduler(db *gorm.DB, policy Policy, opts ...Option) *Scheduler {
	return &Scheduler{deps: newDeps(db, policy, "scheduler", opts)}
}

// ScheduleResult holds the result of one scheduler run
type ScheduleResult struct {
	RunID              string    `json:"run_id"`
	ProcessedCount     int       `json:"processed_count"`      // Available properties without a pending record
	ScheduledCount     int       `json:"scheduled_count"`      // New pending records
	DisabledCount      int       `json:"disabled_count"`       // Properties with auto-verification turned off
	NotDueCount        int       `json:"not_due_count"`        // Verified within their cadence
	NotifiedCount      int       `json:"notified_count"`       // Owners reached, including retries
	NotifyFailureCount int       `json:"notify_failure_count"` // Failed notification attempts
	ErrorCount         int       `json:"error_count"`
	ExecutedAt         time.Time `json:"executed_at"`
	ScheduledIDs       []uint    `json:"scheduled_verifications"`
	Errors             []string  `json:"errors,omitempty"`
}

// Run executes one scheduling pass. Per-property failures are collected in
// the result; only a failure to list candidates aborts the run.
func (s *Scheduler) Run(ctx context.Context) (*ScheduleResult, error) {
	now := s.now()
	result := &ScheduleResult{
		RunID:        uuid.NewString(),
		ExecutedAt:   now,
		ScheduledIDs: []uint{},
	}
	log := s.log.WithField("run_id", result.RunID)

	// Owners missed on earlier runs go first so a fresh failure is not retried twice
	s.retryNotifications(ctx, now, result, log)

	batch := s.policy.batchSize()
	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		props, err := s.properties.ListSchedulable(ctx, afterID, batch)
		if err != nil {
			return result, err
		}
		if len(props) == 0 {
			break
		}

		for i := range props {
			prop := &props[i]
			afterID = prop.ID
			result.ProcessedCount++

			settings := prop.AutoVerification.Data()
			if !settings.IsEnabled() {
				result.DisabledCount++
				continue
			}
			if !isDue(prop, settings, s.policy.DefaultFrequencyDays, now) {
				result.NotDueCount++
				continue
			}

			rec, err := s.schedule(ctx, prop, now)
			if err != nil {
				if errors.Is(err, ErrConflict) {
					// a manual request landed between listing and insert
					result.NotDueCount++
					continue
				}
				errMsg := fmt.Sprintf("Failed to schedule verification for property %d: %v", prop.ID, err)
				log.WithField("property_id", prop.ID).Error("Scheduler: " + errMsg)
				result.Errors = append(result.Errors, errMsg)
				result.ErrorCount++
				continue
			}

			result.ScheduledCount++
			result.ScheduledIDs = append(result.ScheduledIDs, rec.ID)

			if s.notifyOwner(ctx, rec, prop) {
				result.NotifiedCount++
			} else {
				result.NotifyFailureCount++
			}
		}

		if len(props) < batch {
			break
		}
	}

	log.Infof("Scheduler: run completed. Processed: %d, Scheduled: %d, Disabled: %d, Not due: %d, Notified: %d, Notify failures: %d, Errors: %d",
		result.ProcessedCount, result.ScheduledCount, result.DisabledCount, result.NotDueCount,
		result.NotifiedCount, result.NotifyFailureCount, result.ErrorCount)

	return result, nil
}

// isDue reports whether the property's last verification is older than its cadence
func isDue(prop *models.Property, settings models.AutoVerificationSettings, defaultDays int, now time.Time) bool {
	if prop.LastVerified == nil {
		return true
	}
	return prop.LastVerified.Before(now.Add(-settings.Frequency(defaultDays)))
}

func (s *Scheduler) schedule(ctx context.Context, prop *models.Property, now time.Time) (*models.VerificationRecord, error) {
	rec := &models.VerificationRecord{
		PropertyID:       prop.ID,
		VerificationType: models.VerificationAutomatic,
		RequestedAt:      now,
		Expiration:       now.Add(s.policy.ResponseWindow),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.records.WithTx(tx).Create(ctx, rec); err != nil {
			return err
		}
		return s.history.WithTx(tx).Append(ctx, &models.VerificationHistory{
			PropertyID: prop.ID,
			Status:     models.HistoryRequested,
			VerifiedBy: models.ActorSystemScheduler,
			Timestamp:  now,
			Notes:      "Automatic verification requested",
		})
	})
	if err != nil {
		return nil, persistence("schedule verification", err)
	}
	return rec, nil
}

func (s *Scheduler) retryNotifications(ctx context.Context, now time.Time, result *ScheduleResult, log *logrus.Entry) {
	if s.policy.MaxNotifyAttempts <= 0 {
		return
	}

	recs, err := s.records.ListUnnotified(ctx, now, s.policy.MaxNotifyAttempts, s.policy.batchSize())
	if err != nil {
		errMsg := fmt.Sprintf("Failed to list unnotified verifications: %v", err)
		log.Error("Scheduler: " + errMsg)
		result.Errors = append(result.Errors, errMsg)
		result.ErrorCount++
		return
	}
	if len(recs) == 0 {
		return
	}

	log.Infof("Scheduler: retrying notification for %d pending verifications", len(recs))
	for i := range recs {
		rec := &recs[i]
		prop, err := s.properties.Get(ctx, rec.PropertyID)
		if err != nil {
			errMsg := fmt.Sprintf("Failed to load property %d for verification %d: %v", rec.PropertyID, rec.ID, err)
			log.Error("Scheduler: " + errMsg)
			result.Errors = append(result.Errors, errMsg)
			result.ErrorCount++
			continue
		}
		if s.notifyOwner(ctx, rec, prop) {
			result.NotifiedCount++
		} else {
			result.NotifyFailureCount++
		}
	}
}
