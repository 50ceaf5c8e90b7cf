package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rental-marketplace/internal/models"
)

const expiredNote = "marked unverified due to no response"

// Sweeper expires pending verifications whose response deadline has passed
type Sweeper struct {
	deps
}

// NewSweeper creates a new expiration sweeper
func NewSweeper(db *gorm.DB, policy Policy, opts ...Option) *Sweeper {
	return &Sweeper{deps: newDeps(db, policy, "sweeper", opts)}
}

// SweepResult holds the result of one sweep
type SweepResult struct {
	RunID        string    `json:"run_id"`
	TargetCount  int       `json:"target_count"`  // Pending records past their deadline
	ExpiredCount int       `json:"expired_count"` // Records moved to expired
	SkippedCount int       `json:"skipped_count"` // Finalized concurrently by a response
	ErrorCount   int       `json:"error_count"`
	ExecutedAt   time.Time `json:"executed_at"`
	ExpiredIDs   []uint    `json:"expired_verifications"`
	Errors       []string  `json:"errors,omitempty"`
}

// Run expires every overdue pending record. Each record is handled in its
// own transaction; failures are collected and the sweep continues.
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	result := &SweepResult{
		RunID:      uuid.NewString(),
		ExecutedAt: now,
		ExpiredIDs: []uint{},
	}
	log := s.log.WithField("run_id", result.RunID)

	batch := s.policy.batchSize()
	// records that failed stay pending and would be listed again
	failed := make(map[uint]bool)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		limit := batch + len(failed)
		recs, err := s.records.ListExpiredPending(ctx, now, limit)
		if err != nil {
			return result, err
		}

		progressed := false
		for i := range recs {
			rec := &recs[i]
			if failed[rec.ID] {
				continue
			}
			progressed = true
			result.TargetCount++

			err := s.expire(ctx, rec, now)
			switch {
			case err == nil:
				result.ExpiredCount++
				result.ExpiredIDs = append(result.ExpiredIDs, rec.ID)
				s.reindex(ctx, rec.PropertyID)
			case errors.Is(err, ErrConflict):
				result.SkippedCount++
			default:
				failed[rec.ID] = true
				errMsg := fmt.Sprintf("Failed to expire verification %d: %v", rec.ID, err)
				log.WithField("verification_id", rec.ID).Error("Sweeper: " + errMsg)
				result.Errors = append(result.Errors, errMsg)
				result.ErrorCount++
			}
		}

		if !progressed || len(recs) < limit {
			break
		}
	}

	if result.TargetCount == 0 {
		log.Debug("Sweeper: no expired verifications found")
		return result, nil
	}

	log.Infof("Sweeper: completed. %d/%d expired, %d skipped, %d errors",
		result.ExpiredCount, result.TargetCount, result.SkippedCount, result.ErrorCount)

	return result, nil
}

// expire closes one record: status, reliability penalty and history commit together
func (s *Sweeper) expire(ctx context.Context, rec *models.VerificationRecord, now time.Time) error {
	decision := models.Decision{
		Status:    string(models.StatusExpired),
		Notes:     expiredNote,
		Timestamp: &now,
		Actor:     models.ActorSystemExpiration,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.records.WithTx(tx).Finalize(ctx, rec.ID, models.StatusExpired, map[string]interface{}{
			"system_decision": datatypes.NewJSONType(decision),
		}); err != nil {
			return err
		}

		score, err := s.properties.WithTx(tx).DecreaseReliability(ctx, rec.PropertyID, s.policy.ReliabilityPenalty)
		if err != nil {
			return err
		}

		return s.history.WithTx(tx).Append(ctx, &models.VerificationHistory{
			PropertyID: rec.PropertyID,
			Status:     models.HistoryUnverified,
			VerifiedBy: models.ActorSystemExpiration,
			Timestamp:  now,
			Notes:      fmt.Sprintf("Verification %d %s; reliability score now %.2f", rec.ID, expiredNote, score),
		})
	})
	return persistence("expire verification", err)
}
