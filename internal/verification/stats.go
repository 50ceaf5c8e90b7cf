package verification

import (
	"context"
	"time"

	"rental-marketplace/internal/models"
)

// Stats summarises verification activity for the admin dashboard
type Stats struct {
	ByStatus           map[models.VerificationStatus]int64 `json:"by_status"`
	OverduePending     int64                               `json:"overdue_pending"`
	UnnotifiedPending  int64                               `json:"unnotified_pending"`
	AverageReliability float64                             `json:"average_reliability"`
	UnreliableCount    int64                               `json:"unreliable_properties"` // reliability below 0.3
	RequestedLast30d   int64                               `json:"requested_last_30_days"`
	GeneratedAt        time.Time                           `json:"generated_at"`
}

const unreliableThreshold = 0.3

// Stats computes current counts across all verifications
func (p *Processor) Stats(ctx context.Context, caller Caller) (*Stats, error) {
	if !caller.IsAdmin() {
		return nil, forbiddenf("admin privileges required")
	}
	now := p.now()
	db := p.db.WithContext(ctx)
	stats := &Stats{
		ByStatus:    make(map[models.VerificationStatus]int64),
		GeneratedAt: now,
	}

	var statusCounts []struct {
		Status models.VerificationStatus
		Count  int64
	}
	if err := db.Model(&models.VerificationRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, persistence("count verifications by status", err)
	}
	for _, sc := range statusCounts {
		stats.ByStatus[sc.Status.Canonical()] += sc.Count
	}

	if err := db.Model(&models.VerificationRecord{}).
		Where("status = ? AND expiration < ?", models.StatusPending, now).
		Count(&stats.OverduePending).Error; err != nil {
		return nil, persistence("count overdue verifications", err)
	}

	if err := db.Model(&models.VerificationRecord{}).
		Where("status = ? AND notified_at IS NULL", models.StatusPending).
		Count(&stats.UnnotifiedPending).Error; err != nil {
		return nil, persistence("count unnotified verifications", err)
	}

	var avg struct{ Avg *float64 }
	if err := db.Model(&models.Property{}).
		Select("AVG(reliability_score) as avg").
		Scan(&avg).Error; err != nil {
		return nil, persistence("average reliability", err)
	}
	if avg.Avg != nil {
		stats.AverageReliability = *avg.Avg
	}

	if err := db.Model(&models.Property{}).
		Where("reliability_score < ?", unreliableThreshold).
		Count(&stats.UnreliableCount).Error; err != nil {
		return nil, persistence("count unreliable properties", err)
	}

	if err := db.Model(&models.VerificationRecord{}).
		Where("requested_at >= ?", now.AddDate(0, 0, -30)).
		Count(&stats.RequestedLast30d).Error; err != nil {
		return nil, persistence("count recent verifications", err)
	}

	return stats, nil
}
