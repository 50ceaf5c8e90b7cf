package verification

import (
	"time"

	"rental-marketplace/internal/config"
)

const day = 24 * time.Hour

// Policy holds every temporal and scoring default the engine applies.
// Scheduler, Processor and Sweeper receive it at construction time.
type Policy struct {
	DefaultFrequencyDays int
	ResponseWindow       time.Duration
	MaxManualWindowDays  int
	VerifiedValidity     time.Duration
	ReliabilityPenalty   float64
	OwnerResponseReward  int
	MaxNotifyAttempts    int
	BatchSize            int
}

// DefaultPolicy mirrors config.DefaultConfig().Verification
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultConfig().Verification)
}

// PolicyFromConfig converts the YAML section into engine units
func PolicyFromConfig(c config.VerificationConfig) Policy {
	return Policy{
		DefaultFrequencyDays: c.DefaultFrequencyDays,
		ResponseWindow:       time.Duration(c.ResponseWindowDays) * day,
		MaxManualWindowDays:  c.MaxManualWindowDays,
		VerifiedValidity:     time.Duration(c.VerifiedValidityDays) * day,
		ReliabilityPenalty:   c.ReliabilityPenalty,
		OwnerResponseReward:  c.OwnerResponseReward,
		MaxNotifyAttempts:    c.MaxNotifyAttempts,
		BatchSize:            c.BatchSize,
	}
}

// responseWindow resolves a manual request's window; zero means the default
func (p Policy) responseWindow(days int) (time.Duration, error) {
	if days == 0 {
		return p.ResponseWindow, nil
	}
	if days < 1 || days > p.MaxManualWindowDays {
		return 0, validationf("expiration_days must be between 1 and %d", p.MaxManualWindowDays)
	}
	return time.Duration(days) * day, nil
}

func (p Policy) batchSize() int {
	if p.BatchSize <= 0 {
		return 100
	}
	return p.BatchSize
}
