package verification

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rental-marketplace/internal/logger"
)

// Option customises Scheduler, Processor and Sweeper construction
type Option func(*deps)

// WithClock injects the time source; results are converted to UTC
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.clock = now }
}

func WithNotifier(n NotificationSender) Option {
	return func(d *deps) {
		if n != nil {
			d.notifier = n
		}
	}
}

func WithIndexer(i Indexer) Option {
	return func(d *deps) {
		if i != nil {
			d.indexer = i
		}
	}
}

func WithRewards(r RewardGranter) Option {
	return func(d *deps) {
		if r != nil {
			d.rewards = r
		}
	}
}

type deps struct {
	db         *gorm.DB
	policy     Policy
	records    *RecordStore
	history    *HistoryStore
	properties *PropertyStore
	notifier   NotificationSender
	indexer    Indexer
	rewards    RewardGranter
	clock      func() time.Time
	log        *logrus.Entry
}

func newDeps(db *gorm.DB, policy Policy, component string, opts []Option) deps {
	d := deps{
		db:         db,
		policy:     policy,
		records:    NewRecordStore(db),
		history:    NewHistoryStore(db),
		properties: NewPropertyStore(db),
		notifier:   nopNotifier{},
		indexer:    nopIndexer{},
		rewards:    nopRewards{},
		clock:      time.Now,
		log:        logger.Log.WithField("component", component),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d *deps) now() time.Time {
	return d.clock().UTC()
}
