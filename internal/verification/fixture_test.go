package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rental-marketplace/internal/database"
	"rental-marketplace/internal/models"
)

type fakeNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []NotificationRequest
}

func (n *fakeNotifier) SendVerificationRequest(_ context.Context, req NotificationRequest) (Delivery, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return Delivery{}, errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, req)
	return Delivery{Channel: "email"}, nil
}

func (n *fakeNotifier) setFail(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []models.PropertySummary
}

func (i *fakeIndexer) IndexProperty(_ context.Context, s models.PropertySummary) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.indexed = append(i.indexed, s)
	return nil
}

type fixture struct {
	t        *testing.T
	db       *gorm.DB
	now      time.Time
	policy   Policy
	notifier *fakeNotifier
	indexer  *fakeIndexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = gdb.Close() })

	return &fixture{
		t:        t,
		db:       gdb.DB(),
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		policy:   DefaultPolicy(),
		notifier: &fakeNotifier{},
		indexer:  &fakeIndexer{},
	}
}

func (f *fixture) opts() []Option {
	return []Option{
		WithClock(func() time.Time { return f.now }),
		WithNotifier(f.notifier),
		WithIndexer(f.indexer),
		WithRewards(NewTokenLedger(f.db)),
	}
}

func (f *fixture) scheduler() *Scheduler { return NewScheduler(f.db, f.policy, f.opts()...) }
func (f *fixture) sweeper() *Sweeper     { return NewSweeper(f.db, f.policy, f.opts()...) }
func (f *fixture) processor() *Processor { return NewProcessor(f.db, f.policy, f.opts()...) }

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

var userSeq int

func (f *fixture) user(role models.UserRole) *models.User {
	f.t.Helper()
	userSeq++
	u := &models.User{
		Email:       fmt.Sprintf("user%d@example.com", userSeq),
		FullName:    fmt.Sprintf("User %d", userSeq),
		PhoneNumber: "+15550000000",
		Role:        role,
	}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *fixture) property(owner *models.User, mutate ...func(*models.Property)) *models.Property {
	f.t.Helper()
	p := &models.Property{
		OwnerID:            owner.ID,
		Title:              "Two bedroom flat",
		Address:            "12 Market Street",
		City:               "Nairobi",
		AvailabilityStatus: models.AvailabilityAvailable,
		VerificationStatus: models.PropertyPending,
		ReliabilityScore:   0.5,
	}
	for _, m := range mutate {
		m(p)
	}
	require.NoError(f.t, f.db.Create(p).Error)
	return p
}

func lastVerifiedAgo(now time.Time, d time.Duration) func(*models.Property) {
	return func(p *models.Property) {
		at := now.Add(-d)
		p.LastVerified = &at
	}
}

func autoSettings(enabled bool, days int) func(*models.Property) {
	return func(p *models.Property) {
		p.AutoVerification = datatypes.NewJSONType(models.AutoVerificationSettings{Enabled: &enabled, FrequencyDays: days})
	}
}

// pending inserts a pending record directly, bypassing the scheduler
func (f *fixture) pending(p *models.Property, requestedAgo, window time.Duration) *models.VerificationRecord {
	f.t.Helper()
	rec := &models.VerificationRecord{
		PropertyID:       p.ID,
		VerificationType: models.VerificationAutomatic,
		RequestedAt:      f.now.Add(-requestedAgo),
		Expiration:       f.now.Add(-requestedAgo).Add(window),
	}
	require.NoError(f.t, NewRecordStore(f.db).Create(context.Background(), rec))
	return rec
}

func (f *fixture) reload(p *models.Property) *models.Property {
	f.t.Helper()
	var out models.Property
	require.NoError(f.t, f.db.First(&out, p.ID).Error)
	return &out
}

func (f *fixture) record(id uint) *models.VerificationRecord {
	f.t.Helper()
	var out models.VerificationRecord
	require.NoError(f.t, f.db.First(&out, id).Error)
	return &out
}

func (f *fixture) history(p *models.Property) []models.VerificationHistory {
	f.t.Helper()
	var out []models.VerificationHistory
	require.NoError(f.t, f.db.Where("property_id = ?", p.ID).Order("id ASC").Find(&out).Error)
	return out
}

func (f *fixture) recordsFor(p *models.Property) []models.VerificationRecord {
	f.t.Helper()
	var out []models.VerificationRecord
	require.NoError(f.t, f.db.Where("property_id = ?", p.ID).Order("id ASC").Find(&out).Error)
	return out
}

func ownerOf(u *models.User) Caller {
	return Caller{UserID: u.ID, Role: u.Role}
}

const days = 24 * time.Hour

// abortOn installs a trigger that aborts matching writes, e.g.
// "BEFORE UPDATE OF reliability_score ON properties WHEN OLD.id = 3".
func (f *fixture) abortOn(name, when string) {
	f.t.Helper()
	require.NoError(f.t, f.db.Exec(fmt.Sprintf(
		"CREATE TRIGGER %s %s BEGIN SELECT RAISE(ABORT, '%s'); END", name, when, name)).Error)
}
