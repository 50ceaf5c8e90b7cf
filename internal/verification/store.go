package verification

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"rental-marketplace/internal/models"
)

// Page bounds list queries
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// RecordStore persists VerificationRecords and owns their state transitions
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore creates a new record store
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// WithTx binds the store to a transaction
func (s *RecordStore) WithTx(tx *gorm.DB) *RecordStore {
	return &RecordStore{db: tx}
}

// Create inserts a pending record. The property must exist and must not
// already have a pending record.
func (s *RecordStore) Create(ctx context.Context, rec *models.VerificationRecord) error {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Property{}).Where("id = ?", rec.PropertyID).Count(&count).Error; err != nil {
		return persistence("look up property", err)
	}
	if count == 0 {
		return notFoundf("property %d not found", rec.PropertyID)
	}

	if err := db.Model(&models.VerificationRecord{}).Where("active_key = ?", rec.PropertyID).Count(&count).Error; err != nil {
		return persistence("look up pending verification", err)
	}
	if count > 0 {
		return conflictf("property %d already has a pending verification", rec.PropertyID)
	}

	key := rec.PropertyID
	rec.Status = models.StatusPending
	rec.ActiveKey = &key

	if err := db.Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return conflictf("property %d already has a pending verification", rec.PropertyID)
		}
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return notFoundf("property %d not found", rec.PropertyID)
		}
		return persistence("create verification", err)
	}
	return nil
}

// Get returns the record by id
func (s *RecordStore) Get(ctx context.Context, id uint) (*models.VerificationRecord, error) {
	var rec models.VerificationRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundf("verification %d not found", id)
	}
	if err != nil {
		return nil, persistence("get verification", err)
	}
	rec.Status = rec.Status.Canonical()
	return &rec, nil
}

// PendingFor returns the pending record of a property, nil when there is none
func (s *RecordStore) PendingFor(ctx context.Context, propertyID uint) (*models.VerificationRecord, error) {
	var rec models.VerificationRecord
	err := s.db.WithContext(ctx).Where("active_key = ?", propertyID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("get pending verification", err)
	}
	return &rec, nil
}

// Finalize moves a pending record to status, applying fields in the same
// statement. The update only matches while the row is still pending; losing
// that race yields Conflict.
func (s *RecordStore) Finalize(ctx context.Context, id uint, status models.VerificationStatus, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = status
	updates["active_key"] = nil

	result := s.db.WithContext(ctx).Model(&models.VerificationRecord{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return persistence("finalize verification", result.Error)
	}
	if result.RowsAffected == 0 {
		return conflictf("verification %d has already been processed", id)
	}
	return nil
}

// ListExpiredPending returns pending records whose deadline is before now, oldest deadline first
func (s *RecordStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.VerificationRecord, error) {
	var recs []models.VerificationRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND expiration < ?", models.StatusPending, now).
		Order("expiration ASC, id ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, persistence("list expired verifications", err)
	}
	return recs, nil
}

// ListUnnotified returns open pending records whose owner was never reached
func (s *RecordStore) ListUnnotified(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.VerificationRecord, error) {
	var recs []models.VerificationRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND notified_at IS NULL AND notify_attempts < ? AND expiration >= ?",
			models.StatusPending, maxAttempts, now).
		Order("requested_at ASC, id ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, persistence("list unnotified verifications", err)
	}
	return recs, nil
}

// MarkNotified records a successful owner notification
func (s *RecordStore) MarkNotified(ctx context.Context, id uint, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.VerificationRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"notified_at":     at,
			"notify_attempts": gorm.Expr("notify_attempts + 1"),
		}).Error
	return persistence("mark verification notified", err)
}

// RecordNotifyFailure counts a failed notification attempt
func (s *RecordStore) RecordNotifyFailure(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(&models.VerificationRecord{}).
		Where("id = ?", id).
		Update("notify_attempts", gorm.Expr("notify_attempts + 1")).Error
	return persistence("record notification failure", err)
}

// viewRow is a record joined with its property columns
type viewRow struct {
	models.VerificationRecord
	PropertyOwnerID            uint
	PropertyTitle              string
	PropertyAddress            string
	PropertyCity               string
	PropertyAvailabilityStatus models.AvailabilityStatus
	PropertyVerificationStatus models.PropertyVerification
	PropertyReliabilityScore   float64
	PropertyLastVerified       *time.Time
	PropertyExpirationDate     *time.Time
}

func (r viewRow) view() models.VerificationView {
	rec := r.VerificationRecord
	rec.Status = rec.Status.Canonical()
	return models.VerificationView{
		VerificationRecord: rec,
		Property: models.PropertySummary{
			ID:                 rec.PropertyID,
			OwnerID:            r.PropertyOwnerID,
			Title:              r.PropertyTitle,
			Address:            r.PropertyAddress,
			City:               r.PropertyCity,
			AvailabilityStatus: r.PropertyAvailabilityStatus,
			VerificationStatus: r.PropertyVerificationStatus,
			ReliabilityScore:   r.PropertyReliabilityScore,
			LastVerified:       r.PropertyLastVerified,
			ExpirationDate:     r.PropertyExpirationDate,
		},
	}
}

func (s *RecordStore) viewQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.VerificationRecord{}).
		Select(`verifications.*,
			properties.owner_id AS property_owner_id,
			properties.title AS property_title,
			properties.address AS property_address,
			properties.city AS property_city,
			properties.availability_status AS property_availability_status,
			properties.verification_status AS property_verification_status,
			properties.reliability_score AS property_reliability_score,
			properties.last_verified AS property_last_verified,
			properties.expiration_date AS property_expiration_date`).
		Joins("JOIN properties ON properties.id = verifications.property_id")
}

func (s *RecordStore) scanViews(q *gorm.DB, op string) ([]models.VerificationView, error) {
	var rows []viewRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, persistence(op, err)
	}
	views := make([]models.VerificationView, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.view())
	}
	return views, nil
}

// GetView returns the record with its property summary
func (s *RecordStore) GetView(ctx context.Context, id uint) (*models.VerificationView, error) {
	views, err := s.scanViews(s.viewQuery(ctx).Where("verifications.id = ?", id).Limit(1), "get verification")
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, notFoundf("verification %d not found", id)
	}
	return &views[0], nil
}

// ListByProperty returns a property's records, newest first
func (s *RecordStore) ListByProperty(ctx context.Context, propertyID uint, page Page) ([]models.VerificationView, error) {
	page = page.normalize()
	q := s.viewQuery(ctx).
		Where("verifications.property_id = ?", propertyID).
		Order("verifications.requested_at DESC, verifications.id DESC").
		Limit(page.Limit).Offset(page.Offset)
	return s.scanViews(q, "list verifications by property")
}

// ListPending returns pending records oldest first; a nil ownerID lists globally
func (s *RecordStore) ListPending(ctx context.Context, ownerID *uint, page Page) ([]models.VerificationView, error) {
	page = page.normalize()
	q := s.viewQuery(ctx).Where("verifications.status = ?", models.StatusPending)
	if ownerID != nil {
		q = q.Where("properties.owner_id = ?", *ownerID)
	}
	q = q.Order("verifications.requested_at ASC, verifications.id ASC").
		Limit(page.Limit).Offset(page.Offset)
	return s.scanViews(q, "list pending verifications")
}

// HistoryStore is the append-only verification timeline
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a new history store
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// WithTx binds the store to a transaction
func (s *HistoryStore) WithTx(tx *gorm.DB) *HistoryStore {
	return &HistoryStore{db: tx}
}

// Append writes one history entry
func (s *HistoryStore) Append(ctx context.Context, entry *models.VerificationHistory) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return persistence("append verification history", s.db.WithContext(ctx).Create(entry).Error)
}

// ListByProperty returns a property's timeline, newest first
func (s *HistoryStore) ListByProperty(ctx context.Context, propertyID uint, page Page) ([]models.VerificationHistory, error) {
	page = page.normalize()
	var entries []models.VerificationHistory
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("timestamp DESC, id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&entries).Error
	if err != nil {
		return nil, persistence("list verification history", err)
	}
	return entries, nil
}

// PropertyStore is the engine's view of the property collaborator
type PropertyStore struct {
	db *gorm.DB
}

// NewPropertyStore creates a new property store
func NewPropertyStore(db *gorm.DB) *PropertyStore {
	return &PropertyStore{db: db}
}

// WithTx binds the store to a transaction
func (s *PropertyStore) WithTx(tx *gorm.DB) *PropertyStore {
	return &PropertyStore{db: tx}
}

// Get returns the property by id
func (s *PropertyStore) Get(ctx context.Context, id uint) (*models.Property, error) {
	var p models.Property
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundf("property %d not found", id)
	}
	if err != nil {
		return nil, persistence("get property", err)
	}
	return &p, nil
}

// Owner returns the user owning a property
func (s *PropertyStore) Owner(ctx context.Context, ownerID uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundf("user %d not found", ownerID)
	}
	if err != nil {
		return nil, persistence("get property owner", err)
	}
	return &u, nil
}

// UpdateAvailabilityStatus sets availability_status; a non-nil verifiedAt also stamps last_verified
func (s *PropertyStore) UpdateAvailabilityStatus(ctx context.Context, id uint, status models.AvailabilityStatus, verifiedAt *time.Time) error {
	updates := map[string]interface{}{"availability_status": status}
	if verifiedAt != nil {
		updates["last_verified"] = *verifiedAt
	}
	return s.update(ctx, id, updates, "update availability status")
}

// UpdateVerificationStatus sets verification_status. Verified also sets
// last_verified to now and expiration_date to now plus validity.
func (s *PropertyStore) UpdateVerificationStatus(ctx context.Context, id uint, status models.PropertyVerification, now time.Time, validity time.Duration) error {
	updates := map[string]interface{}{"verification_status": status}
	if status == models.PropertyVerified {
		updates["last_verified"] = now
		updates["expiration_date"] = now.Add(validity)
	}
	return s.update(ctx, id, updates, "update verification status")
}

// DecreaseReliability lowers reliability_score by delta, floored at zero,
// in a single UPDATE. It returns the new score.
func (s *PropertyStore) DecreaseReliability(ctx context.Context, id uint, delta float64) (float64, error) {
	db := s.db.WithContext(ctx)
	err := db.Model(&models.Property{}).Where("id = ?", id).
		Update("reliability_score", gorm.Expr(
			"CASE WHEN reliability_score - ? < 0 THEN 0 ELSE reliability_score - ? END", delta, delta)).Error
	if err != nil {
		return 0, persistence("decrease reliability score", err)
	}

	var p models.Property
	err = db.Select("id", "reliability_score").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, notFoundf("property %d not found", id)
	}
	if err != nil {
		return 0, persistence("read reliability score", err)
	}
	return p.ReliabilityScore, nil
}

func (s *PropertyStore) update(ctx context.Context, id uint, updates map[string]interface{}, op string) error {
	// callers load the property first; RowsAffected is not checked because
	// MySQL reports zero for rows whose values did not change
	err := s.db.WithContext(ctx).Model(&models.Property{}).Where("id = ?", id).Updates(updates).Error
	return persistence(op, err)
}

// Summary returns the property context attached to verification responses
func (s *PropertyStore) Summary(ctx context.Context, id uint) (models.PropertySummary, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return models.PropertySummary{}, err
	}
	return p.Summary(), nil
}

// ListSchedulable returns available properties with no pending record and
// id greater than afterID, in id order.
func (s *PropertyStore) ListSchedulable(ctx context.Context, afterID uint, limit int) ([]models.Property, error) {
	var props []models.Property
	err := s.db.WithContext(ctx).
		Where("availability_status = ?", models.AvailabilityAvailable).
		Where("id > ?", afterID).
		Where("NOT EXISTS (SELECT 1 FROM verifications v WHERE v.active_key = properties.id)").
		Order("id ASC").
		Limit(limit).
		Find(&props).Error
	if err != nil {
		return nil, persistence("list schedulable properties", err)
	}
	return props, nil
}

// ListAfter returns properties with id greater than afterID, in id order
func (s *PropertyStore) ListAfter(ctx context.Context, afterID uint, limit int) ([]models.Property, error) {
	var props []models.Property
	err := s.db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&props).Error
	if err != nil {
		return nil, persistence("list properties", err)
	}
	return props, nil
}

// TokenLedger is the gorm-backed RewardGranter crediting users.token_balance
type TokenLedger struct {
	db *gorm.DB
}

// NewTokenLedger creates a new token ledger
func NewTokenLedger(db *gorm.DB) *TokenLedger {
	return &TokenLedger{db: db}
}

// GrantTokens adds amount to the user's balance
func (l *TokenLedger) GrantTokens(ctx context.Context, userID uint, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}
	result := l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("token_balance", gorm.Expr("token_balance + ?", amount))
	if result.Error != nil {
		return persistence("grant tokens for "+reason, result.Error)
	}
	if result.RowsAffected == 0 {
		return notFoundf("user %d not found", userID)
	}
	return nil
}
