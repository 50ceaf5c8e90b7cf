package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rental-marketplace/internal/auth"
	"rental-marketplace/internal/config"
	"rental-marketplace/internal/database"
	"rental-marketplace/internal/models"
	"rental-marketplace/internal/ratelimit"
	"rental-marketplace/internal/scheduler"
	"rental-marketplace/internal/search"
	"rental-marketplace/internal/verification"
)

const testSecret = "handler-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSearcher struct {
	params search.FilterParams
}

func (f *fakeSearcher) FilterSearch(params search.FilterParams) (*search.FilterResult, error) {
	f.params = params
	return &search.FilterResult{Hits: []search.TrustDocument{{ID: 1, ReliabilityScore: 0.2}}, TotalHits: 1}, nil
}

type testServer struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	searcher *fakeSearcher
	userSeq  int
}

func newTestServer(t *testing.T, perMinute int) *testServer {
	t.Helper()
	gdb, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = gdb.Close() })
	db := gdb.DB()

	policy := verification.DefaultPolicy()
	processor := verification.NewProcessor(db, policy)
	jobs := scheduler.NewScheduler(
		config.JobsConfig{LockTTLSeconds: 60},
		verification.NewScheduler(db, policy),
		verification.NewSweeper(db, policy),
		scheduler.NewLocalLocker(),
	)
	searcher := &fakeSearcher{}

	r := gin.New()
	Router{
		JWTSecret:    testSecret,
		Verification: NewVerificationHandler(processor),
		Admin:        NewAdminHandler(processor, jobs, searcher, nil),
		Limiter:      ratelimit.NewRateLimiter(perMinute, 0, true),
	}.RegisterRoutes(r)

	return &testServer{t: t, db: db, router: r, searcher: searcher}
}

func (s *testServer) user(role models.UserRole) (*models.User, string) {
	s.t.Helper()
	s.userSeq++
	u := &models.User{Email: fmt.Sprintf("u%d@example.com", s.userSeq), Role: role}
	require.NoError(s.t, s.db.Create(u).Error)
	token, err := auth.Issue(testSecret, u.ID, role, time.Hour)
	require.NoError(s.t, err)
	return u, token
}

func (s *testServer) property(owner *models.User) *models.Property {
	s.t.Helper()
	p := &models.Property{OwnerID: owner.ID, Title: "Studio", City: "Kisumu"}
	require.NoError(s.t, s.db.Create(p).Error)
	return p
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 5)
	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t, 5)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/verifications/pending", "", nil).Code)
}

func TestOwnerRequestAndRespond(t *testing.T) {
	s := newTestServer(t, 5)
	owner, token := s.user(models.RoleOwner)
	prop := s.property(owner)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/verifications/request/%d", prop.ID), token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[models.VerificationView](t, w)
	assert.Equal(t, models.VerificationOwner, view.VerificationType)
	assert.Equal(t, models.StatusPending, view.Status)
	assert.Equal(t, prop.ID, view.Property.ID)

	w = s.do(http.MethodPost, fmt.Sprintf("/api/verifications/request/%d", prop.ID), token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/verifications/pending", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, w)["count"])

	w = s.do(http.MethodPost, fmt.Sprintf("/api/verifications/%d/respond", view.ID), token,
		RespondRequest{Status: "rented", Notes: "signed lease"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	responded := decode[models.VerificationView](t, w)
	assert.Equal(t, models.StatusOwnerResponded, responded.Status)
	assert.Equal(t, models.AvailabilityRented, responded.Property.AvailabilityStatus)

	w = s.do(http.MethodPost, fmt.Sprintf("/api/verifications/%d/respond", view.ID), token,
		RespondRequest{Status: "available"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/verifications/history/%d", prop.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode[map[string]interface{}](t, w)["count"])
}

func TestRespondValidation(t *testing.T) {
	s := newTestServer(t, 5)
	owner, token := s.user(models.RoleOwner)
	prop := s.property(owner)
	w := s.do(http.MethodPost, fmt.Sprintf("/api/verifications/request/%d", prop.ID), token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	view := decode[models.VerificationView](t, w)

	w = s.do(http.MethodPost, fmt.Sprintf("/api/verifications/%d/respond", view.ID), token, map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "validation_required")

	w = s.do(http.MethodPost, fmt.Sprintf("/api/verifications/%d/respond", view.ID), token, RespondRequest{Status: "sold"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/verifications/abc/respond", token, RespondRequest{Status: "available"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/verifications/9999", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, fmt.Sprintf("/api/verifications/request/%d", prop.ID), token,
		RequestVerificationRequest{ExpirationDays: -1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestOtherOwnerForbidden(t *testing.T) {
	s := newTestServer(t, 5)
	owner, token := s.user(models.RoleOwner)
	_, stranger := s.user(models.RoleOwner)
	prop := s.property(owner)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/verifications/request/%d", prop.ID), token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	view := decode[models.VerificationView](t, w)

	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPost, fmt.Sprintf("/api/verifications/%d/respond", view.ID), stranger, RespondRequest{Status: "available"}).Code)
	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodGet, fmt.Sprintf("/api/verifications/%d", view.ID), stranger, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPut, fmt.Sprintf("/api/properties/%d/status", prop.ID), stranger, StatusUpdateRequest{Status: "rented"}).Code)
	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPut, fmt.Sprintf("/api/verifications/%d", view.ID), token, AdminUpdateRequest{Status: "verified"}).Code)
}

func TestAdminDecisionAndVerify(t *testing.T) {
	s := newTestServer(t, 5)
	owner, ownerToken := s.user(models.RoleOwner)
	_, adminToken := s.user(models.RoleAdmin)
	prop := s.property(owner)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/verifications/request/%d", prop.ID), ownerToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	view := decode[models.VerificationView](t, w)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/verifications/%d", view.ID), adminToken, AdminUpdateRequest{Status: "approved"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "validation_oneof")

	w = s.do(http.MethodPut, fmt.Sprintf("/api/verifications/%d", view.ID), adminToken, AdminUpdateRequest{Status: "verified"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decided := decode[models.VerificationView](t, w)
	assert.Equal(t, models.StatusVerified, decided.Status)
	assert.Equal(t, models.PropertyVerified, decided.Property.VerificationStatus)
	require.NotNil(t, decided.Property.ExpirationDate)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/admin/properties/%d/verify", prop.ID), adminToken,
		AdminUpdateRequest{Status: "pending_changes", Notes: "photos outdated"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[models.PropertySummary](t, w)
	assert.Equal(t, models.PropertyPendingChanges, summary.VerificationStatus)

	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPut, fmt.Sprintf("/api/admin/properties/%d/verify", prop.ID), ownerToken, AdminUpdateRequest{Status: "verified"}).Code)
}

func TestAdminJobsAndStats(t *testing.T) {
	s := newTestServer(t, 5)
	owner, ownerToken := s.user(models.RoleOwner)
	_, adminToken := s.user(models.RoleAdmin)
	s.property(owner)
	s.property(owner)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/admin/verifications/schedule", ownerToken, nil).Code)

	w := s.do(http.MethodPost, "/api/admin/verifications/schedule", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[verification.ScheduleResult](t, w)
	assert.Equal(t, 2, result.ScheduledCount)

	w = s.do(http.MethodPost, "/api/admin/verifications/sweep", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[verification.SweepResult](t, w).ExpiredCount)

	w = s.do(http.MethodGet, "/api/admin/verifications/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[struct {
		Verifications verification.Stats `json:"verifications"`
	}](t, w)
	assert.Equal(t, int64(2), stats.Verifications.ByStatus[models.StatusPending])

	w = s.do(http.MethodPost, "/api/admin/verifications/reindex", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[verification.ReindexResult](t, w).IndexedCount)
}

func TestAdminTrustSearch(t *testing.T) {
	s := newTestServer(t, 5)
	_, adminToken := s.user(models.RoleAdmin)

	w := s.do(http.MethodGet, "/api/admin/verifications/search?city=Kisumu&max_reliability=0.3&verification_status=pending,expired&limit=5", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Kisumu", s.searcher.params.City)
	require.NotNil(t, s.searcher.params.MaxReliability)
	assert.Equal(t, 0.3, *s.searcher.params.MaxReliability)
	assert.Nil(t, s.searcher.params.MinReliability)
	assert.Equal(t, []string{"pending", "expired"}, s.searcher.params.VerificationStatus)
	assert.Equal(t, int64(5), s.searcher.params.Limit)
	assert.Equal(t, "reliability_asc", s.searcher.params.SortBy)
}

func TestManualRequestRateLimited(t *testing.T) {
	s := newTestServer(t, 2)
	owner, token := s.user(models.RoleOwner)
	_, other := s.user(models.RoleOwner)
	prop := s.property(owner)
	path := fmt.Sprintf("/api/verifications/request/%d", prop.ID)

	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, path, token, nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, path, token, nil).Code)
	w := s.do(http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "remaining_this_minute")

	// another caller has its own window and reaches the permission check
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, path, other, nil).Code)
}
