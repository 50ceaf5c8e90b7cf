package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-marketplace/internal/models"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIssueAndParse(t *testing.T) {
	token, err := Issue(secret, 12, models.RoleOwner, time.Hour)
	require.NoError(t, err)

	caller, err := Parse(secret, token)
	require.NoError(t, err)
	assert.Equal(t, uint(12), caller.UserID)
	assert.Equal(t, models.RoleOwner, caller.Role)
}

func TestParseRejects(t *testing.T) {
	expired, err := Issue(secret, 1, models.RoleOwner, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := Issue("other", 1, models.RoleOwner, time.Hour)
	require.NoError(t, err)
	badRole, err := Issue(secret, 1, models.UserRole("root"), time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"bad role":  badRole,
		"no expiry": noExpiry,
		"garbage":   "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(secret, token)
			assert.Error(t, err)
		})
	}
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", Middleware(secret), func(c *gin.Context) {
		caller, _ := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": caller.UserID, "role": caller.Role})
	})
	r.GET("/admin", Middleware(secret), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	r := newRouter()
	owner, _ := Issue(secret, 3, models.RoleOwner, time.Hour)
	admin, _ := Issue(secret, 4, models.RoleAdmin, time.Hour)
	expired, _ := Issue(secret, 3, models.RoleOwner, -time.Hour)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "nonsense").Code)

	w := do(r, "/me", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")

	w = do(r, "/me", owner)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":3,"role":"owner"}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", owner).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", admin).Code)
}
