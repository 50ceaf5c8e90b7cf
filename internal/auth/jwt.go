package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rental-marketplace/internal/models"
	"rental-marketplace/internal/verification"
)

const callerKey = "caller"

// Claims are the access token claims issued by the account service
type Claims struct {
	Role models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 access token for a user
func Issue(secret string, userID uint, role models.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse validates a token and returns the caller it identifies
func Parse(secret, tokenStr string) (verification.Caller, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return verification.Caller{}, err
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return verification.Caller{}, errors.New("invalid subject")
	}
	switch claims.Role {
	case models.RoleTenant, models.RoleOwner, models.RoleAdmin:
	default:
		return verification.Caller{}, fmt.Errorf("invalid role %q", claims.Role)
	}
	return verification.Caller{UserID: uint(id), Role: claims.Role}, nil
}

// Middleware rejects requests without a valid bearer token
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		caller, err := Parse(secret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireAdmin must run after Middleware
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller, ok := CallerFrom(c); !ok || !caller.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access only"})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the authenticated caller set by Middleware
func CallerFrom(c *gin.Context) (verification.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return verification.Caller{}, false
	}
	caller, ok := v.(verification.Caller)
	return caller, ok
}
