package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleDriver UserRole = "DRIVER"
	RoleUser   UserRole = "USER"
)

type Claims struct {
	UserID   string   `json:"userId"`
	DriverID *string  `json:"driverId,omitempty"`
	Role     UserRole `json:"role"`
	Name     *string  `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserIDInt64 returns the numeric user id, 0 when the claim is malformed.
func (c *Claims) UserIDInt64() int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(c.UserID), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// DriverIDInt64 returns the numeric driver id, 0 when the token carries
// no driver identity.
func (c *Claims) DriverIDInt64() int64 {
	if c.DriverID == nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(*c.DriverID), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func ParseBearerToken(authHeader string) string {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func VerifyAccessToken(tokenString string, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token required")
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, errors.New("token expired")
	}
	return claims, nil
}
