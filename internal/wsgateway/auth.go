package wsgateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AnonymousUser is returned for every token when no secret is configured
const AnonymousUser = "anonymous"

// ErrAuthDisabled is returned when issuing tokens without a secret
var ErrAuthDisabled = errors.New("jwt secret not configured")

// AuthManager handles JWT authentication for the gateway and the refresh API
type AuthManager struct {
	jwtSecret []byte
}

// NewAuthManager creates a new auth manager
func NewAuthManager(jwtSecret string) *AuthManager {
	return &AuthManager{
		jwtSecret: []byte(jwtSecret),
	}
}

// Enabled reports whether tokens are verified
func (a *AuthManager) Enabled() bool {
	return len(a.jwtSecret) > 0
}

// ValidateToken validates a JWT token and returns the subject
func (a *AuthManager) ValidateToken(tokenString string) (string, error) {
	if !a.Enabled() {
		return AnonymousUser, nil
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		if sub, ok := claims["sub"].(string); ok {
			return sub, nil
		}
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// IssueToken signs a token for subject that expires after ttl
func (a *AuthManager) IssueToken(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(a.jwtSecret)
}

// ExtractTokenFromHeader extracts JWT token from Authorization header
func (a *AuthManager) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is empty")
	}

	// "Bearer <token>" or a bare token
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 {
		if strings.ToLower(parts[0]) != "bearer" {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return parts[1], nil
	} else if len(parts) == 1 {
		return parts[0], nil
	}

	return "", fmt.Errorf("invalid authorization header format")
}
