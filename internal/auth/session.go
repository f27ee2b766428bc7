package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// verificationTokenExpiry bounds how long a verified phone may claim tokens
// before re-verifying.
const verificationTokenExpiry = 10 * time.Minute

// VerificationClaims are the claims in a verified-session token
type VerificationClaims struct {
	Phone string `json:"phone"`
	jwt.RegisteredClaims
}

// SessionService issues and checks short-lived verified-session tokens.
// A token proves the bearer completed code verification for its phone number
// and is required to redeem a QR token.
type SessionService struct {
	secret []byte
}

// NewSessionService creates a new session service
func NewSessionService(secret string) *SessionService {
	return &SessionService{
		secret: []byte(secret),
	}
}

// IssueVerificationToken creates a verified-session token for the phone
func (s *SessionService) IssueVerificationToken(phone string) (string, error) {
	now := time.Now()
	claims := &VerificationClaims{
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(verificationTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign verification token: %w", err)
	}

	return tokenString, nil
}

// VerifyToken verifies and parses a verified-session token
func (s *SessionService) VerifyToken(tokenString string) (*VerificationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &VerificationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*VerificationClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Phone == "" {
		return nil, fmt.Errorf("token carries no phone")
	}

	return claims, nil
}
