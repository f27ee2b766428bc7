package model

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// phonePattern matches the 10-digit phone numbers the service accepts.
var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// ValidPhone reports whether phone is a well-formed 10-digit number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Token represents a pre-provisioned, uniquely-serialized QR token
type Token struct {
	SerialNumber   string
	Claimed        bool
	ClaimedByPhone *string
	ClaimedAt      *time.Time
	ClaimCount     int
	CreatedAt      time.Time
}

// Claim records a successful redemption of a token by a phone number
type Claim struct {
	ID           uuid.UUID
	Phone        string
	SerialNumber string
	ScannedAt    time.Time
}
