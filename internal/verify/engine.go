package verify

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/qrclaim/server/internal/model"
	"github.com/qrclaim/server/internal/sms"
)

const (
	codeExpiry    = 5 * time.Minute
	maxAttempts   = 5
	issueCooldown = 30 * time.Second
)

var (
	// ErrInvalidPhone is returned when the phone number is not 10 digits.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrCooldown is returned when a live code was issued too recently.
	ErrCooldown = errors.New("code requested too recently")
	// ErrNoCode is returned when no live code exists for the phone.
	ErrNoCode = errors.New("no code issued for phone")
	// ErrExpired is returned when the live code has passed its validity window.
	ErrExpired = errors.New("code expired")
	// ErrTooManyAttempts is returned once the attempt ceiling is exceeded.
	ErrTooManyAttempts = errors.New("too many attempts")
)

// InvalidCodeError is returned on a wrong code while attempts remain.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.AttemptsRemaining)
}

// codeEntry is the live one-time code state for a single phone number
type codeEntry struct {
	code         string
	createdAt    time.Time
	attemptCount int
}

// Engine issues and checks one-time codes keyed by phone number.
// All state lives in a mutex-guarded map; issue, verify and sweep are
// atomic with respect to each other per the whole store.
type Engine struct {
	mu      sync.Mutex
	codes   map[string]*codeEntry
	sender  sms.Sender
	now     func() time.Time
	genCode func() (string, error)
}

// NewEngine creates a verification engine that dispatches codes via sender.
func NewEngine(sender sms.Sender) *Engine {
	return &Engine{
		codes:   make(map[string]*codeEntry),
		sender:  sender,
		now:     time.Now,
		genCode: generateCode,
	}
}

// IssueCode generates a fresh 6-digit code for phone, replacing any prior
// live code, and hands it to the SMS dispatcher. The code is returned so the
// caller can echo it in dev mode; production callers must not expose it.
// A live unexpired code younger than the cooldown window rejects the request.
func (e *Engine) IssueCode(ctx context.Context, phone string) (string, error) {
	if !model.ValidPhone(phone) {
		return "", ErrInvalidPhone
	}

	code, err := e.genCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	e.mu.Lock()
	now := e.now()
	// A live code younger than the cooldown blocks re-issue; anything older
	// (including expired leftovers) is simply replaced.
	if entry, ok := e.codes[phone]; ok {
		if now.Sub(entry.createdAt) < issueCooldown {
			e.mu.Unlock()
			return "", ErrCooldown
		}
	}
	e.codes[phone] = &codeEntry{code: code, createdAt: now}
	e.mu.Unlock()

	// Delivery is fire-and-forget: the dispatcher logs failures itself and
	// the flow continues as if the SMS went out.
	e.sender.Send(ctx, phone, code)

	return code, nil
}

// VerifyCode checks submitted against the live code for phone.
// The record is consumed on success, on expiry, and once the attempt
// ceiling is exceeded; a plain mismatch keeps it alive for further attempts.
func (e *Engine) VerifyCode(ctx context.Context, phone, submitted string) error {
	if !model.ValidPhone(phone) {
		return ErrInvalidPhone
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.codes[phone]
	if !ok {
		return ErrNoCode
	}

	if e.now().Sub(entry.createdAt) > codeExpiry {
		delete(e.codes, phone)
		return ErrExpired
	}

	entry.attemptCount++
	if entry.attemptCount > maxAttempts {
		delete(e.codes, phone)
		return ErrTooManyAttempts
	}

	// Exact string comparison; leading-zero codes must match byte for byte.
	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(submitted)) != 1 {
		return &InvalidCodeError{AttemptsRemaining: maxAttempts - entry.attemptCount}
	}

	delete(e.codes, phone)
	return nil
}

// Sweep evicts entries past expiry so abandoned flows do not grow the map
// unboundedly. Returns the number of entries removed.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	removed := 0
	for phone, entry := range e.codes {
		if now.Sub(entry.createdAt) > codeExpiry {
			delete(e.codes, phone)
			removed++
		}
	}
	return removed
}

// Len returns the number of live code entries.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.codes)
}

// generateCode draws a 6-digit code uniformly from [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
