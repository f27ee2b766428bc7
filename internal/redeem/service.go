package redeem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qrclaim/server/internal/model"
	"github.com/qrclaim/server/internal/repo"
)

const (
	storageTimeout  = 3 * time.Second
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrInvalidInput is returned when a request field is missing or malformed.
var ErrInvalidInput = errors.New("invalid input")

// ClaimPage is one page of a phone's claim history.
type ClaimPage struct {
	Records  []model.Claim
	Total    int
	Page     int
	PageSize int
}

// Service is the redemption ledger: it owns the redeemable tokens and their
// claim records, enforcing at-most-one claim per token. Every token is
// claimed by the first phone to reach it; later claimants, including the
// winner retrying, are rejected with the winning claim's details.
type Service struct {
	tokens repo.TokenRepo
}

// NewService creates a redemption service over the token repository.
func NewService(tokens repo.TokenRepo) *Service {
	return &Service{tokens: tokens}
}

// Claim redeems the token for phone. Exactly one claim ever succeeds per
// serial number; the storage layer's uniqueness constraint settles races.
func (s *Service) Claim(ctx context.Context, serialNumber, phone string) (model.Claim, error) {
	if serialNumber == "" {
		return model.Claim{}, fmt.Errorf("%w: serial number is required", ErrInvalidInput)
	}
	if !model.ValidPhone(phone) {
		return model.Claim{}, fmt.Errorf("%w: phone must be 10 digits", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	return s.tokens.Claim(ctx, serialNumber, phone)
}

// ListClaims returns one page of the phone's claims, most recent first.
// Page defaults to 1 and pageSize to 20, capped at 100.
func (s *Service) ListClaims(ctx context.Context, phone string, page, pageSize int) (ClaimPage, error) {
	if !model.ValidPhone(phone) {
		return ClaimPage{}, fmt.Errorf("%w: phone must be 10 digits", ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	records, total, err := s.tokens.ListClaimsByPhone(ctx, phone, pageSize, (page-1)*pageSize)
	if err != nil {
		return ClaimPage{}, err
	}

	return ClaimPage{
		Records:  records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Provision registers a new redeemable token. Duplicate serial numbers are
// rejected with repo.ErrTokenExists.
func (s *Service) Provision(ctx context.Context, serialNumber string) error {
	if serialNumber == "" {
		return fmt.Errorf("%w: serial number is required", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	return s.tokens.Provision(ctx, serialNumber)
}

// TotalClaims reports the total number of recorded claims.
func (s *Service) TotalClaims(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return s.tokens.CountClaims(ctx)
}
