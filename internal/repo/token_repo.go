package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/qrclaim/server/internal/model"
)

// TokenRepo defines the interface for token and claim repository operations
type TokenRepo interface {
	Provision(ctx context.Context, serialNumber string) error
	Claim(ctx context.Context, serialNumber, phone string) (model.Claim, error)
	GetToken(ctx context.Context, serialNumber string) (model.Token, error)
	ListClaimsByPhone(ctx context.Context, phone string, limit, offset int) ([]model.Claim, int, error)
	CountClaims(ctx context.Context) (int, error)
}

type tokenRepo struct {
	db *sql.DB
}

// NewTokenRepo creates a new TokenRepo instance
func NewTokenRepo(db *sql.DB) TokenRepo {
	return &tokenRepo{db: db}
}

// Provision inserts a new unclaimed token. A duplicate serial number is an
// error, not a no-op, so provisioning scripts notice bad input.
func (r *tokenRepo) Provision(ctx context.Context, serialNumber string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (serial_number)
		VALUES ($1)
	`, serialNumber)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenExists
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Claim marks the token claimed by phone and records the claim row in one
// transaction. The conditional UPDATE only succeeds on an unclaimed token;
// the unique constraint on claims(serial_number) is the final arbiter when
// two transactions race, with a lost race translated to AlreadyClaimedError.
func (r *tokenRepo) Claim(ctx context.Context, serialNumber, phone string) (model.Claim, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Claim{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE tokens
		SET claimed = TRUE,
		    claimed_by_phone = $2,
		    claimed_at = now(),
		    claim_count = claim_count + 1
		WHERE serial_number = $1 AND NOT claimed
	`, serialNumber, phone)
	if err != nil {
		return model.Claim{}, fmt.Errorf("claim token: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return model.Claim{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Token missing, or someone claimed it first.
		return model.Claim{}, r.claimConflict(ctx, serialNumber)
	}

	var claim model.Claim
	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO claims (phone, serial_number)
		VALUES ($1, $2)
		RETURNING id, scanned_at
	`, phone, serialNumber).Scan(&idStr, &claim.ScannedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Claim{}, r.claimConflict(ctx, serialNumber)
		}
		return model.Claim{}, fmt.Errorf("insert claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return model.Claim{}, r.claimConflict(ctx, serialNumber)
		}
		return model.Claim{}, fmt.Errorf("commit: %w", err)
	}

	claim.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Claim{}, fmt.Errorf("parse claim ID: %w", err)
	}
	claim.Phone = phone
	claim.SerialNumber = serialNumber
	return claim, nil
}

// claimConflict builds the error for a claim that found the token taken or
// absent. It reads outside any transaction since a unique violation aborts
// the transaction it happened in.
func (r *tokenRepo) claimConflict(ctx context.Context, serialNumber string) error {
	token, err := r.GetToken(ctx, serialNumber)
	if err != nil {
		return err
	}
	conflict := &AlreadyClaimedError{}
	if token.ClaimedByPhone != nil {
		conflict.ClaimedBy = *token.ClaimedByPhone
	}
	if token.ClaimedAt != nil {
		conflict.ClaimedAt = *token.ClaimedAt
	}
	return conflict
}

// GetToken retrieves a token by serial number
func (r *tokenRepo) GetToken(ctx context.Context, serialNumber string) (model.Token, error) {
	query := `
		SELECT serial_number, claimed, claimed_by_phone, claimed_at, claim_count, created_at
		FROM tokens
		WHERE serial_number = $1
	`
	var token model.Token
	err := r.db.QueryRowContext(ctx, query, serialNumber).Scan(
		&token.SerialNumber,
		&token.Claimed,
		&token.ClaimedByPhone,
		&token.ClaimedAt,
		&token.ClaimCount,
		&token.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Token{}, ErrTokenNotFound
		}
		return model.Token{}, fmt.Errorf("query token: %w", err)
	}
	return token, nil
}

// ListClaimsByPhone returns a page of claims for the phone, most recent
// first, along with the total claim count for that phone.
func (r *tokenRepo) ListClaimsByPhone(ctx context.Context, phone string, limit, offset int) ([]model.Claim, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM claims WHERE phone = $1
	`, phone).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, phone, serial_number, scanned_at
		FROM claims
		WHERE phone = $1
		ORDER BY scanned_at DESC, id
		LIMIT $2 OFFSET $3
	`, phone, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	claims := make([]model.Claim, 0, limit)
	for rows.Next() {
		var claim model.Claim
		var idStr string
		if err := rows.Scan(&idStr, &claim.Phone, &claim.SerialNumber, &claim.ScannedAt); err != nil {
			return nil, 0, fmt.Errorf("scan claim: %w", err)
		}
		claim.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, 0, fmt.Errorf("parse claim ID: %w", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate claims: %w", err)
	}

	return claims, total, nil
}

// CountClaims returns the total number of claims across all phones.
func (r *tokenRepo) CountClaims(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM claims`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return count, nil
}
