package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qrclaim/server/internal/model"
)

// memoryTokenRepo is an in-memory TokenRepo with the same single-claim
// semantics as the Postgres implementation. It backs handler and service
// tests and local development without a database.
type memoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.Token
	claims []memoryClaim
}

type memoryClaim struct {
	claim model.Claim
	seq   int
}

// NewMemoryTokenRepo creates an empty in-memory token repository.
func NewMemoryTokenRepo() TokenRepo {
	return &memoryTokenRepo{tokens: make(map[string]*model.Token)}
}

func (r *memoryTokenRepo) Provision(ctx context.Context, serialNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[serialNumber]; ok {
		return ErrTokenExists
	}
	r.tokens[serialNumber] = &model.Token{
		SerialNumber: serialNumber,
		CreatedAt:    time.Now(),
	}
	return nil
}

func (r *memoryTokenRepo) Claim(ctx context.Context, serialNumber, phone string) (model.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[serialNumber]
	if !ok {
		return model.Claim{}, ErrTokenNotFound
	}
	if token.Claimed {
		conflict := &AlreadyClaimedError{}
		if token.ClaimedByPhone != nil {
			conflict.ClaimedBy = *token.ClaimedByPhone
		}
		if token.ClaimedAt != nil {
			conflict.ClaimedAt = *token.ClaimedAt
		}
		return model.Claim{}, conflict
	}

	now := time.Now()
	token.Claimed = true
	token.ClaimedByPhone = &phone
	token.ClaimedAt = &now
	token.ClaimCount++

	claim := model.Claim{
		ID:           uuid.New(),
		Phone:        phone,
		SerialNumber: serialNumber,
		ScannedAt:    now,
	}
	r.claims = append(r.claims, memoryClaim{claim: claim, seq: len(r.claims)})
	return claim, nil
}

func (r *memoryTokenRepo) GetToken(ctx context.Context, serialNumber string) (model.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[serialNumber]
	if !ok {
		return model.Token{}, ErrTokenNotFound
	}
	return *token, nil
}

func (r *memoryTokenRepo) ListClaimsByPhone(ctx context.Context, phone string, limit, offset int) ([]model.Claim, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]memoryClaim, 0)
	for _, c := range r.claims {
		if c.claim.Phone == phone {
			matched = append(matched, c)
		}
	}
	// Most recent first; insertion order breaks timestamp ties.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].claim.ScannedAt.Equal(matched[j].claim.ScannedAt) {
			return matched[i].claim.ScannedAt.After(matched[j].claim.ScannedAt)
		}
		return matched[i].seq > matched[j].seq
	})

	total := len(matched)
	if offset >= total {
		return []model.Claim{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]model.Claim, 0, end-offset)
	for _, c := range matched[offset:end] {
		page = append(page, c.claim)
	}
	return page, total, nil
}

func (r *memoryTokenRepo) CountClaims(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims), nil
}
