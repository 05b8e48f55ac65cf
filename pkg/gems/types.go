package gems

import (
	"context"
	"fmt"
	"strings"
)

// CitizenID identifies the owner of a gem account.
type CitizenID struct {
	value string
}

// NewCitizenID validates and normalizes a citizen id.
func NewCitizenID(raw string) (CitizenID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CitizenID{}, fmt.Errorf("%w: empty value", ErrInvalidCitizenID)
	}
	return CitizenID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CitizenID) String() string {
	return id.value
}

// GemAccount pairs the gem count with the derived restriction flag.
// Invariant: Amount <= 0 implies IsRestricted, on every write path.
type GemAccount struct {
	CitizenID          CitizenID
	Amount             int64
	IsRestricted       bool
	LastUpdatedUnixUTC int64
}

// Store is the persistence contract used by Service. Amount and flag are
// written together in a single upsert so they are never observably out of sync.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetGemAccountForUpdate(ctx context.Context, citizenID CitizenID) (GemAccount, bool, error)
	UpsertGemAccount(ctx context.Context, account GemAccount) (GemAccount, error)
}
