package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nagorik/civicledger/pkg/gems"
)

// GemStore implements gems.Store using GORM.
type GemStore struct {
	db *gorm.DB
}

// NewGemStore returns a GemStore backed by gorm.DB.
func NewGemStore(db *gorm.DB) *GemStore {
	return &GemStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *GemStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore gems.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &GemStore{db: transaction})
	})
}

func (store *GemStore) GetGemAccountForUpdate(ctx context.Context, citizenID gems.CitizenID) (gems.GemAccount, bool, error) {
	var row GemAccount
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("citizen_id = ?", citizenID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gems.GemAccount{}, false, nil
		}
		return gems.GemAccount{}, false, wrapStoreError(errorSubjectGemAccount, errorCodeGet, err)
	}
	account, err := mapGemAccount(row)
	if err != nil {
		return gems.GemAccount{}, false, wrapStoreError(errorSubjectGemAccount, errorCodeInvalid, err)
	}
	return account, true, nil
}

// UpsertGemAccount writes amount and restriction flag in one statement so
// they are never observably out of sync.
func (store *GemStore) UpsertGemAccount(ctx context.Context, account gems.GemAccount) (gems.GemAccount, error) {
	row := GemAccount{
		CitizenID:    account.CitizenID.String(),
		Amount:       account.Amount,
		IsRestricted: account.IsRestricted,
		LastUpdated:  time.Unix(account.LastUpdatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "citizen_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "is_restricted", "last_updated"}),
		}).
		Create(&row).Error
	if err != nil {
		return gems.GemAccount{}, wrapStoreError(errorSubjectGemAccount, errorCodeUpsert, err)
	}
	return mapGemAccount(row)
}

func mapGemAccount(row GemAccount) (gems.GemAccount, error) {
	citizenID, err := gems.NewCitizenID(row.CitizenID)
	if err != nil {
		return gems.GemAccount{}, err
	}
	return gems.GemAccount{
		CitizenID:          citizenID,
		Amount:             row.Amount,
		IsRestricted:       row.IsRestricted,
		LastUpdatedUnixUTC: row.LastUpdated.Unix(),
	}, nil
}
