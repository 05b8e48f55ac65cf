package gormstore

import (
	"errors"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/nagorik/civicledger/pkg/ledger"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore    = "store"
	errorSubjectAudit      = "audit"
	errorSubjectBalance    = "balance"
	errorSubjectDebt       = "debt"
	errorSubjectFine       = "fine"
	errorSubjectGemAccount = "gem_account"
	errorSubjectPayment    = "payment"
	errorSubjectTxn        = "transaction"

	errorCodeCreate    = "create"
	errorCodeDelete    = "delete"
	errorCodeDuplicate = "duplicate"
	errorCodeGet       = "get"
	errorCodeInsert    = "insert"
	errorCodeInvalid   = "invalid"
	errorCodeList      = "list"
	errorCodeSum       = "sum"
	errorCodeUpdate    = "update"
	errorCodeUpsert    = "upsert"
)

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
