package reconcile

import (
	"fmt"
	"regexp"
	"strings"
)

// Debt settlement rides an implicit protocol between session creation and
// callback handling: the debt id is embedded in the gateway transaction id
// so the callback can recover it without a side lookup. The encode/decode
// pair below is that protocol made explicit.

const (
	debtReferencePrefix = "DEBT_"
	fineReferencePrefix = "FINES_"
)

var debtReferencePattern = regexp.MustCompile(`^DEBT_([^_]+)_`)

// EncodeDebtReference builds a gateway transaction id carrying the debt id:
// DEBT_{debtId}_{unixTime}_{nonce}.
func EncodeDebtReference(debtID string, atUnixUTC int64, nonce uint32) string {
	return fmt.Sprintf("%s%s_%d_%d", debtReferencePrefix, debtID, atUnixUTC, nonce)
}

// EncodeFineReference builds a gateway transaction id for a fine session.
// Fine callbacks are resolved by exact PaymentRecord lookup, so no id is
// embedded: FINES_{unixTime}_{nonce}.
func EncodeFineReference(atUnixUTC int64, nonce uint32) string {
	return fmt.Sprintf("%s%d_%d", fineReferencePrefix, atUnixUTC, nonce)
}

// IsDebtReference reports whether a transaction id claims the debt format.
func IsDebtReference(transactionID string) bool {
	return strings.HasPrefix(transactionID, debtReferencePrefix)
}

// DecodeDebtReference extracts the debt id from a DEBT_-prefixed transaction
// id, failing when the prefix is present but no id can be extracted.
func DecodeDebtReference(transactionID string) (string, error) {
	matches := debtReferencePattern.FindStringSubmatch(transactionID)
	if len(matches) != 2 || matches[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDebtReference, transactionID)
	}
	return matches[1], nil
}
