package reconcile

import (
	"errors"
	"testing"
)

func TestDecodeDebtReferenceExtractsID(test *testing.T) {
	test.Parallel()
	debtID, err := DecodeDebtReference("DEBT_abc123_1699999999_42")
	if err != nil {
		test.Fatalf("decode: %v", err)
	}
	if debtID != "abc123" {
		test.Fatalf("expected debt id abc123, got %q", debtID)
	}
}

func TestDecodeDebtReferenceRoundTrip(test *testing.T) {
	test.Parallel()
	encoded := EncodeDebtReference("debt-77", 1700000000, 9)
	debtID, err := DecodeDebtReference(encoded)
	if err != nil {
		test.Fatalf("decode %q: %v", encoded, err)
	}
	if debtID != "debt-77" {
		test.Fatalf("expected debt-77, got %q", debtID)
	}
}

func TestDecodeDebtReferenceRejectsMalformed(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"DEBT_", "DEBT__123", "DEBT_noclose", "FINES_1699999999_7", ""} {
		if _, err := DecodeDebtReference(raw); !errors.Is(err, ErrInvalidDebtReference) {
			test.Fatalf("expected ErrInvalidDebtReference for %q, got %v", raw, err)
		}
	}
}

func TestIsDebtReferenceClassifiesPrefixes(test *testing.T) {
	test.Parallel()
	if !IsDebtReference("DEBT_abc123_1699999999_42") {
		test.Fatalf("expected DEBT_ id classified as debt")
	}
	if IsDebtReference("FINES_1699999999_7") {
		test.Fatalf("FINES_ id must not classify as debt")
	}
	if IsDebtReference(EncodeFineReference(1700000000, 7)) {
		test.Fatalf("encoded fine reference must not classify as debt")
	}
}
