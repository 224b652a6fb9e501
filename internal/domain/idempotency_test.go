package domain

import "testing"

func TestIdempotencyStatus_Valid(t *testing.T) {
	for _, status := range []IdempotencyStatus{
		IdempotencyStatusProcessing,
		IdempotencyStatusDone,
		IdempotencyStatusFailed,
	} {
		if !status.Valid() {
			t.Errorf("%q must be valid", status)
		}
	}

	for _, status := range []IdempotencyStatus{"", "broken", "DONE"} {
		if status.Valid() {
			t.Errorf("%q must be invalid", status)
		}
	}
}
