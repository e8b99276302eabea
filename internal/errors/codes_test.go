package errors

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeBookNotFound, 404},
		{ErrCodeBorrowNotFound, 404},
		{ErrCodePurchaseNotFound, 404},
		{ErrCodeUserNotFound, 404},
		{ErrCodeNoCopiesAvailable, 409},
		{ErrCodeBorrowLimitExceeded, 409},
		{ErrCodeBookBuyLimitExceeded, 409},
		{ErrCodeTotalBuyLimitExceeded, 409},
		{ErrCodeCancellationWindowExpired, 400},
		{ErrCodeUserEmailRequired, 400},
		{ErrCodeIdempotencyKeyRequired, 400},
		{ErrCodeInvalidEmail, 400},
		{ErrCodeForbidden, 403},
		{ErrCodeSerializationFailure, 500},
		{ErrCodeInternalError, 500},
		{ErrorCode("SOMETHING_UNKNOWN"), 500},
	}

	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrCodeBookNotFound, "book not found")

	if rec.Code != 404 {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json content type, got %s", ct)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeBookNotFound {
		t.Errorf("expected code BOOK_NOT_FOUND, got %s", resp.Error.Code)
	}
	if resp.Error.Message != "book not found" {
		t.Errorf("unexpected message: %s", resp.Error.Message)
	}
}

func TestWriteDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, New(ErrCodeBorrowLimitExceeded, "active borrow limit reached"))
	if rec.Code != 409 {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	WriteDomainError(rec, json.Unmarshal([]byte("{"), &struct{}{}))
	if rec.Code != 500 {
		t.Fatalf("expected 500 for non-domain error, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeInternalError {
		t.Errorf("expected INTERNAL_ERROR, got %s", resp.Error.Code)
	}
}
