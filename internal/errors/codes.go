package errors

// ErrorCode represents a machine-readable error identifier for client error handling.
type ErrorCode string

// Not-found errors
const (
	ErrCodeBookNotFound     ErrorCode = "BOOK_NOT_FOUND"
	ErrCodeBorrowNotFound   ErrorCode = "BORROW_NOT_FOUND"
	ErrCodePurchaseNotFound ErrorCode = "PURCHASE_NOT_FOUND"
	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeJobNotFound      ErrorCode = "JOB_NOT_FOUND"
)

// Conflict errors (business rule violations under contention)
const (
	ErrCodeNoCopiesAvailable     ErrorCode = "NO_COPIES_AVAILABLE"
	ErrCodeBorrowLimitExceeded   ErrorCode = "BORROW_LIMIT_EXCEEDED"
	ErrCodeBookBuyLimitExceeded  ErrorCode = "BOOK_BUY_LIMIT_EXCEEDED"
	ErrCodeTotalBuyLimitExceeded ErrorCode = "TOTAL_BUY_LIMIT_EXCEEDED"
	ErrCodeJobNotRetryable       ErrorCode = "JOB_NOT_RETRYABLE"
)

// Bad request errors (validation and expired windows)
const (
	ErrCodeCancellationWindowExpired ErrorCode = "CANCELLATION_WINDOW_EXPIRED"
	ErrCodeUserEmailRequired         ErrorCode = "USER_EMAIL_REQUIRED"
	ErrCodeIdempotencyKeyRequired    ErrorCode = "IDEMPOTENCY_KEY_REQUIRED"
	ErrCodeInvalidEmail              ErrorCode = "INVALID_EMAIL"
	ErrCodeValidationError           ErrorCode = "VALIDATION_ERROR"
)

// Authorization errors
const (
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
)

// Internal/system errors
const (
	ErrCodeSerializationFailure ErrorCode = "SERIALIZATION_FAILURE"
	ErrCodeInternalError        ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - client validation errors and expired windows
	case ErrCodeCancellationWindowExpired,
		ErrCodeUserEmailRequired,
		ErrCodeIdempotencyKeyRequired,
		ErrCodeInvalidEmail,
		ErrCodeValidationError:
		return 400

	// 403 Forbidden - admin guard
	case ErrCodeForbidden:
		return 403

	// 404 Not Found
	case ErrCodeBookNotFound,
		ErrCodeBorrowNotFound,
		ErrCodePurchaseNotFound,
		ErrCodeUserNotFound,
		ErrCodeJobNotFound:
		return 404

	// 409 Conflict - limits and inventory contention
	case ErrCodeNoCopiesAvailable,
		ErrCodeBorrowLimitExceeded,
		ErrCodeBookBuyLimitExceeded,
		ErrCodeTotalBuyLimitExceeded,
		ErrCodeJobNotRetryable:
		return 409

	// 500 Internal Server Error - serialization failures surface here; clients retry
	default:
		return 500
	}
}
