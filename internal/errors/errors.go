package errors

import "errors"

// DomainError is a typed error carrying an ErrorCode for HTTP mapping.
// Engine operations return *DomainError for every condition that maps to a
// 4xx status; everything else is treated as internal.
type DomainError struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New creates a DomainError with the given code and message.
func New(code ErrorCode, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// AsDomain extracts a *DomainError from an error chain, if present.
func AsDomain(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
