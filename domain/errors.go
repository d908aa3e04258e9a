package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeInvalid           ErrorCode = "INVALID"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeDependency        ErrorCode = "DEPENDENCY"
	ErrCodeInternal          ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrStreamNotFound    = NewError(ErrCodeNotFound, "stream not found")
	ErrPollNotFound      = NewError(ErrCodeNotFound, "poll not found")
	ErrGiftNotFound      = NewError(ErrCodeNotFound, "gift not found")
	ErrWalletNotFound    = NewError(ErrCodeNotFound, "wallet not found")
	ErrUserNotFound      = NewError(ErrCodeNotFound, "user not found")
	ErrUnauthorized      = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload    = NewError(ErrCodeInvalid, "invalid payload")
	ErrStreamEnded       = NewError(ErrCodeConflict, "stream already ended")
	ErrStreamNotLive     = NewError(ErrCodeConflict, "stream is not live")
	ErrCommentsDisabled  = NewError(ErrCodeConflict, "comments are disabled for this stream")
	ErrGiftsDisabled     = NewError(ErrCodeConflict, "gifts are disabled for this stream")
	ErrPollsDisabled     = NewError(ErrCodeConflict, "polls are disabled for this stream")
	ErrPollInactive      = NewError(ErrCodeConflict, "poll is no longer active")
	ErrActivePollExists  = NewError(ErrCodeConflict, "an active poll already exists for this stream")
	ErrDuplicateVote     = NewError(ErrCodeConflict, "user has already voted in this poll")
	ErrInsufficientFunds = NewError(ErrCodeInsufficientFunds, "wallet balance is insufficient")
	ErrVersionConflict   = NewError(ErrCodeConflict, "concurrent modification detected")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf extracts the classification, defaulting to INTERNAL.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternal
}
