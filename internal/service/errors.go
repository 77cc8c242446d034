package service

import (
	"github.com/pkg/errors"
	"github.com/yakoovad/pr-daemon/internal/repository"
)

type ErrorCode string

const (
	ErrorCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	ErrorCodeMissingEntity    ErrorCode = "MISSING_ENTITY"
	ErrorCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrorCodeSinkDelivery     ErrorCode = "SINK_DELIVERY"
	ErrorCodeTeamExists       ErrorCode = "TEAM_EXISTS"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrorCodeUnspecified      ErrorCode = "UNSPECIFIED"
	ErrorCodeInvalidBody      ErrorCode = "INVALID_BODY"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// asError converts err into a service error, keeping one that is already typed.
func asError(err error, message string) *Error {
	if err == nil {
		return nil
	}

	var res *Error
	if errors.As(err, &res) {
		return res
	}
	if errors.Is(err, repository.ErrStoreUnavailable) {
		return NewError(ErrorCodeStoreUnavailable, "store unavailable")
	}
	return NewError(ErrorCodeUnspecified, message)
}
