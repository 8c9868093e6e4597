package agent

import (
	internaljwt "lead-routing-backend/internal/jwt"
	"lead-routing-backend/internal/model"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

type CreateAgentParams struct {
	Name               string
	Email              string
	Password           string
	PipelineType       string
	MaxConcurrentChats int
}

type SignInParams struct {
	Email    string
	Password string
}

type SignInResult struct {
	Agent  model.AgentItem
	Tokens internaljwt.TokenResponse
}
