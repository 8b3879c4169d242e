package domain

import "net/http"

// Kind partitions domain failures the way clients need to react to them:
// validation errors are caller-correctable, conflicts mean a race was lost
// and a refresh (not a resubmit) is the right response.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindSystem     Kind = "system"
)

type Error struct {
	Kind       Kind
	Code       string
	Message    string
	StatusCode int
	Details    map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

func Validation(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, StatusCode: http.StatusBadRequest, Details: details}
}

func Conflict(code, message string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, StatusCode: http.StatusConflict, Details: details}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message, StatusCode: http.StatusNotFound}
}

func System(code, message string) *Error {
	return &Error{Kind: KindSystem, Code: code, Message: message, StatusCode: http.StatusInternalServerError}
}
