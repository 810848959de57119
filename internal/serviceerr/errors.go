package serviceerr

import "net/http"

// Code is an OAuth2-style error code, as defined in RFC 6749 where
// applicable, extended with the codes this gateway needs.
type Code string

const (
	// RFC6749 authorization errors
	CodeInvalidRequest         Code = "invalid_request"
	CodeUnauthorizedClient     Code = "unauthorized_client"
	CodeAccessDenied           Code = "access_denied"
	CodeServerError            Code = "server_error"
	CodeTemporarilyUnavailable Code = "temporarily_unavailable"

	// RFC6749 token errors
	CodeInvalidClient Code = "invalid_client"
	CodeInvalidGrant  Code = "invalid_grant"

	// Custom codes
	CodeUnknown      Code = "unknown"
	CodeConflict     Code = "conflict"
	CodeNotFound     Code = "not_found"
	CodeStateExpired Code = "state_expired"
	CodeNotPermitted Code = "not_permitted"
)

type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// HTTPStatus maps the error code onto an HTTP status code.
// Unrecognised codes map to 500.
func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeInvalidClient, CodeInvalidGrant:
		return http.StatusBadRequest
	case CodeUnauthorizedClient:
		return http.StatusUnauthorized
	case CodeAccessDenied, CodeNotPermitted:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeStateExpired:
		return http.StatusGone
	case CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrUnknown        = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrNotFound       = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConflict       = &Error{Err: CodeConflict, Description: "already exists"}
	ErrInvalidRequest = &Error{Err: CodeInvalidRequest}
	ErrUnauthorized   = &Error{Err: CodeUnauthorizedClient, Description: "unauthorized"}
	ErrStateExpired   = &Error{Err: CodeStateExpired, Description: "state expired or already used"}
	ErrNotPermitted   = &Error{Err: CodeNotPermitted, Description: "no membership and no local account"}
)
