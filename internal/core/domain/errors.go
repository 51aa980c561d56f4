package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrForbidden          = errors.New("access forbidden")
	ErrTransport          = errors.New("backend unreachable")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrEmailTaken         = errors.New("email already in use")
)

// User-facing messages surfaced through SessionState.LastError.
const (
	MsgInvalidCredentials = "incorrect email or password"
	MsgLoginFailed        = "could not sign in, please try again"
	MsgBackendUnreachable = "the server could not be reached, please try again"
	MsgPasswordFailed     = "could not update the password"
	MsgProfileFailed      = "could not load or update the profile"
	MsgForbidden          = "you do not have permission to perform this action"
	MsgSessionExpired     = "your session has expired, please sign in again"
)

// ValidationError carries field-level messages returned by the backend
// (HTTP 400). Message holds a non-field error when present.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message == "" {
			return "validation failed"
		}
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return strings.Join(parts, "; ")
}

// Field returns the first message recorded for name, or "".
func (e *ValidationError) Field(name string) string {
	if msgs := e.Fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// StatusError is any non-2xx response not covered by a sentinel.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
}
