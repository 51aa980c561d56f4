package service

import (
	"errors"

	"github.com/prontuario/proamp/internal/core/domain"
)

// UserMessage maps a backend failure to the message shown to the user.
// fallback is used for errors that carry nothing more specific.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return domain.MsgInvalidCredentials
	case errors.Is(err, domain.ErrTransport):
		return domain.MsgBackendUnreachable
	case errors.Is(err, domain.ErrForbidden):
		return domain.MsgForbidden
	}
	return fallback
}

// loginMessage only distinguishes bad credentials from everything else.
func loginMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidCredentials) {
		return domain.MsgInvalidCredentials
	}
	return domain.MsgLoginFailed
}
