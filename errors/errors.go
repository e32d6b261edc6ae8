package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrConflict         = fmt.Errorf("connection already bound to another identity")
	ErrUnbound          = fmt.Errorf("connection is not bound to an identity")
	ErrTransport        = fmt.Errorf("transport failure")
	ErrBackpressure     = fmt.Errorf("%w: outbound queue is full", ErrTransport)
	ErrConnectionClosed = fmt.Errorf("%w: connection is closed", ErrTransport)
	ErrStore            = fmt.Errorf("message store failure")
	ErrMessageNotFound  = fmt.Errorf("message not found")

	ErrUnknownEvent     = fmt.Errorf("unknown event")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrIdentityMismatch = fmt.Errorf("sender does not match the bound identity")
	ErrUnauthorized     = fmt.Errorf("unauthorized")

	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password must contain upper and lower case letters, a digit and a special character")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

func Is(err, target error) bool { return stderrors.Is(err, target) }

// Code is the stable identifier sent to realtime clients inside an error event.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrConflict):
		return "conflict"
	case Is(err, ErrUnbound):
		return "unbound"
	case Is(err, ErrBackpressure):
		return "backpressure"
	case Is(err, ErrTransport):
		return "transport"
	case Is(err, ErrUnknownEvent):
		return "unknown_event"
	case Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case Is(err, ErrUnauthorized):
		return "unauthorized"
	case Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}

// MapToHTTPStatus translates domain errors for the REST layer.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrInvalidPayload), Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case Is(err, ErrInvalidCredentials), Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case Is(err, ErrUserNotFound), Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case Is(err, ErrUserAlreadyExists), Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
