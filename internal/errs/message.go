package errs

import (
	"errors"
	"strings"
)

// User-facing messages.
const (
	MsgNetwork      = "Network error. Please check your connection and try again."
	MsgUnauthorized = "Your session has expired. Please sign in again."
	MsgStorage      = "Could not access saved credentials. Please sign in again."
	MsgGeneric      = "Something went wrong. Please try again."
	MsgNoMatch      = "No record matches the selected contract and item."
	MsgNotFound     = "No records found for this selection."
)

// UserMessage turns any error into the message shown to the user.
// Server-provided messages are surfaced verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	switch {
	case errors.As(err, &re) && re.Message != "":
		return re.Message
	case errors.Is(err, ErrValidation):
		return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNoToken):
		return MsgUnauthorized
	case errors.Is(err, ErrStorage):
		return MsgStorage
	case errors.Is(err, ErrTransport):
		return MsgNetwork
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please wait and try again."
	case errors.Is(err, ErrNoMatch):
		return MsgNoMatch
	case errors.Is(err, ErrNotFound):
		return MsgNotFound
	default:
		return MsgGeneric
	}
}
