package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// WSError is the structured failure delivered to a client as an "err" frame.
// Status is the numeric "err" field; Code is a stable identifier.
type WSError struct {
	Status  int
	Code    string
	Message string
}

func (e *WSError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Encode renders the error as an outbound "err" frame.
func (e *WSError) Encode() []byte {
	return Encode(ErrEvent{Err: e.Status, Code: e.Code, Message: e.Message})
}

func newWSError(status int, code, message string) *WSError {
	return &WSError{Status: status, Code: code, Message: message}
}

// Error vocabulary shared by the session actor and the bridge.
var (
	ErrInvalidFrame         = newWSError(http.StatusBadRequest, "InvalidFrame", "frame must be a JSON object")
	ErrCommandNotAccepted   = newWSError(http.StatusBadRequest, "CommandNotAccepted", "command is reserved for the server")
	ErrInvalidToken         = newWSError(http.StatusUnauthorized, "InvalidToken", "invalid or malformed access token")
	ErrExpiredToken         = newWSError(http.StatusUnauthorized, "ExpiredToken", "access token has expired")
	ErrUnacceptableTokenNum = newWSError(http.StatusUnauthorized, "UnacceptableTokenNum", "unacceptable token number")
	ErrUnacceptableTokenID  = newWSError(http.StatusUnauthorized, "UnacceptableTokenId", "unacceptable token id")
	ErrBlocked              = newWSError(http.StatusForbidden, "Blocked", "blocked from sending")
	ErrOwnerRightsMissing   = newWSError(http.StatusForbidden, "OwnerRightsMissing", "owner rights missing")
	ErrStreamNotFound       = newWSError(http.StatusNotFound, "StreamNotFound", "stream not found")
	ErrChatMessageNotFound  = newWSError(http.StatusNotFound, "ChatMessageNotFound", "chat message not found")
	ErrUserNotFound         = newWSError(http.StatusNotFound, "UserNotFound", "user not found")
	ErrNotJoined            = newWSError(http.StatusNotAcceptable, "NotJoined", "no join command yet")
	ErrNoActiveSession      = newWSError(http.StatusNotAcceptable, "NoActiveSession", "no active session")
	ErrAlreadyJoined        = newWSError(http.StatusConflict, "AlreadyJoined", "already joined a room")
	ErrStreamNotActive      = newWSError(http.StatusConflict, "StreamNotActive", "stream is not live")
	ErrInternal             = newWSError(http.StatusInternalServerError, "InternalError", "internal error")
)

// MissingField reports an absent or empty required field.
func MissingField(field string) *WSError {
	return newWSError(http.StatusBadRequest, "MissingField", fmt.Sprintf("'%s' parameter is required", field))
}

// InvalidField reports a field that is present but out of range.
func InvalidField(field string) *WSError {
	return newWSError(http.StatusBadRequest, "InvalidField", fmt.Sprintf("'%s' parameter must be positive", field))
}

// UnknownCommand reports a frame whose first key names no command.
func UnknownCommand(raw string) *WSError {
	return newWSError(http.StatusBadRequest, "UnknownCommand", raw)
}

// FromCodecError converts a Parse failure into its wire error.
func FromCodecError(err error) *WSError {
	var unknown *UnknownCommandError
	switch {
	case errors.As(err, &unknown):
		return UnknownCommand(unknown.Raw)
	case errors.Is(err, ErrMalformedFrame):
		return ErrInvalidFrame
	default:
		return ErrInternal
	}
}
