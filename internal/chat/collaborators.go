// Package chat implements the per-connection session actor: it decodes
// command frames, applies guards, talks to the room registry and hands
// storage-backed work to bridge goroutines whose results come back through
// the session's own mailbox.
package chat

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by collaborators when the requested entity does
// not exist.
var ErrNotFound = errors.New("not found")

// Errors an AuthResolver reports for a token it refuses.
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrUnacceptableTokenID  = errors.New("unacceptable token id")
	ErrUnacceptableTokenNum = errors.New("unacceptable token number")
	ErrNoSession            = errors.New("no active session")
)

// StreamInfo is what the chat core needs to know about a stream.
type StreamInfo struct {
	ID      int32
	OwnerID int32
	IsLive  bool
}

// UserProfile is the public part of a user record.
type UserProfile struct {
	ID       int32
	Nickname string
}

// ChatMessage is a stored chat message.
type ChatMessage struct {
	ID          int32
	StreamID    int32
	UserID      int32
	UserName    string
	Msg         string
	DateCreated time.Time
	DateChanged *time.Time
	DateRemoved *time.Time
}

// NewChatMessage describes a message to create.
type NewChatMessage struct {
	StreamID int32
	UserID   int32
	UserName string
	Msg      string
}

// ModifyChatMessage replaces the text of the author's own message.
type ModifyChatMessage struct {
	ID       int32
	StreamID int32
	UserID   int32
	Msg      string
}

// MessageRef addresses an existing message for cut or delete. AsOwner lets
// the room owner act on messages written by others.
type MessageRef struct {
	ID       int32
	StreamID int32
	UserID   int32
	AsOwner  bool
}

// AuthResolver decodes an access token into a user id.
type AuthResolver interface {
	DecodeAndValidate(ctx context.Context, accessToken string) (int32, error)
}

// StreamLookup resolves the stream behind a room id.
type StreamLookup interface {
	GetStream(ctx context.Context, streamID int32) (StreamInfo, error)
}

// ChatMessageStore persists chat messages.
type ChatMessageStore interface {
	CreateMessage(ctx context.Context, msg NewChatMessage) (ChatMessage, error)
	ModifyMessage(ctx context.Context, msg ModifyChatMessage) (ChatMessage, error)
	CutMessage(ctx context.Context, ref MessageRef) (ChatMessage, error)
	DeleteMessage(ctx context.Context, ref MessageRef) (ChatMessage, error)
}

// UserLookup resolves users.
type UserLookup interface {
	FindByNickname(ctx context.Context, nickname string) (int32, error)
	FindByID(ctx context.Context, userID int32) (UserProfile, error)
}

// BlockStore keeps the per-owner list of users blocked from posting.
type BlockStore interface {
	IsBlocked(ctx context.Context, ownerID, userID int32) (bool, error)
	SetBlocked(ctx context.Context, ownerID, userID int32, blocked bool) error
}

// Deps bundles the collaborators a session calls from its bridge tasks.
type Deps struct {
	Auth     AuthResolver
	Streams  StreamLookup
	Messages ChatMessageStore
	Users    UserLookup
	Blocks   BlockStore
}
