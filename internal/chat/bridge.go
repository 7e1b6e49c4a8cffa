package chat

import (
	"context"
	"errors"
	"log"

	"github.com/Tyrowin/streamchat/internal/protocol"
)

// Bridge tasks run on their own goroutine, call one collaborator chain and
// return a result value that the session applies on its actor goroutine.
// They never read or write session state.

type joinRequest struct {
	roomID         int32
	hasAccess      bool
	access         string
	accessIsString bool
}

type joinResult struct {
	roomID        int32
	ownerID       int32
	authenticated bool
	userID        int32
	userName      string
	isBlocked     bool
	err           *protocol.WSError
}

type messageResult struct {
	msg     ChatMessage
	removed bool
	err     *protocol.WSError
}

type blockResult struct {
	name    string
	blocked bool
	err     *protocol.WSError
}

// resolveJoin checks, in order: stream exists, stream is live, token is
// valid, session and user exist.
func (d Deps) resolveJoin(ctx context.Context, req joinRequest) joinResult {
	res := joinResult{roomID: req.roomID}

	stream, err := d.Streams.GetStream(ctx, req.roomID)
	if err != nil {
		res.err = storageFailure("get stream", err, protocol.ErrStreamNotFound)
		return res
	}
	if !stream.IsLive {
		res.err = protocol.ErrStreamNotActive
		return res
	}
	res.ownerID = stream.OwnerID

	if !req.hasAccess {
		return res
	}
	if !req.accessIsString {
		res.err = protocol.ErrInvalidToken
		return res
	}

	userID, err := d.Auth.DecodeAndValidate(ctx, req.access)
	if err != nil {
		res.err = authFailure(err)
		return res
	}

	profile, err := d.Users.FindByID(ctx, userID)
	if err != nil {
		res.err = storageFailure("find user", err, protocol.ErrUnacceptableTokenID)
		return res
	}

	blocked, err := d.Blocks.IsBlocked(ctx, stream.OwnerID, userID)
	if err != nil {
		res.err = storageFailure("check block list", err, protocol.ErrInternal)
		return res
	}

	res.authenticated = true
	res.userID = profile.ID
	res.userName = profile.Nickname
	res.isBlocked = blocked
	return res
}

func (d Deps) createMessage(ctx context.Context, draft NewChatMessage) messageResult {
	msg, err := d.Messages.CreateMessage(ctx, draft)
	if err != nil {
		return messageResult{err: storageFailure("create message", err, protocol.ErrStreamNotFound)}
	}
	return messageResult{msg: msg}
}

func (d Deps) modifyMessage(ctx context.Context, change ModifyChatMessage) messageResult {
	msg, err := d.Messages.ModifyMessage(ctx, change)
	if err != nil {
		return messageResult{err: storageFailure("modify message", err, protocol.ErrChatMessageNotFound)}
	}
	return messageResult{msg: msg}
}

func (d Deps) cutMessage(ctx context.Context, ref MessageRef) messageResult {
	msg, err := d.Messages.CutMessage(ctx, ref)
	if err != nil {
		return messageResult{err: storageFailure("cut message", err, protocol.ErrChatMessageNotFound)}
	}
	return messageResult{msg: msg}
}

func (d Deps) deleteMessage(ctx context.Context, ref MessageRef) messageResult {
	msg, err := d.Messages.DeleteMessage(ctx, ref)
	if err != nil {
		return messageResult{err: storageFailure("delete message", err, protocol.ErrChatMessageNotFound)}
	}
	return messageResult{msg: msg, removed: true}
}

func (d Deps) setBlocked(ctx context.Context, ownerID int32, name string, blocked bool) blockResult {
	res := blockResult{name: name, blocked: blocked}

	userID, err := d.Users.FindByNickname(ctx, name)
	if err != nil {
		res.err = storageFailure("find user by nickname", err, protocol.ErrUserNotFound)
		return res
	}
	if err := d.Blocks.SetBlocked(ctx, ownerID, userID, blocked); err != nil {
		res.err = storageFailure("update block list", err, protocol.ErrInternal)
	}
	return res
}

// storageFailure maps ErrNotFound to notFound and anything else to an
// internal error, logging the latter.
func storageFailure(op string, err error, notFound *protocol.WSError) *protocol.WSError {
	if errors.Is(err, ErrNotFound) {
		return notFound
	}
	log.Printf("Bridge %s failed: %v", op, err)
	return protocol.ErrInternal
}

func authFailure(err error) *protocol.WSError {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return protocol.ErrExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return protocol.ErrInvalidToken
	case errors.Is(err, ErrUnacceptableTokenID):
		return protocol.ErrUnacceptableTokenID
	case errors.Is(err, ErrUnacceptableTokenNum):
		return protocol.ErrUnacceptableTokenNum
	case errors.Is(err, ErrNoSession):
		return protocol.ErrNoActiveSession
	default:
		log.Printf("Bridge token validation failed: %v", err)
		return protocol.ErrInternal
	}
}
