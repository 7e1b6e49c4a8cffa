package chat

import (
	"context"
	"log"

	"github.com/Tyrowin/streamchat/internal/protocol"
	"github.com/Tyrowin/streamchat/internal/room"
)

func (s *Session) handleFrame(_ context.Context, data []byte) {
	event, err := protocol.Parse(data)
	if err != nil {
		log.Printf("Rejected frame from connection %d (%s): %v", s.id, s.addr, err)
		s.fail(protocol.FromCodecError(err))
		return
	}

	if wsErr := s.dispatch(event); wsErr != nil {
		s.fail(wsErr)
	}
}

func (s *Session) dispatch(event *protocol.Event) *protocol.WSError {
	switch event.Command {
	case protocol.CommandEcho:
		return s.handleEcho(event)
	case protocol.CommandName:
		return s.handleName(event)
	case protocol.CommandJoin:
		return s.handleJoin(event)
	case protocol.CommandLeave:
		return s.handleLeave(event)
	case protocol.CommandCount:
		return s.handleCount(event)
	case protocol.CommandMsg:
		return s.handleMsg(event)
	case protocol.CommandMsgPut:
		return s.handleMsgPut(event)
	case protocol.CommandMsgCut:
		return s.handleMsgCut(event)
	case protocol.CommandMsgRmv:
		return s.handleMsgRmv(event)
	case protocol.CommandBlock:
		return s.handleBlock(event, true)
	case protocol.CommandUnblock:
		return s.handleBlock(event, false)
	case protocol.CommandPrmBool:
		return s.handlePrmBool(event)
	case protocol.CommandPrmInt:
		return s.handlePrmInt(event)
	case protocol.CommandPrmStr:
		return s.handlePrmStr(event)
	default:
		return protocol.ErrCommandNotAccepted
	}
}

func (s *Session) handleEcho(event *protocol.Event) *protocol.WSError {
	text, ok := event.Value()
	if err := requireNonEmpty(text, ok, "echo"); err != nil {
		return err
	}
	s.write(protocol.Encode(protocol.EchoEvent{Echo: text}))
	return nil
}

// handleName sets the nickname used by anonymous members. Authenticated
// members keep their profile nickname.
func (s *Session) handleName(event *protocol.Event) *protocol.WSError {
	name, ok := event.Value()
	if err := requireNonEmpty(name, ok, "name"); err != nil {
		return err
	}
	if s.userID == 0 {
		s.userName = name
	}
	s.write(protocol.Encode(protocol.NameEvent{Name: s.userName}))
	return nil
}

func (s *Session) handleJoin(event *protocol.Event) *protocol.WSError {
	roomID, ok := event.IntValue()
	if err := requirePositive(roomID, ok, "join"); err != nil {
		return err
	}

	req := joinRequest{roomID: roomID}
	if event.Has("access") {
		req.hasAccess = true
		req.access, req.accessIsString = event.GetString("access")
	}
	s.spawn(func(ctx context.Context) any {
		return s.deps.resolveJoin(ctx, req)
	})
	return nil
}

// applyJoin runs on the actor once the bridge has resolved the stream and
// the caller's identity. Lookup failures take precedence over the
// already-joined check.
func (s *Session) applyJoin(res joinResult) {
	if res.err != nil {
		s.fail(res.err)
		return
	}
	if s.roomID != 0 {
		s.fail(protocol.ErrAlreadyJoined)
		return
	}

	if res.authenticated {
		s.userID = res.userID
		s.userName = res.userName
		s.isOwner = res.userID == res.ownerID
		s.isBlocked = res.isBlocked
	} else {
		// a profile nickname from an earlier membership does not carry over
		if s.userID != 0 {
			s.userName = ""
		}
		s.userID = 0
		s.isOwner = false
		s.isBlocked = true
	}

	name := s.userName
	roomID := res.roomID
	_, count := s.registry.Join(roomID, res.ownerID, s.id, room.Member{Mailbox: s, Name: name}, func(count int) []byte {
		return protocol.Encode(protocol.JoinEvent{Join: roomID, Member: name, Count: count})
	})
	s.roomID = roomID

	log.Printf("Connection %d (%s) joined room %d as %q (owner=%t blocked=%t, %d members)",
		s.id, s.addr, roomID, name, s.isOwner, s.isBlocked, count)
	s.write(protocol.Encode(protocol.JoinEvent{
		Join:      roomID,
		Member:    name,
		Count:     count,
		IsOwner:   protocol.Bool(s.isOwner),
		IsBlocked: protocol.Bool(s.isBlocked),
	}))
}

// handleLeave accepts any leave value as "leave my current room".
func (s *Session) handleLeave(event *protocol.Event) *protocol.WSError {
	_, ok := event.IntValue()
	if err := firstFailure(
		requirePresent(ok, "leave"),
		requireJoined(s.roomID),
	); err != nil {
		return err
	}

	roomID := s.roomID
	_, count, _ := s.registry.Leave(roomID, s.id, leaveAnnouncement(roomID))
	s.resetMembership()

	log.Printf("Connection %d (%s) left room %d (%d members remain)", s.id, s.addr, roomID, count)
	s.write(protocol.Encode(protocol.LeaveEvent{Leave: roomID, Member: s.userName, Count: count}))
	return nil
}

func (s *Session) handleCount(event *protocol.Event) *protocol.WSError {
	_, ok := event.IntValue()
	if err := firstFailure(
		requirePresent(ok, "count"),
		requireJoined(s.roomID),
	); err != nil {
		return err
	}
	s.write(protocol.Encode(protocol.CountEvent{Count: s.registry.CountMembers(s.roomID)}))
	return nil
}

func (s *Session) handleMsg(event *protocol.Event) *protocol.WSError {
	text, ok := event.Value()
	if err := firstFailure(
		requireNonEmpty(text, ok, "msg"),
		requireJoined(s.roomID),
		requireNotBlocked(s.isBlocked),
	); err != nil {
		return err
	}

	draft := NewChatMessage{StreamID: s.roomID, UserID: s.userID, UserName: s.userName, Msg: text}
	s.spawn(func(ctx context.Context) any {
		return s.deps.createMessage(ctx, draft)
	})
	return nil
}

func (s *Session) handleMsgPut(event *protocol.Event) *protocol.WSError {
	text, textOK := event.Value()
	id, idOK := event.GetInt("id")
	if err := firstFailure(
		requireNonEmpty(text, textOK, "msgPut"),
		requirePositive(id, idOK, "id"),
		requireJoined(s.roomID),
		requireNotBlocked(s.isBlocked),
	); err != nil {
		return err
	}

	change := ModifyChatMessage{ID: id, StreamID: s.roomID, UserID: s.userID, Msg: text}
	s.spawn(func(ctx context.Context) any {
		return s.deps.modifyMessage(ctx, change)
	})
	return nil
}

func (s *Session) handleMsgCut(event *protocol.Event) *protocol.WSError {
	_, textOK := event.Value()
	id, idOK := event.GetInt("id")
	if err := firstFailure(
		requirePresent(textOK, "msgCut"),
		requirePositive(id, idOK, "id"),
		requireJoined(s.roomID),
		requireNotBlocked(s.isBlocked),
	); err != nil {
		return err
	}

	ref := MessageRef{ID: id, StreamID: s.roomID, UserID: s.userID, AsOwner: s.isOwner}
	s.spawn(func(ctx context.Context) any {
		return s.deps.cutMessage(ctx, ref)
	})
	return nil
}

func (s *Session) handleMsgRmv(event *protocol.Event) *protocol.WSError {
	id, ok := event.IntValue()
	if err := firstFailure(
		requirePositive(id, ok, "msgRmv"),
		requireJoined(s.roomID),
		requireNotBlocked(s.isBlocked),
	); err != nil {
		return err
	}

	ref := MessageRef{ID: id, StreamID: s.roomID, UserID: s.userID, AsOwner: s.isOwner}
	s.spawn(func(ctx context.Context) any {
		return s.deps.deleteMessage(ctx, ref)
	})
	return nil
}

// applyMessage turns a storage outcome into a room-wide event, or an error
// for the caller alone.
func (s *Session) applyMessage(res messageResult) {
	if res.err != nil {
		s.fail(res.err)
		return
	}

	var payload []byte
	if res.removed {
		payload = protocol.Encode(protocol.MsgRmvEvent{MsgRmv: res.msg.ID})
	} else {
		m := res.msg
		payload = protocol.Encode(protocol.NewMsgEvent(m.ID, m.UserName, m.Msg, m.DateCreated, m.DateChanged, m.DateRemoved))
	}
	s.registry.Broadcast(res.msg.StreamID, payload)
}

func (s *Session) handleBlock(event *protocol.Event, blocked bool) *protocol.WSError {
	field := "unblock"
	if blocked {
		field = "block"
	}
	name, ok := event.Value()
	if err := firstFailure(
		requireNonEmpty(name, ok, field),
		requireJoined(s.roomID),
		requireOwner(s.isOwner),
	); err != nil {
		return err
	}

	ownerID := s.userID
	s.spawn(func(ctx context.Context) any {
		return s.deps.setBlocked(ctx, ownerID, name, blocked)
	})
	return nil
}

// applyBlock notifies the target if it is connected to any room, then
// reports the outcome to the caller.
func (s *Session) applyBlock(res blockResult) {
	if res.err != nil {
		s.fail(res.err)
		return
	}

	signal := room.SignalUnblock
	if res.blocked {
		signal = room.SignalBlock
	}

	member, inChat := s.registry.FindMemberByName(res.name)
	if inChat {
		personal := blockPayload(res.name, res.blocked, true)
		if !member.Mailbox.Deliver(room.Delivery{Payload: personal, Signal: signal}) {
			log.Printf("Could not notify %q of %s decision", res.name, signalName(signal))
		}
	}
	s.write(blockPayload(res.name, res.blocked, inChat))
}

func blockPayload(name string, blocked, inChat bool) []byte {
	if blocked {
		return protocol.Encode(protocol.BlockEvent{Block: name, IsInChat: inChat})
	}
	return protocol.Encode(protocol.UnblockEvent{Unblock: name, IsInChat: inChat})
}

func signalName(signal room.Signal) string {
	if signal == room.SignalBlock {
		return "block"
	}
	return "unblock"
}

func (s *Session) handlePrmBool(event *protocol.Event) *protocol.WSError {
	name, nameOK := event.Value()
	value, valueOK := event.GetBool("valBool")
	if err := s.checkParam(name, nameOK, "prmBool", valueOK, "valBool"); err != nil {
		return err
	}
	s.broadcastParam(protocol.Encode(protocol.PrmBoolEvent{PrmBool: name, ValBool: value}))
	return nil
}

func (s *Session) handlePrmInt(event *protocol.Event) *protocol.WSError {
	name, nameOK := event.Value()
	value, valueOK := event.GetInt("valInt")
	if err := s.checkParam(name, nameOK, "prmInt", valueOK, "valInt"); err != nil {
		return err
	}
	s.broadcastParam(protocol.Encode(protocol.PrmIntEvent{PrmInt: name, ValInt: value}))
	return nil
}

func (s *Session) handlePrmStr(event *protocol.Event) *protocol.WSError {
	name, nameOK := event.Value()
	value, valueOK := event.GetString("valStr")
	if err := s.checkParam(name, nameOK, "prmStr", valueOK, "valStr"); err != nil {
		return err
	}
	s.broadcastParam(protocol.Encode(protocol.PrmStrEvent{PrmStr: name, ValStr: value}))
	return nil
}

func (s *Session) checkParam(name string, nameOK bool, nameField string, valueOK bool, valueField string) *protocol.WSError {
	return firstFailure(
		requireNonEmpty(name, nameOK, nameField),
		requirePresent(valueOK, valueField),
		requireJoined(s.roomID),
		requireNotBlocked(s.isBlocked),
	)
}

// broadcastParam sends payload to the whole room. Copies for other members
// carry isOwner when the sender owns the room; the sender's copy never does.
func (s *Session) broadcastParam(payload []byte) {
	shared := payload
	if s.isOwner {
		shared = protocol.WithOwner(payload)
	}
	s.registry.Broadcast(s.roomID, shared, s.id)
	s.write(payload)
}
