package chat

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/streamchat/internal/protocol"
	"github.com/Tyrowin/streamchat/internal/room"
)

// Outbox is the write side of a connection. Send must not block; a false
// return means the connection cannot keep up and the session ends.
type Outbox interface {
	Send(payload []byte) bool
	Close()
}

// SessionConfig tunes a session.
type SessionConfig struct {
	MailboxSize   int
	BridgeTimeout time.Duration
}

// DefaultSessionConfig returns the defaults used by the server.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MailboxSize:   256,
		BridgeTimeout: 5 * time.Second,
	}
}

// inboundFrame is a text frame read from the socket.
type inboundFrame struct {
	data []byte
}

// Session is the actor owning one connection's chat state. Only Run's
// goroutine reads or writes the fields below the mailbox.
type Session struct {
	id       uint64
	addr     string
	outbox   Outbox
	registry *room.Registry
	deps     Deps
	cfg      SessionConfig

	mailbox  chan any
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	alive    atomic.Bool

	roomID    int32
	userID    int32
	userName  string
	isOwner   bool
	isBlocked bool
}

// NewSession creates a session for connection id. Run must be called to
// start processing.
func NewSession(id uint64, addr string, outbox Outbox, registry *room.Registry, deps Deps, cfg SessionConfig) *Session {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultSessionConfig().MailboxSize
	}
	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = DefaultSessionConfig().BridgeTimeout
	}

	s := &Session{
		id:       id,
		addr:     addr,
		outbox:   outbox,
		registry: registry,
		deps:     deps,
		cfg:      cfg,
		mailbox:  make(chan any, cfg.MailboxSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

// ID returns the connection id.
func (s *Session) ID() uint64 {
	return s.id
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop asks the session to end. It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Submit queues an inbound frame, waiting for room in the mailbox. It
// returns false once the session has ended.
func (s *Session) Submit(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.mailbox <- inboundFrame{data: frame}:
		return true
	case <-s.done:
		return false
	}
}

// Deliver implements room.Mailbox. A full mailbox marks a consumer that
// cannot keep up, so the session is stopped.
func (s *Session) Deliver(d room.Delivery) bool {
	if !s.alive.Load() {
		return false
	}
	select {
	case s.mailbox <- d:
		return true
	default:
		log.Printf("Mailbox full for connection %d (%s); closing session", s.id, s.addr)
		s.Stop()
		return false
	}
}

// Alive implements room.Mailbox.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// Run processes the mailbox until ctx is cancelled or Stop is called. On
// exit the session leaves its room and closes the outbox.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			s.drain(ctx)
			return
		case msg := <-s.mailbox:
			s.handle(ctx, msg)
		}
	}
}

// drain handles what was already queued when the stop signal arrived.
func (s *Session) drain(ctx context.Context) {
	for {
		select {
		case msg := <-s.mailbox:
			s.handle(ctx, msg)
		default:
			return
		}
	}
}

func (s *Session) shutdown() {
	s.alive.Store(false)
	if s.roomID != 0 {
		roomID := s.roomID
		s.registry.Leave(roomID, s.id, leaveAnnouncement(roomID))
		log.Printf("Connection %d (%s) left room %d on disconnect", s.id, s.addr, roomID)
		s.resetMembership()
	}
	s.outbox.Close()
	close(s.done)
}

func (s *Session) handle(ctx context.Context, msg any) {
	switch msg := msg.(type) {
	case inboundFrame:
		s.handleFrame(ctx, msg.data)
	case room.Delivery:
		s.handleDelivery(msg)
	case joinResult:
		s.applyJoin(msg)
	case messageResult:
		s.applyMessage(msg)
	case blockResult:
		s.applyBlock(msg)
	default:
		log.Printf("Connection %d received unknown mailbox message %T", s.id, msg)
	}
}

func (s *Session) handleDelivery(d room.Delivery) {
	switch d.Signal {
	case room.SignalBlock:
		s.isBlocked = true
	case room.SignalUnblock:
		// anonymous members stay read-only
		if s.userID != 0 {
			s.isBlocked = false
		}
	}
	s.write(d.Payload)
}

func (s *Session) write(payload []byte) {
	if !s.alive.Load() {
		return
	}
	if !s.outbox.Send(payload) {
		log.Printf("Send buffer full for connection %d (%s); closing session", s.id, s.addr)
		s.Stop()
	}
}

func (s *Session) fail(err *protocol.WSError) {
	s.write(err.Encode())
}

func (s *Session) resetMembership() {
	s.roomID = 0
	s.isOwner = false
	s.isBlocked = false
}

// spawn runs task outside the actor and posts its result back into the
// mailbox. Tasks are never cancelled; a result that arrives after the
// session ended is dropped.
func (s *Session) spawn(task func(ctx context.Context) any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BridgeTimeout)
		defer cancel()

		result := task(ctx)
		select {
		case s.mailbox <- result:
		case <-s.done:
		}
	}()
}

func leaveAnnouncement(roomID int32) func(room.Member, int) []byte {
	return func(member room.Member, count int) []byte {
		return protocol.Encode(protocol.LeaveEvent{Leave: roomID, Member: member.Name, Count: count})
	}
}
