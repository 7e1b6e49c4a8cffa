package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/streamchat/internal/room"
)

type fakeAuth map[string]int32

var tokenErrors = map[string]error{
	"expired":   ErrExpiredToken,
	"garbage":   ErrInvalidToken,
	"nosession": ErrNoSession,
	"stale":     ErrUnacceptableTokenNum,
}

func (f fakeAuth) DecodeAndValidate(_ context.Context, token string) (int32, error) {
	if err, ok := tokenErrors[token]; ok {
		return 0, err
	}
	if id, ok := f[token]; ok {
		return id, nil
	}
	return 0, ErrInvalidToken
}

type fakeStreams map[int32]StreamInfo

func (f fakeStreams) GetStream(_ context.Context, id int32) (StreamInfo, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return StreamInfo{}, ErrNotFound
}

type fakeUsers struct {
	byID map[int32]string
}

func (f fakeUsers) FindByNickname(_ context.Context, nickname string) (int32, error) {
	for id, name := range f.byID {
		if name == nickname {
			return id, nil
		}
	}
	return 0, ErrNotFound
}

func (f fakeUsers) FindByID(_ context.Context, id int32) (UserProfile, error) {
	if name, ok := f.byID[id]; ok {
		return UserProfile{ID: id, Nickname: name}, nil
	}
	return UserProfile{}, ErrNotFound
}

type fakeBlocks struct {
	mu      sync.Mutex
	blocked map[[2]int32]bool
}

func (f *fakeBlocks) IsBlocked(_ context.Context, ownerID, userID int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[[2]int32{ownerID, userID}], nil
}

func (f *fakeBlocks) SetBlocked(_ context.Context, ownerID, userID int32, blocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[[2]int32{ownerID, userID}] = blocked
	return nil
}

type fakeMessages struct {
	mu     sync.Mutex
	nextID int32
	byID   map[int32]*ChatMessage
}

func (f *fakeMessages) CreateMessage(_ context.Context, m NewChatMessage) (ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg := &ChatMessage{
		ID:          f.nextID,
		StreamID:    m.StreamID,
		UserID:      m.UserID,
		UserName:    m.UserName,
		Msg:         m.Msg,
		DateCreated: time.Now(),
	}
	f.byID[msg.ID] = msg
	return *msg, nil
}

func (f *fakeMessages) ModifyMessage(_ context.Context, m ModifyChatMessage) (ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[m.ID]
	if !ok || msg.StreamID != m.StreamID || msg.UserID != m.UserID || msg.DateRemoved != nil {
		return ChatMessage{}, ErrNotFound
	}
	now := time.Now()
	msg.Msg = m.Msg
	msg.DateChanged = &now
	return *msg, nil
}

func (f *fakeMessages) find(ref MessageRef) (*ChatMessage, bool) {
	msg, ok := f.byID[ref.ID]
	if !ok || msg.StreamID != ref.StreamID || (!ref.AsOwner && msg.UserID != ref.UserID) {
		return nil, false
	}
	return msg, true
}

func (f *fakeMessages) CutMessage(_ context.Context, ref MessageRef) (ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.find(ref)
	if !ok {
		return ChatMessage{}, ErrNotFound
	}
	now := time.Now()
	msg.Msg = ""
	msg.DateChanged = &now
	msg.DateRemoved = &now
	return *msg, nil
}

func (f *fakeMessages) DeleteMessage(_ context.Context, ref MessageRef) (ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.find(ref)
	if !ok {
		return ChatMessage{}, ErrNotFound
	}
	delete(f.byID, ref.ID)
	return *msg, nil
}

type recordingOutbox struct {
	frames    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newRecordingOutbox() *recordingOutbox {
	return &recordingOutbox{frames: make(chan []byte, 64), closed: make(chan struct{})}
}

func (o *recordingOutbox) Send(payload []byte) bool {
	select {
	case o.frames <- payload:
		return true
	default:
		return false
	}
}

func (o *recordingOutbox) Close() {
	o.closeOnce.Do(func() { close(o.closed) })
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	registry *room.Registry
	deps     Deps
	messages *fakeMessages
	blocks   *fakeBlocks
	nextID   uint64
}

// Users: alice (1) owns live stream 5, bob (2), eve (3).
// Stream 6 is not live; stream 7 is live and owned by bob.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := room.NewRegistry(16)
	go registry.Run(ctx)

	messages := &fakeMessages{byID: make(map[int32]*ChatMessage)}
	blocks := &fakeBlocks{blocked: make(map[[2]int32]bool)}
	return &harness{
		t:        t,
		ctx:      ctx,
		registry: registry,
		messages: messages,
		blocks:   blocks,
		deps: Deps{
			Auth: fakeAuth{"tok-alice": 1, "tok-bob": 2, "tok-eve": 3, "tok-ghost": 99},
			Streams: fakeStreams{
				5: {ID: 5, OwnerID: 1, IsLive: true},
				6: {ID: 6, OwnerID: 2, IsLive: false},
				7: {ID: 7, OwnerID: 2, IsLive: true},
			},
			Messages: messages,
			Users:    fakeUsers{byID: map[int32]string{1: "alice", 2: "bob", 3: "eve"}},
			Blocks:   blocks,
		},
	}
}

type testClient struct {
	t       *testing.T
	session *Session
	outbox  *recordingOutbox
}

func (h *harness) connect() *testClient {
	h.t.Helper()
	h.nextID++
	outbox := newRecordingOutbox()
	session := NewSession(h.nextID, "test", outbox, h.registry, h.deps, SessionConfig{MailboxSize: 32, BridgeTimeout: time.Second})
	go session.Run(h.ctx)
	h.t.Cleanup(session.Stop)
	return &testClient{t: h.t, session: session, outbox: outbox}
}

func (c *testClient) send(frame string) {
	c.t.Helper()
	if !c.session.Submit([]byte(frame)) {
		c.t.Fatalf("session refused frame %s", frame)
	}
}

func (c *testClient) next() map[string]any {
	c.t.Helper()
	select {
	case payload := <-c.outbox.frames:
		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			c.t.Fatalf("invalid frame %s: %v", payload, err)
		}
		return decoded
	case <-time.After(2 * time.Second):
		c.t.Fatal("timed out waiting for a frame")
		return nil
	}
}

// expect reads the next frame and checks that it carries key.
func (c *testClient) expect(key string) map[string]any {
	c.t.Helper()
	frame := c.next()
	if _, ok := frame[key]; !ok {
		c.t.Fatalf("expected %q frame, got %v", key, frame)
	}
	return frame
}

// expectErr reads the next frame and checks its error status.
func (c *testClient) expectErr(status int) map[string]any {
	c.t.Helper()
	frame := c.expect("err")
	if frame["err"] != float64(status) {
		c.t.Fatalf("expected err %d, got %v", status, frame)
	}
	return frame
}

func (c *testClient) expectNone(wait time.Duration) {
	c.t.Helper()
	select {
	case payload := <-c.outbox.frames:
		c.t.Fatalf("expected no frame, got %s", payload)
	case <-time.After(wait):
	}
}

func (c *testClient) join(roomID int, token string) map[string]any {
	c.t.Helper()
	if token == "" {
		c.send(`{"join":` + itoa(roomID) + `}`)
	} else {
		c.send(`{"join":` + itoa(roomID) + `,"access":"` + token + `"}`)
	}
	return c.expect("join")
}

func itoa(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}
