package room

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeMailbox struct {
	mu         sync.Mutex
	deliveries []Delivery
	dead       bool
	full       bool
}

func (m *fakeMailbox) Deliver(d Delivery) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.deliveries = append(m.deliveries, d)
	return true
}

func (m *fakeMailbox) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.dead
}

func (m *fakeMailbox) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		out = append(out, string(d.Payload))
	}
	return out
}

func startRegistry(t *testing.T) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewRegistry(16)
	go reg.Run(ctx)
	t.Cleanup(func() {
		cancel()
		select {
		case <-reg.Done():
		case <-time.After(time.Second):
			t.Error("registry did not stop")
		}
	})
	return reg
}

func TestGetOrCreateRoomIsIdempotent(t *testing.T) {
	reg := startRegistry(t)

	if owner := reg.GetOrCreateRoom(5, 42); owner != 42 {
		t.Fatalf("owner = %d, want 42", owner)
	}
	if owner := reg.GetOrCreateRoom(5, 7); owner != 42 {
		t.Errorf("second call replaced owner: got %d", owner)
	}
	if rooms := reg.OwnerRooms(42); len(rooms) != 1 || rooms[0] != 5 {
		t.Errorf("owner index = %v", rooms)
	}
}

func TestAddMemberAssignsIDs(t *testing.T) {
	reg := startRegistry(t)
	reg.GetOrCreateRoom(1, 10)

	id, count := reg.AddMember(1, 0, Member{Mailbox: &fakeMailbox{}, Name: "a"})
	if id == 0 {
		t.Error("expected a random non-zero id")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	id2, count := reg.AddMember(1, 77, Member{Mailbox: &fakeMailbox{}, Name: "b"})
	if id2 != 77 {
		t.Errorf("supplied id not kept: %d", id2)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if got := reg.CountMembers(1); got != 2 {
		t.Errorf("CountMembers = %d, want 2", got)
	}
}

func TestRemoveLastMemberDeletesRoom(t *testing.T) {
	reg := startRegistry(t)

	reg.Join(3, 9, 1, Member{Mailbox: &fakeMailbox{}, Name: "a"}, nil)
	member, count, ok := reg.RemoveMember(3, 1)
	if !ok || member.Name != "a" || count != 0 {
		t.Fatalf("RemoveMember = %+v, %d, %v", member, count, ok)
	}
	if got := reg.CountMembers(3); got != 0 {
		t.Errorf("CountMembers after delete = %d", got)
	}
	if rooms := reg.OwnerRooms(9); len(rooms) != 0 {
		t.Errorf("owner index not pruned: %v", rooms)
	}
	if stats := reg.Stats(); stats.Rooms != 0 {
		t.Errorf("Stats.Rooms = %d", stats.Rooms)
	}
}

func TestRemoveUnknownMember(t *testing.T) {
	reg := startRegistry(t)
	if _, _, ok := reg.RemoveMember(99, 1); ok {
		t.Error("removing from a missing room should report false")
	}
}

func TestJoinAnnouncesToOthersOnly(t *testing.T) {
	reg := startRegistry(t)
	first := &fakeMailbox{}
	second := &fakeMailbox{}

	reg.Join(5, 1, 100, Member{Mailbox: first, Name: "a"}, func(count int) []byte { return []byte("a joined") })
	_, count := reg.Join(5, 1, 200, Member{Mailbox: second, Name: "b"}, func(count int) []byte {
		if count != 2 {
			t.Errorf("announce count = %d", count)
		}
		return []byte("b joined")
	})
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	if got := first.received(); len(got) != 1 || got[0] != "b joined" {
		t.Errorf("first received %v", got)
	}
	if got := second.received(); len(got) != 0 {
		t.Errorf("joiner received its own announcement: %v", got)
	}
}

func TestLeaveAnnouncesToRemaining(t *testing.T) {
	reg := startRegistry(t)
	stay := &fakeMailbox{}
	gone := &fakeMailbox{}

	reg.Join(5, 1, 1, Member{Mailbox: stay, Name: "stay"}, nil)
	reg.Join(5, 1, 2, Member{Mailbox: gone, Name: "gone"}, nil)

	member, count, ok := reg.Leave(5, 2, func(m Member, count int) []byte {
		return []byte(m.Name + " left")
	})
	if !ok || member.Name != "gone" || count != 1 {
		t.Fatalf("Leave = %+v, %d, %v", member, count, ok)
	}
	if got := stay.received(); len(got) != 1 || got[0] != "gone left" {
		t.Errorf("stay received %v", got)
	}
	if got := gone.received(); len(got) != 0 {
		t.Errorf("leaver received %v", got)
	}

	called := false
	reg.Leave(5, 1, func(Member, int) []byte {
		called = true
		return nil
	})
	if called {
		t.Error("announce must not run when the room becomes empty")
	}
	if got := reg.CountMembers(5); got != 0 {
		t.Errorf("room still has %d members", got)
	}
}

func TestBroadcastExcludesAndPrunes(t *testing.T) {
	reg := startRegistry(t)
	sender := &fakeMailbox{}
	alive := &fakeMailbox{}
	dead := &fakeMailbox{dead: true}
	full := &fakeMailbox{full: true}

	reg.Join(8, 1, 1, Member{Mailbox: sender, Name: "sender"}, nil)
	reg.Join(8, 1, 2, Member{Mailbox: alive, Name: "alive"}, nil)
	reg.Join(8, 1, 3, Member{Mailbox: dead, Name: "dead"}, nil)
	reg.Join(8, 1, 4, Member{Mailbox: full, Name: "full"}, nil)

	delivered := reg.Broadcast(8, []byte("hello"), 1)
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if got := sender.received(); len(got) != 0 {
		t.Errorf("excluded sender received %v", got)
	}
	if got := alive.received(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("alive received %v", got)
	}
	if got := reg.CountMembers(8); got != 2 {
		t.Errorf("CountMembers after pruning = %d, want 2", got)
	}
}

func TestBroadcastPruningLastMemberRemovesRoom(t *testing.T) {
	reg := startRegistry(t)
	reg.Join(4, 6, 1, Member{Mailbox: &fakeMailbox{dead: true}, Name: "ghost"}, nil)

	reg.Broadcast(4, []byte("anyone?"))
	if stats := reg.Stats(); stats.Rooms != 0 {
		t.Errorf("room survived with only dead members: %+v", stats)
	}
	if rooms := reg.OwnerRooms(6); len(rooms) != 0 {
		t.Errorf("owner index not pruned: %v", rooms)
	}
}

func TestFindMemberByNameAcrossRooms(t *testing.T) {
	reg := startRegistry(t)
	target := &fakeMailbox{}
	reg.Join(1, 1, 1, Member{Mailbox: &fakeMailbox{}, Name: "ann"}, nil)
	reg.Join(2, 2, 2, Member{Mailbox: target, Name: "eve"}, nil)

	member, ok := reg.FindMemberByName("eve")
	if !ok || member.Mailbox != target {
		t.Fatalf("FindMemberByName = %+v, %v", member, ok)
	}
	if _, ok := reg.FindMemberByName("nobody"); ok {
		t.Error("found a member that does not exist")
	}
}

func TestCountMatchesMembershipUnderConcurrency(t *testing.T) {
	reg := startRegistry(t)

	const workers = 20
	var wg sync.WaitGroup
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			reg.Join(11, 1, id, Member{Mailbox: &fakeMailbox{}, Name: "m"}, nil)
			if id%2 == 0 {
				reg.Leave(11, id, nil)
			}
		}(uint64(i))
	}
	wg.Wait()

	if got := reg.CountMembers(11); got != workers/2 {
		t.Errorf("CountMembers = %d, want %d", got, workers/2)
	}
}

func TestCallsReturnAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewRegistry(0)
	go reg.Run(ctx)
	cancel()
	<-reg.Done()

	done := make(chan struct{})
	go func() {
		reg.CountMembers(1)
		reg.Broadcast(1, []byte("x"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("calls blocked on a stopped registry")
	}
}
