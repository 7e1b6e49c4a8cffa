// Package room implements the room registry: a single actor goroutine that
// owns every room, its member map and the owner index. Sessions reach it only
// through the methods of Registry, which post requests onto its mailbox.
package room

import (
	"context"
	"log"
	"math/rand"
)

// Signal tells a member mailbox that a delivery changes its own state.
type Signal int

// Delivery signals.
const (
	SignalNone Signal = iota
	SignalBlock
	SignalUnblock
)

// Delivery is a payload handed to a member mailbox.
type Delivery struct {
	Payload []byte
	Signal  Signal
}

// Mailbox is the address of a connected session. Deliver must not block.
type Mailbox interface {
	Deliver(d Delivery) bool
	Alive() bool
}

// Member is the handle the registry keeps for a connected session. It does
// not own the session.
type Member struct {
	Mailbox Mailbox
	Name    string
}

type room struct {
	ownerID int32
	members map[uint64]Member
}

// Registry serializes all room mutations through one goroutine.
type Registry struct {
	requests chan any
	done     chan struct{}

	rooms      map[int32]*room
	ownerIndex map[int32]map[int32]struct{}
}

// NewRegistry creates a registry whose mailbox holds up to buffer pending
// requests. Run must be started before any other method is called.
func NewRegistry(buffer int) *Registry {
	if buffer < 0 {
		buffer = 0
	}
	return &Registry{
		requests:   make(chan any, buffer),
		done:       make(chan struct{}),
		rooms:      make(map[int32]*room),
		ownerIndex: make(map[int32]map[int32]struct{}),
	}
}

// Done is closed once Run has returned.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Run processes requests until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	defer close(r.done)
	log.Println("Room registry started")

	for {
		select {
		case <-ctx.Done():
			log.Printf("Room registry stopped with %d active rooms", len(r.rooms))
			return
		case req := <-r.requests:
			r.handle(req)
		}
	}
}

func (r *Registry) handle(req any) {
	switch req := req.(type) {
	case getOrCreateRequest:
		req.reply <- r.getOrCreateRoom(req.roomID, req.ownerID).ownerID
	case addMemberRequest:
		id, count := r.addMember(req.roomID, req.connID, req.member)
		req.reply <- membershipReply{connID: id, count: count}
	case removeMemberRequest:
		member, count, ok := r.removeMember(req.roomID, req.connID)
		req.reply <- membershipReply{member: member, count: count, ok: ok}
	case joinRequest:
		r.getOrCreateRoom(req.roomID, req.ownerID)
		id, count := r.addMember(req.roomID, req.connID, req.member)
		if req.announce != nil {
			r.broadcast(req.roomID, req.announce(count), map[uint64]struct{}{id: {}})
		}
		req.reply <- membershipReply{connID: id, count: count, ok: true}
	case leaveRequest:
		member, count, ok := r.removeMember(req.roomID, req.connID)
		if ok && count > 0 && req.announce != nil {
			r.broadcast(req.roomID, req.announce(member, count), nil)
		}
		req.reply <- membershipReply{member: member, count: count, ok: ok}
	case broadcastRequest:
		req.reply <- r.broadcast(req.roomID, req.payload, req.exclude)
	case countRequest:
		req.reply <- r.countMembers(req.roomID)
	case findByNameRequest:
		member, id, ok := r.findMemberByName(req.name)
		req.reply <- membershipReply{member: member, connID: id, ok: ok}
	case ownerRoomsRequest:
		rooms := make([]int32, 0, len(r.ownerIndex[req.ownerID]))
		for roomID := range r.ownerIndex[req.ownerID] {
			rooms = append(rooms, roomID)
		}
		req.reply <- rooms
	case statsRequest:
		stats := Stats{Rooms: len(r.rooms)}
		for _, rm := range r.rooms {
			stats.Members += len(rm.members)
		}
		req.reply <- stats
	default:
		log.Printf("Room registry received unknown request %T", req)
	}
}

func (r *Registry) getOrCreateRoom(roomID, ownerID int32) *room {
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm := &room{ownerID: ownerID, members: make(map[uint64]Member)}
	r.rooms[roomID] = rm

	owned, ok := r.ownerIndex[ownerID]
	if !ok {
		owned = make(map[int32]struct{})
		r.ownerIndex[ownerID] = owned
	}
	owned[roomID] = struct{}{}
	return rm
}

func (r *Registry) addMember(roomID int32, connID uint64, member Member) (uint64, int) {
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = r.getOrCreateRoom(roomID, 0)
	}
	if connID == 0 {
		connID = newMemberID(rm.members)
	}
	rm.members[connID] = member
	return connID, len(rm.members)
}

func (r *Registry) removeMember(roomID int32, connID uint64) (Member, int, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return Member{}, 0, false
	}
	member, ok := rm.members[connID]
	if ok {
		delete(rm.members, connID)
	}
	count := len(rm.members)
	if count == 0 {
		r.removeRoom(roomID, rm)
	}
	return member, count, ok
}

func (r *Registry) removeRoom(roomID int32, rm *room) {
	delete(r.rooms, roomID)
	if owned, ok := r.ownerIndex[rm.ownerID]; ok {
		delete(owned, roomID)
		if len(owned) == 0 {
			delete(r.ownerIndex, rm.ownerID)
		}
	}
}

// broadcast delivers payload to every member not in exclude. Members whose
// mailbox is dead or full are removed from the room in the same pass.
func (r *Registry) broadcast(roomID int32, payload []byte, exclude map[uint64]struct{}) int {
	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}

	delivered := 0
	for id, member := range rm.members {
		if _, skip := exclude[id]; skip {
			continue
		}
		if member.Mailbox.Alive() && member.Mailbox.Deliver(Delivery{Payload: payload}) {
			delivered++
			continue
		}
		delete(rm.members, id)
		log.Printf("Member %q pruned from room %d after failed delivery", member.Name, roomID)
	}

	if len(rm.members) == 0 {
		r.removeRoom(roomID, rm)
	}
	return delivered
}

func (r *Registry) countMembers(roomID int32) int {
	if rm, ok := r.rooms[roomID]; ok {
		return len(rm.members)
	}
	return 0
}

func (r *Registry) findMemberByName(name string) (Member, uint64, bool) {
	for _, rm := range r.rooms {
		for id, member := range rm.members {
			if member.Name == name {
				return member, id, true
			}
		}
	}
	return Member{}, 0, false
}

func newMemberID(members map[uint64]Member) uint64 {
	for {
		id := rand.Uint64()
		if id == 0 {
			continue
		}
		if _, taken := members[id]; !taken {
			return id
		}
	}
}
