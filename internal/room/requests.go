package room

// Stats is a snapshot of registry occupancy.
type Stats struct {
	Rooms   int
	Members int
}

type membershipReply struct {
	member Member
	connID uint64
	count  int
	ok     bool
}

type getOrCreateRequest struct {
	roomID  int32
	ownerID int32
	reply   chan int32
}

type addMemberRequest struct {
	roomID int32
	connID uint64
	member Member
	reply  chan membershipReply
}

type removeMemberRequest struct {
	roomID int32
	connID uint64
	reply  chan membershipReply
}

type joinRequest struct {
	roomID   int32
	ownerID  int32
	connID   uint64
	member   Member
	announce func(count int) []byte
	reply    chan membershipReply
}

type leaveRequest struct {
	roomID   int32
	connID   uint64
	announce func(member Member, count int) []byte
	reply    chan membershipReply
}

type broadcastRequest struct {
	roomID  int32
	payload []byte
	exclude map[uint64]struct{}
	reply   chan int
}

type countRequest struct {
	roomID int32
	reply  chan int
}

type findByNameRequest struct {
	name  string
	reply chan membershipReply
}

type ownerRoomsRequest struct {
	ownerID int32
	reply   chan []int32
}

type statsRequest struct {
	reply chan Stats
}

// call posts req and waits for its reply. It returns the zero value when the
// registry has stopped.
func call[T any](r *Registry, req any, reply chan T) T {
	var zero T
	select {
	case r.requests <- req:
	case <-r.done:
		return zero
	}
	select {
	case v := <-reply:
		return v
	case <-r.done:
		return zero
	}
}

// GetOrCreateRoom returns the owner of roomID, creating the room with ownerID
// when it does not exist yet.
func (r *Registry) GetOrCreateRoom(roomID, ownerID int32) int32 {
	reply := make(chan int32, 1)
	return call(r, getOrCreateRequest{roomID: roomID, ownerID: ownerID, reply: reply}, reply)
}

// AddMember inserts member into roomID. A zero connID is replaced by a random
// id that does not collide with the current members. It returns the assigned
// id and the new member count.
func (r *Registry) AddMember(roomID int32, connID uint64, member Member) (uint64, int) {
	reply := make(chan membershipReply, 1)
	res := call(r, addMemberRequest{roomID: roomID, connID: connID, member: member, reply: reply}, reply)
	return res.connID, res.count
}

// RemoveMember removes connID from roomID. The room is deleted when it
// becomes empty.
func (r *Registry) RemoveMember(roomID int32, connID uint64) (Member, int, bool) {
	reply := make(chan membershipReply, 1)
	res := call(r, removeMemberRequest{roomID: roomID, connID: connID, reply: reply}, reply)
	return res.member, res.count, res.ok
}

// Join creates the room if needed, adds member and, when announce is not nil,
// broadcasts announce(count) to everyone else, all in one step.
func (r *Registry) Join(roomID, ownerID int32, connID uint64, member Member, announce func(count int) []byte) (uint64, int) {
	reply := make(chan membershipReply, 1)
	res := call(r, joinRequest{
		roomID:   roomID,
		ownerID:  ownerID,
		connID:   connID,
		member:   member,
		announce: announce,
		reply:    reply,
	}, reply)
	return res.connID, res.count
}

// Leave removes connID from roomID and, when members remain, broadcasts
// announce(member, count) to them in the same step.
func (r *Registry) Leave(roomID int32, connID uint64, announce func(member Member, count int) []byte) (Member, int, bool) {
	reply := make(chan membershipReply, 1)
	res := call(r, leaveRequest{roomID: roomID, connID: connID, announce: announce, reply: reply}, reply)
	return res.member, res.count, res.ok
}

// Broadcast delivers payload to the members of roomID except those listed in
// exclude and returns how many deliveries succeeded.
func (r *Registry) Broadcast(roomID int32, payload []byte, exclude ...uint64) int {
	var skip map[uint64]struct{}
	if len(exclude) > 0 {
		skip = make(map[uint64]struct{}, len(exclude))
		for _, id := range exclude {
			skip[id] = struct{}{}
		}
	}
	reply := make(chan int, 1)
	return call(r, broadcastRequest{roomID: roomID, payload: payload, exclude: skip, reply: reply}, reply)
}

// CountMembers returns the size of roomID, or 0 when it does not exist.
func (r *Registry) CountMembers(roomID int32) int {
	reply := make(chan int, 1)
	return call(r, countRequest{roomID: roomID, reply: reply}, reply)
}

// FindMemberByName scans every room for a member named name.
func (r *Registry) FindMemberByName(name string) (Member, bool) {
	reply := make(chan membershipReply, 1)
	res := call(r, findByNameRequest{name: name, reply: reply}, reply)
	return res.member, res.ok
}

// OwnerRooms lists the active rooms owned by ownerID.
func (r *Registry) OwnerRooms(ownerID int32) []int32 {
	reply := make(chan []int32, 1)
	return call(r, ownerRoomsRequest{ownerID: ownerID, reply: reply}, reply)
}

// Stats reports the number of rooms and members.
func (r *Registry) Stats() Stats {
	reply := make(chan Stats, 1)
	return call(r, statsRequest{reply: reply}, reply)
}
