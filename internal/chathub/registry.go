package chathub

// Room id conventions. user:<id> carries direct-to-user notifications
// (presence, deletions, inbox badges); chat:<id> carries conversation
// broadcasts.
func UserRoom(userID string) string { return "user:" + userID }
func ChatRoom(chatID string) string { return "chat:" + chatID }

// entry ties a live socket to its authenticated identity and the set
// of rooms the connection has joined. In-memory only; rebuilt from
// scratch on process restart.
type entry struct {
	client Client
	userID string
	role   string
	rooms  map[string]struct{}
}

// registry is the process-local connection state: sockets, a per-user
// socket index, and room membership. It is not safe for concurrent
// use; every access happens from the hub's Run loop.
type registry struct {
	conns map[string]*entry            // socket id -> entry
	users map[string]map[string]*entry // user id -> socket id -> entry
	rooms map[string]map[string]*entry // room id -> socket id -> entry
}

func newRegistry() *registry {
	return &registry{
		conns: make(map[string]*entry),
		users: make(map[string]map[string]*entry),
		rooms: make(map[string]map[string]*entry),
	}
}

func (r *registry) add(c Client) *entry {
	e := &entry{client: c, rooms: make(map[string]struct{})}
	r.conns[c.GetSocketID()] = e
	return e
}

func (r *registry) bySocket(socketID string) *entry {
	return r.conns[socketID]
}

// identify binds an authenticated identity to the socket. Re-binding
// under a different user (token refresh for another account) moves the
// socket in the user index and vacates every room joined as the old
// user, so the new account inherits none of the old account's rooms.
func (r *registry) identify(c Client, userID, role string) *entry {
	e := r.conns[c.GetSocketID()]
	if e == nil {
		e = r.add(c)
	}
	if e.userID != "" && e.userID != userID {
		for room := range e.rooms {
			r.leaveRoom(e, room)
		}
		r.unindexUser(e, c.GetSocketID())
	}
	e.userID = userID
	e.role = role

	sockets := r.users[userID]
	if sockets == nil {
		sockets = make(map[string]*entry)
		r.users[userID] = sockets
	}
	sockets[c.GetSocketID()] = e
	return e
}

// remove destroys the socket's entry, leaving all rooms. Returns the
// removed entry, or nil for an unknown socket.
func (r *registry) remove(c Client) *entry {
	socketID := c.GetSocketID()
	e := r.conns[socketID]
	if e == nil {
		return nil
	}
	for room := range e.rooms {
		r.leaveRoom(e, room)
	}
	r.unindexUser(e, socketID)
	delete(r.conns, socketID)
	return e
}

func (r *registry) unindexUser(e *entry, socketID string) {
	if e.userID == "" {
		return
	}
	if sockets := r.users[e.userID]; sockets != nil {
		delete(sockets, socketID)
		if len(sockets) == 0 {
			delete(r.users, e.userID)
		}
	}
}

// userSocketCount reports how many live sockets the user holds.
func (r *registry) userSocketCount(userID string) int {
	return len(r.users[userID])
}

// joinRoom is idempotent: it reports false if the connection already
// belongs to the room.
func (r *registry) joinRoom(e *entry, room string) bool {
	if _, ok := e.rooms[room]; ok {
		return false
	}
	e.rooms[room] = struct{}{}

	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*entry)
		r.rooms[room] = members
	}
	members[e.client.GetSocketID()] = e
	return true
}

// leaveRoom is the idempotent inverse of joinRoom.
func (r *registry) leaveRoom(e *entry, room string) bool {
	if _, ok := e.rooms[room]; !ok {
		return false
	}
	delete(e.rooms, room)
	if members := r.rooms[room]; members != nil {
		delete(members, e.client.GetSocketID())
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	return true
}

// roomMembers returns the entries currently joined to the room.
func (r *registry) roomMembers(room string) []*entry {
	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*entry, 0, len(members))
	for _, e := range members {
		out = append(out, e)
	}
	return out
}
