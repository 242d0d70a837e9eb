package realtime

import "golang.org/x/time/rate"

// State is the lifecycle position of a connection.
type State int

const (
	StateUnjoined State = iota
	StateJoined
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Session is the per-connection state. A session is driven by exactly one
// goroutine (the connection's read loop), so it carries no lock.
type Session struct {
	id         string
	authUserID string
	state      State
	roomKey    string
	roomID     string
	userID     string
	limiter    *rate.Limiter

	// ignoreClaims drops the user id a client puts in its join request.
	ignoreClaims bool
}

// NewSession creates an unjoined session for a connection. authUserID is the
// verified durable identity, or empty for guests.
func (r *Router) NewSession(connID, authUserID string) *Session {
	s := &Session{id: connID, authUserID: authUserID, state: StateUnjoined, ignoreClaims: r.opts.verifiedOnly}
	if r.opts.chatRate > 0 {
		s.limiter = rate.NewLimiter(r.opts.chatRate, r.opts.chatBurst)
	}
	return s
}

// ID returns the connection id, which doubles as the player id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// RoomKey returns the current room key, empty unless joined.
func (s *Session) RoomKey() string { return s.roomKey }

// RoomID returns the durable id of the current room, empty unless joined.
func (s *Session) RoomID() string { return s.roomID }

// UserID returns the resolved durable identity, or the connection id for guests.
func (s *Session) UserID() string { return s.userID }

// isGuest reports whether the session has no durable identity.
func (s *Session) isGuest() bool {
	return s.userID == "" || s.userID == s.id
}

// resolveUserID picks the identity for a join: a verified identity wins over
// one the client claims, and guests fall back to the connection id. Claims
// are only honoured when the router accepts unverified identities.
func (s *Session) resolveUserID(requested string) string {
	switch {
	case s.authUserID != "":
		return s.authUserID
	case requested != "" && !s.ignoreClaims:
		return requested
	}
	return s.id
}

func (s *Session) enter(key, roomID, userID string) {
	s.state = StateJoined
	s.roomKey = key
	s.roomID = roomID
	s.userID = userID
}

func (s *Session) leave() {
	s.state = StateUnjoined
	s.roomKey = ""
	s.roomID = ""
}

func (s *Session) terminate() {
	s.state = StateTerminated
	s.roomKey = ""
	s.roomID = ""
}

func (s *Session) allowChat() bool {
	return s.limiter == nil || s.limiter.Allow()
}
