// Package realtime turns inbound websocket events into registry changes,
// durable writes and outbound frames.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/example/modular-world/domain/world"
	"github.com/example/modular-world/events"
	"github.com/example/modular-world/modules/protocol"
	"github.com/example/modular-world/modules/registry"
)

// Messages sent to a client in error frames.
const (
	MsgInvalidFormat  = "Invalid message format"
	MsgUnknownEvent   = "Unknown event"
	MsgLoadRoom       = "Failed to load room"
	MsgInvalidMessage = "Invalid message"
	MsgRateLimited    = "Rate limit exceeded, please slow down"
	MsgSendMessage    = "Failed to send message"
	MsgInvalidModule  = "Invalid module"
	MsgCreateModule   = "Failed to create module"
	MsgUpdateModule   = "Failed to update module"
	MsgDeleteModule   = "Failed to delete module"
)

// Router dispatches session events. Handlers for one session must be called
// from a single goroutine. Sessions in the same room are serialized by a
// per-room lock around everything that changes what a newcomer would load,
// so a joining player never misses a change made while it was loading.
// Moves are not serialized; the next move corrects a stale position.
type Router struct {
	gateway  Gateway
	registry *registry.Registry
	out      Broadcaster
	opts     options
	locks    roomLocks
}

// NewRouter creates a router persisting through gw and delivering through out.
func NewRouter(gw Gateway, reg *registry.Registry, out Broadcaster, opts ...Option) *Router {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Router{
		gateway:  gw,
		registry: reg,
		out:      out,
		opts:     o,
		locks:    roomLocks{locks: make(map[string]*roomLock)},
	}
}

// Stats returns the live player and room counts.
func (r *Router) Stats() registry.Stats {
	return r.registry.Stats()
}

// HandleFrame decodes a raw client frame and dispatches it. Frames that
// cannot be decoded are answered with an error frame.
func (r *Router) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	if s.state == StateTerminated {
		return
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		r.opts.logger.Debug("Rejected client frame", "conn", s.id, "error", err)
		if errors.Is(err, protocol.ErrUnknownEvent) {
			r.reply(s, protocol.NewError(MsgUnknownEvent))
			return
		}
		r.reply(s, protocol.NewError(MsgInvalidFormat))
		return
	}
	r.Handle(ctx, s, msg)
}

// Handle dispatches one decoded event.
func (r *Router) Handle(ctx context.Context, s *Session, msg protocol.Inbound) {
	if s.state == StateTerminated {
		return
	}
	switch m := msg.(type) {
	case protocol.JoinRoom:
		r.Join(ctx, s, m)
	case protocol.PlayerMove:
		r.Move(s, m)
	case protocol.ChatSend:
		r.Chat(ctx, s, m)
	case protocol.ModuleCreate:
		r.CreateModule(ctx, s, m)
	case protocol.ModuleUpdate:
		r.UpdateModule(ctx, s, m)
	case protocol.ModuleDelete:
		r.DeleteModule(ctx, s, m)
	case protocol.AvatarUpdate:
		r.UpdateAvatar(s, m)
	}
}

// Join moves the session into the room at req.Coords. The room is resolved
// before anything else changes, so a failed join leaves the session where
// it was.
func (r *Router) Join(ctx context.Context, s *Session, req protocol.JoinRoom) {
	if s.state == StateTerminated {
		return
	}
	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	room, err := r.gateway.GetOrCreateRoom(opCtx, req.Coords.X, req.Coords.Y)
	if err != nil {
		r.opts.logger.Error("Failed to resolve room", "conn", s.id, "coords", req.Coords.Key(), "error", err)
		r.reply(s, protocol.NewError(MsgLoadRoom))
		return
	}

	if s.state == StateJoined {
		unlock := r.locks.lock(s.roomKey)
		r.leaveRoom(s)
		unlock()
	}

	coords := room.Coords()
	key := coords.Key()
	unlock := r.locks.lock(key)
	defer unlock()

	modules, err := r.gateway.LoadModules(opCtx, room.ID)
	if err != nil {
		r.opts.logger.Warn("Failed to load modules", "room", room.ID, "error", err)
		modules = nil
	}
	history, err := r.gateway.LoadRecentChat(opCtx, room.ID, r.opts.historyLimit)
	if err != nil {
		r.opts.logger.Warn("Failed to load chat history", "room", room.ID, "error", err)
		history = nil
	}

	userID := s.resolveUserID(req.UserID)
	presence := world.Presence{
		ID:        s.id,
		Name:      req.Avatar.Name,
		Color:     req.Avatar.Color,
		HeadShape: req.Avatar.HeadShape,
		X:         req.Avatar.X,
		Y:         req.Avatar.Y,
		Coords:    coords,
	}

	r.registry.AddPlayer(key, presence)
	s.enter(key, room.ID, userID)

	r.reply(s, protocol.NewRoomState(r.registry.ListPlayers(key, s.id), modules, history))
	r.out.Send(r.registry.ConnIDs(key, s.id), protocol.NewPlayerJoined(presence))

	r.opts.logger.Info("Player joined room", "conn", s.id, "user", userID, "room", key)
	r.opts.publisher.PlayerJoined(events.PlayerJoinedEvent{
		RoomID:    room.ID,
		RoomKey:   key,
		PlayerID:  s.id,
		UserID:    userID,
		Name:      presence.Name,
		Timestamp: r.opts.now(),
	})
}

// Move records the new position and tells the rest of the room.
func (r *Router) Move(s *Session, req protocol.PlayerMove) {
	if s.state != StateJoined {
		return
	}
	ok := r.registry.UpdatePlayer(s.roomKey, s.id, func(p *world.Presence) {
		p.X = req.X
		p.Y = req.Y
	})
	if !ok {
		return
	}
	r.out.Send(r.registry.ConnIDs(s.roomKey, s.id), protocol.NewPlayerMoved(s.id, req.X, req.Y))
}

// Chat persists a message and delivers it to the whole room, sender included.
// Nothing is broadcast unless the message was stored.
func (r *Router) Chat(ctx context.Context, s *Session, req protocol.ChatSend) {
	if s.state != StateJoined {
		return
	}
	if err := world.ValidateMessage(req.Message); err != nil {
		r.reply(s, protocol.NewError(MsgInvalidMessage))
		return
	}
	if !s.allowChat() {
		r.reply(s, protocol.NewError(MsgRateLimited))
		return
	}

	key := s.roomKey
	unlock := r.locks.lock(key)
	defer unlock()

	sender, ok := r.registry.Player(key, s.id)
	if !ok {
		return
	}

	opCtx, cancel := r.opContext(ctx)
	defer cancel()
	saved, err := r.gateway.SaveChatMessage(opCtx, s.roomID, s.userID, req.Message)
	if err != nil {
		r.opts.logger.Error("Failed to save chat message", "conn", s.id, "room", s.roomID, "error", err)
		r.reply(s, protocol.NewError(MsgSendMessage))
		return
	}
	msg := *saved
	msg.UserName = sender.Name

	bubble := world.ChatBubble{Message: msg.Message, Timestamp: msg.Timestamp}
	r.registry.UpdatePlayer(key, s.id, func(p *world.Presence) {
		b := bubble
		p.ChatBubble = &b
	})

	r.out.Send(r.registry.ConnIDs(key, ""), protocol.NewChatMessage(msg))
	r.out.Send(r.registry.ConnIDs(key, s.id), protocol.NewPlayerChatBubble(s.id, bubble))

	r.opts.publisher.ChatMessageSent(events.ChatMessageSentEvent{
		MessageID: msg.ID,
		RoomID:    s.roomID,
		UserID:    s.userID,
		UserName:  msg.UserName,
		Length:    len(msg.Message),
		Timestamp: r.opts.now(),
	})
}

// CreateModule persists a new module in the session's room, then tells the
// rest of the room.
func (r *Router) CreateModule(ctx context.Context, s *Session, req protocol.ModuleCreate) {
	if s.state != StateJoined {
		return
	}
	m := req.Module
	if err := m.Validate(); err != nil {
		r.opts.logger.Debug("Rejected module", "conn", s.id, "error", err)
		r.reply(s, protocol.NewError(MsgInvalidModule))
		return
	}
	m.Normalize()

	var creator *string
	if !s.isGuest() {
		id := s.userID
		creator = &id
	}

	unlock := r.locks.lock(s.roomKey)
	defer unlock()

	opCtx, cancel := r.opContext(ctx)
	defer cancel()
	saved, err := r.gateway.SaveModule(opCtx, s.roomID, m, creator)
	if err != nil {
		r.opts.logger.Error("Failed to create module", "conn", s.id, "module", m.ID, "error", err)
		r.reply(s, protocol.NewError(MsgCreateModule))
		return
	}

	r.out.Send(r.registry.ConnIDs(s.roomKey, s.id), protocol.NewModuleCreated(*saved))
	r.opts.publisher.ModuleCreated(r.moduleEvent(s, saved.ID, saved.Shape))
}

// UpdateModule replaces a module of the session's room.
func (r *Router) UpdateModule(ctx context.Context, s *Session, req protocol.ModuleUpdate) {
	if s.state != StateJoined {
		return
	}
	m := req.Module
	if err := m.Validate(); err != nil {
		r.opts.logger.Debug("Rejected module update", "conn", s.id, "error", err)
		r.reply(s, protocol.NewError(MsgInvalidModule))
		return
	}
	m.Normalize()

	unlock := r.locks.lock(s.roomKey)
	defer unlock()

	opCtx, cancel := r.opContext(ctx)
	defer cancel()
	updated, err := r.gateway.UpdateModule(opCtx, s.roomID, m)
	if err != nil {
		r.opts.logger.Error("Failed to update module", "conn", s.id, "module", m.ID, "error", err)
		r.reply(s, protocol.NewError(MsgUpdateModule))
		return
	}

	r.out.Send(r.registry.ConnIDs(s.roomKey, s.id), protocol.NewModuleUpdated(*updated))
	r.opts.publisher.ModuleUpdated(r.moduleEvent(s, updated.ID, updated.Shape))
}

// DeleteModule removes a module of the session's room.
func (r *Router) DeleteModule(ctx context.Context, s *Session, req protocol.ModuleDelete) {
	if s.state != StateJoined {
		return
	}

	unlock := r.locks.lock(s.roomKey)
	defer unlock()

	opCtx, cancel := r.opContext(ctx)
	defer cancel()
	if err := r.gateway.DeleteModule(opCtx, s.roomID, req.ID); err != nil {
		r.opts.logger.Error("Failed to delete module", "conn", s.id, "module", req.ID, "error", err)
		r.reply(s, protocol.NewError(MsgDeleteModule))
		return
	}

	r.out.Send(r.registry.ConnIDs(s.roomKey, s.id), protocol.NewModuleDeleted(req.ID))
	r.opts.publisher.ModuleDeleted(r.moduleEvent(s, req.ID, ""))
}

// UpdateAvatar merges the patch into the player's presence and tells the
// rest of the room.
func (r *Router) UpdateAvatar(s *Session, req protocol.AvatarUpdate) {
	if s.state != StateJoined {
		return
	}

	unlock := r.locks.lock(s.roomKey)
	defer unlock()

	ok := r.registry.UpdatePlayer(s.roomKey, s.id, func(p *world.Presence) {
		p.Apply(req.Patch)
	})
	if !ok {
		return
	}
	r.out.Send(r.registry.ConnIDs(s.roomKey, s.id), protocol.NewPlayerAvatarUpdated(s.id, req.Patch))
}

// Disconnect removes the session's presence and notifies the room. It is
// safe to call more than once.
func (r *Router) Disconnect(s *Session) {
	if s.state == StateTerminated {
		return
	}
	if s.state == StateJoined {
		unlock := r.locks.lock(s.roomKey)
		r.leaveRoom(s)
		unlock()
	}
	s.terminate()
	r.opts.logger.Debug("Session terminated", "conn", s.id)
}

// leaveRoom must be called with the room lock held.
func (r *Router) leaveRoom(s *Session) {
	key, roomID := s.roomKey, s.roomID
	s.leave()
	if !r.registry.RemovePlayer(key, s.id) {
		return
	}
	r.out.Send(r.registry.ConnIDs(key, s.id), protocol.NewPlayerLeft(s.id))

	r.opts.logger.Info("Player left room", "conn", s.id, "room", key)
	r.opts.publisher.PlayerLeft(events.PlayerLeftEvent{
		RoomID:    roomID,
		RoomKey:   key,
		PlayerID:  s.id,
		UserID:    s.userID,
		Timestamp: r.opts.now(),
	})
}

func (r *Router) moduleEvent(s *Session, moduleID string, shape world.Shape) events.ModuleChangedEvent {
	return events.ModuleChangedEvent{
		ModuleID:  moduleID,
		RoomID:    s.roomID,
		UserID:    s.userID,
		Shape:     string(shape),
		Timestamp: r.opts.now(),
	}
}

func (r *Router) reply(s *Session, msg protocol.Outbound) {
	r.out.Send([]string{s.id}, msg)
}

func (r *Router) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opts.opTimeout)
}

// roomLocks hands out one mutex per room key and forgets it once no
// session holds or waits for it.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func (l *roomLocks) lock(key string) func() {
	l.mu.Lock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &roomLock{}
		l.locks[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
