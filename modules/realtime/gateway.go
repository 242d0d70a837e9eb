package realtime

import (
	"context"
	"errors"

	"github.com/example/modular-world/domain/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// TracerName is the instrumentation scope of gateway spans.
const TracerName = "github.com/example/modular-world/modules/realtime"

type instrumentedGateway struct {
	next   Gateway
	cache  RoomCache
	tracer trace.Tracer

	// rooms collapses concurrent lookups of the same coordinates.
	rooms singleflight.Group
}

// InstrumentGateway wraps next with a span per call. When cache is not nil,
// room lookups go through it first; rooms are never deleted, so a cached
// entry never goes stale. Cache failures fall through to next.
func InstrumentGateway(next Gateway, cache RoomCache) Gateway {
	return &instrumentedGateway{
		next:   next,
		cache:  cache,
		tracer: otel.Tracer(TracerName),
	}
}

func (g *instrumentedGateway) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func roomCacheKey(x, y int) string {
	return "room:" + world.RoomKey(x, y)
}

func (g *instrumentedGateway) GetOrCreateRoom(ctx context.Context, x, y int) (room *world.Room, err error) {
	ctx, span := g.start(ctx, "GetOrCreateRoom", attribute.String("room.coords", world.RoomKey(x, y)))
	defer func() { finish(span, err) }()

	key := roomCacheKey(x, y)
	if g.cache != nil {
		var cached world.Room
		hit, cerr := g.cache.Get(ctx, key, &cached)
		if cerr != nil {
			span.AddEvent("cache.error", trace.WithAttributes(attribute.String("error", cerr.Error())))
		}
		span.SetAttributes(attribute.Bool("cache.hit", hit))
		if hit {
			return &cached, nil
		}
	}

	// The shared lookup must outlive any single caller, so it runs detached
	// from the first caller's cancellation under its own timeout.
	ch := g.rooms.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultOperationTimeout)
		defer cancel()
		return g.next.GetOrCreateRoom(sharedCtx, x, y)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	span.SetAttributes(attribute.Bool("room.shared", res.Shared))
	if res.Err != nil {
		return nil, res.Err
	}
	loaded, ok := res.Val.(*world.Room)
	if !ok || loaded == nil {
		return nil, errors.New("realtime: store returned no room")
	}
	r := *loaded
	room = &r
	if g.cache != nil {
		if cerr := g.cache.Set(ctx, key, room); cerr != nil {
			span.AddEvent("cache.error", trace.WithAttributes(attribute.String("error", cerr.Error())))
		}
	}
	return room, nil
}

func (g *instrumentedGateway) LoadModules(ctx context.Context, roomID string) (modules []world.Module, err error) {
	ctx, span := g.start(ctx, "LoadModules", attribute.String("room.id", roomID))
	defer func() { finish(span, err) }()

	modules, err = g.next.LoadModules(ctx, roomID)
	span.SetAttributes(attribute.Int("modules.count", len(modules)))
	return modules, err
}

func (g *instrumentedGateway) SaveModule(ctx context.Context, roomID string, m world.Module, creatorID *string) (saved *world.Module, err error) {
	ctx, span := g.start(ctx, "SaveModule", attribute.String("room.id", roomID), attribute.String("module.id", m.ID))
	defer func() { finish(span, err) }()

	return g.next.SaveModule(ctx, roomID, m, creatorID)
}

func (g *instrumentedGateway) UpdateModule(ctx context.Context, roomID string, m world.Module) (updated *world.Module, err error) {
	ctx, span := g.start(ctx, "UpdateModule", attribute.String("room.id", roomID), attribute.String("module.id", m.ID))
	defer func() { finish(span, err) }()

	return g.next.UpdateModule(ctx, roomID, m)
}

func (g *instrumentedGateway) DeleteModule(ctx context.Context, roomID, moduleID string) (err error) {
	ctx, span := g.start(ctx, "DeleteModule", attribute.String("room.id", roomID), attribute.String("module.id", moduleID))
	defer func() { finish(span, err) }()

	return g.next.DeleteModule(ctx, roomID, moduleID)
}

func (g *instrumentedGateway) SaveChatMessage(ctx context.Context, roomID, userID, text string) (msg *world.ChatMessage, err error) {
	ctx, span := g.start(ctx, "SaveChatMessage", attribute.String("room.id", roomID), attribute.Int("message.length", len(text)))
	defer func() { finish(span, err) }()

	return g.next.SaveChatMessage(ctx, roomID, userID, text)
}

func (g *instrumentedGateway) LoadRecentChat(ctx context.Context, roomID string, limit int) (history []world.ChatMessage, err error) {
	ctx, span := g.start(ctx, "LoadRecentChat", attribute.String("room.id", roomID), attribute.Int("limit", limit))
	defer func() { finish(span, err) }()

	history, err = g.next.LoadRecentChat(ctx, roomID, limit)
	span.SetAttributes(attribute.Int("messages.count", len(history)))
	return history, err
}
