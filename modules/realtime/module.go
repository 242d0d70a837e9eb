package realtime

import (
	"context"
	"errors"
	"log"

	"github.com/example/modular-world/events"
	"github.com/example/modular-world/modules/registry"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// ErrNoGateway is returned by Start when the storage module is not ready.
var ErrNoGateway = errors.New("realtime: persistence gateway unavailable")

// Config wires the module to the rest of the application. Gateway and Cache
// are resolved at Start, after the modules they come from have started.
type Config struct {
	Gateway      func() Gateway
	Cache        func() RoomCache
	Registry     *registry.Registry
	Broadcaster  Broadcaster
	Dependencies []string
	Logger       types.Logger
	Options      []Option
}

// Module owns the router for the lifetime of the application.
type Module struct {
	cfg      Config
	router   *Router
	eventBus mono.EventBus
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.EventEmitterModule = (*Module)(nil)
var _ mono.EventBusAwareModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new realtime module.
func NewModule(cfg Config) *Module {
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	return &Module{cfg: cfg}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "realtime"
}

// Dependencies returns the modules that must start first.
func (m *Module) Dependencies() []string {
	return m.cfg.Dependencies
}

// SetDependencyServiceContainer is a no-op; the gateway is resolved in Start.
func (m *Module) SetDependencyServiceContainer(string, mono.ServiceContainer) {}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.PlayerJoinedV1.ToBase(),
		events.PlayerLeftV1.ToBase(),
		events.ChatMessageSentV1.ToBase(),
		events.ModuleCreatedV1.ToBase(),
		events.ModuleUpdatedV1.ToBase(),
		events.ModuleDeletedV1.ToBase(),
	}
}

// Start resolves the gateway and builds the router.
func (m *Module) Start(_ context.Context) error {
	if m.cfg.Gateway == nil || m.cfg.Broadcaster == nil {
		return ErrNoGateway
	}
	gw := m.cfg.Gateway()
	if gw == nil {
		return ErrNoGateway
	}

	var cache RoomCache
	if m.cfg.Cache != nil {
		cache = m.cfg.Cache()
	}

	opts := append([]Option{}, m.cfg.Options...)
	if m.cfg.Logger != nil {
		opts = append(opts, WithLogger(m.cfg.Logger))
	}
	if m.eventBus != nil {
		opts = append(opts, WithPublisher(&busPublisher{bus: m.eventBus}))
	}

	m.router = NewRouter(InstrumentGateway(gw, cache), m.cfg.Registry, m.cfg.Broadcaster, opts...)
	log.Printf("[realtime] Module started (cache: %t)", cache != nil)
	return nil
}

// Stop is a no-op; connections are closed by the broadcast module.
func (m *Module) Stop(_ context.Context) error {
	stats := m.cfg.Registry.Stats()
	log.Printf("[realtime] Module stopped - %d players in %d rooms", stats.Players, stats.Rooms)
	return nil
}

// Router returns the router, or nil before Start.
func (m *Module) Router() *Router {
	return m.router
}

// Health reports live room occupancy.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.router == nil {
		return mono.HealthStatus{Healthy: false, Message: "router not started"}
	}
	stats := m.router.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"players": stats.Players,
			"rooms":   stats.Rooms,
		},
	}
}

// busPublisher announces domain events on the mono event bus. Publishing is
// best-effort.
type busPublisher struct {
	bus mono.EventBus
}

func (p *busPublisher) PlayerJoined(e events.PlayerJoinedEvent) {
	if err := events.PlayerJoinedV1.Publish(p.bus, e, nil); err != nil {
		log.Printf("[realtime] Warning: failed to publish PlayerJoined for %s: %v", e.PlayerID, err)
	}
}

func (p *busPublisher) PlayerLeft(e events.PlayerLeftEvent) {
	if err := events.PlayerLeftV1.Publish(p.bus, e, nil); err != nil {
		log.Printf("[realtime] Warning: failed to publish PlayerLeft for %s: %v", e.PlayerID, err)
	}
}

func (p *busPublisher) ChatMessageSent(e events.ChatMessageSentEvent) {
	if err := events.ChatMessageSentV1.Publish(p.bus, e, nil); err != nil {
		log.Printf("[realtime] Warning: failed to publish ChatMessageSent for %s: %v", e.MessageID, err)
	}
}

func (p *busPublisher) ModuleCreated(e events.ModuleChangedEvent) {
	if err := events.ModuleCreatedV1.Publish(p.bus, e, nil); err != nil {
		log.Printf("[realtime] Warning: failed to publish ModuleCreated for %s: %v", e.ModuleID, err)
	}
}

func (p *busPublisher) ModuleUpdated(e events.ModuleChangedEvent) {
	if err := events.ModuleUpdatedV1.Publish(p.bus, e, nil); err != nil {
		log.Printf("[realtime] Warning: failed to publish ModuleUpdated for %s: %v", e.ModuleID, err)
	}
}

func (p *busPublisher) ModuleDeleted(e events.ModuleChangedEvent) {
	if err := events.ModuleDeletedV1.Publish(p.bus, e, nil); err != nil {
		log.Printf("[realtime] Warning: failed to publish ModuleDeleted for %s: %v", e.ModuleID, err)
	}
}
