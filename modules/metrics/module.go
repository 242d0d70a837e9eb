package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/modular-world/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module counts world events published on the event bus.
type Module struct {
	collector *Collector
	logger    types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventConsumerModule = (*Module)(nil)
)

// NewModule creates a new metrics module.
func NewModule(collector *Collector, logger types.Logger) *Module {
	return &Module{collector: collector, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "metrics"
}

// RegisterEventConsumers subscribes to every world event.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.PlayerJoinedV1, m.handlePlayerJoined, m); err != nil {
		return fmt.Errorf("failed to register PlayerJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.PlayerLeftV1, m.handlePlayerLeft, m); err != nil {
		return fmt.Errorf("failed to register PlayerLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ChatMessageSentV1, m.handleChatMessageSent, m); err != nil {
		return fmt.Errorf("failed to register ChatMessageSent consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ModuleCreatedV1, m.moduleHandler(OpCreated), m); err != nil {
		return fmt.Errorf("failed to register ModuleCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ModuleUpdatedV1, m.moduleHandler(OpUpdated), m); err != nil {
		return fmt.Errorf("failed to register ModuleUpdated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ModuleDeletedV1, m.moduleHandler(OpDeleted), m); err != nil {
		return fmt.Errorf("failed to register ModuleDeleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"PlayerJoined.v1", "PlayerLeft.v1", "ChatMessageSent.v1", "ModuleCreated.v1", "ModuleUpdated.v1", "ModuleDeleted.v1"})
	return nil
}

func (m *Module) handlePlayerJoined(_ context.Context, event events.PlayerJoinedEvent, _ *mono.Msg) error {
	m.collector.observeJoin()
	m.logger.Debug("Recorded join", "room", event.RoomKey, "player", event.PlayerID)
	return nil
}

func (m *Module) handlePlayerLeft(_ context.Context, event events.PlayerLeftEvent, _ *mono.Msg) error {
	m.collector.observeLeave()
	m.logger.Debug("Recorded leave", "room", event.RoomKey, "player", event.PlayerID)
	return nil
}

func (m *Module) handleChatMessageSent(_ context.Context, event events.ChatMessageSentEvent, _ *mono.Msg) error {
	m.collector.observeChat(event.Length)
	return nil
}

func (m *Module) moduleHandler(op string) func(context.Context, events.ModuleChangedEvent, *mono.Msg) error {
	return func(_ context.Context, event events.ModuleChangedEvent, _ *mono.Msg) error {
		m.collector.observeModule(op)
		m.logger.Debug("Recorded module change", "op", op, "module", event.ModuleID)
		return nil
	}
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Metrics module started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Metrics module stopped")
	return nil
}

// Handler serves the Prometheus exposition.
func (m *Module) Handler() http.Handler {
	return m.collector.Handler()
}
