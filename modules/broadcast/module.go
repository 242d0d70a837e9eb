// Package broadcast delivers outbound frames to websocket connections.
package broadcast

import (
	"context"
	"log"

	"github.com/go-monolith/mono"
)

// Module runs the hub for the lifetime of the application.
type Module struct {
	hub     *Hub
	stopHub context.CancelFunc
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new broadcast module.
func NewModule() *Module {
	return &Module{
		hub: NewHub(),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start starts the hub loop.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.stopHub = cancel
	go m.hub.Run(ctx)
	log.Println("[broadcast] Hub running")
	return nil
}

// Stop shuts down the hub and closes every connection.
func (m *Module) Stop(_ context.Context) error {
	open := m.hub.ClientCount()
	if m.stopHub != nil {
		m.stopHub()
		m.hub.Wait()
	}
	log.Printf("[broadcast] Hub stopped, closed %d connections", open)
	return nil
}

// Health reports the number of registered connections.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"sockets": m.hub.ClientCount(),
		},
	}
}

// Hub returns the hub for the modules that send through it.
func (m *Module) Hub() *Hub {
	return m.hub
}
