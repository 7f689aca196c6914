// Package chatcore is the client-side orchestration core of a
// conversational AI application: a session registry multiplexing
// concurrent streamed responses, with duplicate detection and
// connection-health monitoring at the edges. It is a library; the
// presentation layer embeds Core and renders what the registry holds.
package chatcore

import (
	"context"

	"github.com/youruser/chatcore/internal/api"
	"github.com/youruser/chatcore/internal/chat"
	"github.com/youruser/chatcore/internal/config"
	"github.com/youruser/chatcore/internal/dedup"
	"github.com/youruser/chatcore/internal/health"
	"github.com/youruser/chatcore/internal/kvstore"
)

// Core bundles the wired components.
type Core struct {
	Registry *chat.Registry
	Bus      *chat.Bus
	Client   *api.Client
	Dedup    *dedup.Client
	Health   *health.Monitor
	Store    kvstore.Store
}

// New wires a Core from configuration. The store may be nil; an
// in-memory store is used then. Call Start to begin health polling and
// Close on shutdown.
func New(cfg *config.Config, store kvstore.Store) *Core {
	if store == nil {
		store = kvstore.NewMemoryStore()
	}

	client := api.NewClient(cfg.BaseURL, cfg.APIKey, cfg.RequestTimeout)
	bus := chat.NewBus()

	registry := chat.New(chat.Options{
		Sender:         client,
		History:        client,
		Bus:            bus,
		WindowSize:     cfg.ContextWindowSize,
		TokenBudget:    cfg.ContextTokenBudget,
		CancelOnSwitch: cfg.CancelOnSwitch,
	})

	return &Core{
		Registry: registry,
		Bus:      bus,
		Client:   client,
		Dedup:    dedup.NewClient(cfg.BaseURL, cfg.APIKey, cfg.RequestTimeout),
		Health:   health.NewMonitor(cfg.BaseURL, cfg.APIKey, cfg.HealthInterval),
		Store:    store,
	}
}

// Start begins background health polling until ctx is cancelled.
func (c *Core) Start(ctx context.Context) {
	c.Health.Start(ctx)
}

// Close releases the event bus and the persistence store.
func (c *Core) Close() error {
	if err := c.Bus.Close(); err != nil {
		return err
	}
	return c.Store.Close()
}
