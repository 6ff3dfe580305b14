// Package app is the composition root: it wires Transport, Registry,
// Rooms, Policy, Store and the Dispatcher together per spec.md §2,
// and runs the periodic idle-connection sweep.
//
// Grounded on the teacher's main.go (construct server, start,
// wait for signal) generalized away from a single global Server into
// explicit constructor injection: every component is owned by App.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatserver/internal/admintui"
	"chatserver/internal/config"
	"chatserver/internal/dispatch"
	"chatserver/internal/policy"
	"chatserver/internal/registry"
	"chatserver/internal/rooms"
	"chatserver/internal/store"
	"chatserver/internal/transport"
)

const idleSweepInterval = time.Second

// App owns every long-lived component for one running server.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	transport *transport.Transport
	registry  *registry.Registry
	rooms     *rooms.Manager
	policy    *policy.Controller
	store     *store.Store
	dispatch  *dispatch.Dispatcher

	console *admintui.Console
}

// New builds every component and wires the Dispatcher as Transport's
// event handlers, but does not yet bind a socket.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := registry.New()
	rm := rooms.New()
	pc := policy.New(policy.Config{
		MaxConnectionsPerSecond: cfg.MaxConnectionsPerSecond,
		MaxMessagesPerMinute:    cfg.MaxMessagesPerMinute,
		ConnectionTimeoutSeconds: cfg.ConnectionTimeoutSeconds,
		MaxTotalConnections:     cfg.MaxTotalConnections,
	})
	st := store.New(store.Config{
		MaxMessagesPerRoom: cfg.MaxMessagesPerRoom,
		MaxFileSizeMB:      cfg.MaxFileSizeMB,
		LogDirectory:       cfg.LogDirectory,
		EnablePersistence:  cfg.EnablePersistence,
	}, logger)

	d := dispatch.New(logger, reg, rm, pc, st)
	tr := transport.New(logger, d.Handlers(), 0)
	d.Attach(tr)

	return &App{
		cfg:       cfg,
		logger:    logger,
		transport: tr,
		registry:  reg,
		rooms:     rm,
		policy:    pc,
		store:     st,
		dispatch:  d,
	}
}

// Run binds the listening socket, starts the idle-sweep goroutine,
// optionally the admin console, and blocks until ctx is cancelled,
// then shuts everything down.
func (a *App) Run(ctx context.Context, withConsole bool) error {
	if err := a.transport.Start(a.cfg.Port); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	a.logger.Info("chat server listening", zap.Int("port", a.cfg.Port))

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go a.idleSweepLoop(sweepCtx)

	if withConsole {
		console, err := admintui.New(a.cfg.Port, a.transport, a.registry, a.rooms, a.store)
		if err != nil {
			a.logger.Error("failed to start admin console, continuing headless", zap.Error(err))
		} else {
			a.console = console
			go func() {
				if err := console.Run(); err != nil {
					a.logger.Error("admin console exited with error", zap.Error(err))
				}
			}()
		}
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	if a.console != nil {
		a.console.Close()
	}
	a.transport.Stop()
	a.store.Flush()
	a.store.Close()

	return nil
}

// idleSweepLoop disconnects clients that have been silent longer than
// the configured timeout, per spec.md §4.3's idle-sweep requirement.
func (a *App) idleSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clients := a.registry.All()
			ids := make([]int, 0, len(clients))
			for _, c := range clients {
				ids = append(ids, c.ID)
			}
			for _, id := range a.policy.CheckTimeouts(ids) {
				a.logger.Info("disconnecting idle client", zap.Int("client_id", id))
				a.transport.Disconnect(id)
			}
		}
	}
}
