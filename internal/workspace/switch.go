// ABOUTME: Serialized workspace switching with migration-before-publish semantics
// ABOUTME: Stops dependents, swaps the storage handle, and notifies reset hooks

package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcpr/mcpr-gateway/internal/migrate"
	"github.com/mcpr/mcpr-gateway/internal/store"
)

// ServerStopper is anything that must be halted before the storage handle
// underneath it goes away. The process supervisor for local tool servers
// implements this.
type ServerStopper interface {
	StopAll(ctx context.Context) error
}

// Switcher owns the active storage handle and serializes workspace changes.
//
// A switch proceeds in a fixed order: stop dependents, close the old handle,
// open the new database, migrate it if it is the main workspace, publish the
// new handle, then fire reset hooks. Migrations run before publishing so a
// workspace whose migration fails never becomes current; the switcher is
// left with no active handle and the caller decides how to recover.
type Switcher struct {
	mu       sync.Mutex
	registry *Registry
	engine   *migrate.Engine
	stopper  ServerStopper
	onReset  []func()
	logger   *slog.Logger

	current   *store.DB
	currentWS Workspace
	hasActive bool
}

// NewSwitcher creates a switcher over the given registry. stopper may be nil
// when no process supervisor exists yet.
func NewSwitcher(registry *Registry, engine *migrate.Engine, stopper ServerStopper) *Switcher {
	return &Switcher{
		registry: registry,
		engine:   engine,
		stopper:  stopper,
		logger:   slog.Default().With("component", "workspace"),
	}
}

// OnReset registers a hook fired after every successful switch. Hooks run
// while the switch lock is held; dependents use them to drop state bound to
// the previous workspace, such as open client sessions.
func (s *Switcher) OnReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = append(s.onReset, fn)
}

// SwitchTo makes the named workspace active. Concurrent calls are serialized;
// each caller observes a fully completed or fully failed switch.
func (s *Switcher) SwitchTo(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.registry.Get(id)
	if err != nil {
		return err
	}

	s.logger.Info("switching workspace", "id", ws.ID, "kind", ws.Kind)

	if s.stopper != nil {
		if err := s.stopper.StopAll(ctx); err != nil {
			return fmt.Errorf("stopping servers before switch: %w", err)
		}
	}

	if s.current != nil {
		if err := s.current.Close(); err != nil {
			s.logger.Warn("closing previous workspace database", "error", err)
		}
		s.current = nil
		s.hasActive = false
	}

	if ws.Kind == KindRemote {
		// Remote workspaces carry no local handle; requests proxy to the
		// remote API instead.
		s.currentWS = ws
		s.hasActive = true
		s.afterSwitch(ws)
		return nil
	}

	db, err := store.Open(ws.Local.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening workspace %s: %w", ws.ID, err)
	}

	if ws.IsMain() {
		if err := s.engine.Run(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("migrating workspace %s: %w", ws.ID, err)
		}
	}

	s.current = db
	s.currentWS = ws
	s.hasActive = true
	s.afterSwitch(ws)
	return nil
}

// afterSwitch persists the active id and fires reset hooks. Called with the
// lock held, after the new workspace is published.
func (s *Switcher) afterSwitch(ws Workspace) {
	if err := s.registry.SetActive(ws.ID); err == nil {
		if err := s.registry.Save(); err != nil {
			s.logger.Warn("persisting active workspace", "error", err)
		}
	}
	for _, fn := range s.onReset {
		fn()
	}
	s.logger.Info("workspace active", "id", ws.ID)
}

// Current returns the active storage handle, or an error when no local
// workspace is active.
func (s *Switcher) Current() (*store.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasActive {
		return nil, fmt.Errorf("no active workspace")
	}
	if s.current == nil {
		return nil, fmt.Errorf("workspace %s is remote and has no local storage", s.currentWS.ID)
	}
	return s.current, nil
}

// CurrentWorkspace returns the active workspace definition.
func (s *Switcher) CurrentWorkspace() (Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasActive {
		return Workspace{}, fmt.Errorf("no active workspace")
	}
	return s.currentWS, nil
}

// IsRemote reports whether the active workspace proxies to a remote API.
func (s *Switcher) IsRemote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasActive && s.currentWS.Kind == KindRemote
}

// Close releases the active handle, if any.
func (s *Switcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasActive = false
	if s.current == nil {
		return nil
	}
	db := s.current
	s.current = nil
	return db.Close()
}
