package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/maintainer"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// ErrUnknownTarget is returned for a target that is not connected.
var ErrUnknownTarget = fmt.Errorf("%w: unknown target", model.ErrValidation)

// Sessions hands out one Maintainer per connected target. The feature
// matrix is detected on first use and the settings are reloaded on every
// call; calls on the same target are serialized because a Maintainer is
// single-threaded.
type Sessions struct {
	registry *connector.Registry
	store    *tracking.Store
	lock     maintainer.LockConfig
	logger   *slog.Logger
	clock    func() time.Time

	mu      sync.Mutex
	entries map[string]*session
}

type session struct {
	mu sync.Mutex
	m  *maintainer.Maintainer
}

// NewSessions returns a Sessions over the connected targets of registry.
func NewSessions(registry *connector.Registry, store *tracking.Store, lock maintainer.LockConfig, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		registry: registry,
		store:    store,
		lock:     lock,
		logger:   logger,
		clock:    time.Now,
		entries:  make(map[string]*session),
	}
}

// Targets lists the connected target names in sorted order.
func (s *Sessions) Targets() []string { return s.registry.ListTargets() }

// Ping checks every connected target and returns the outcome by name.
func (s *Sessions) Ping(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for _, name := range s.registry.ListTargets() {
		conn, err := s.registry.Get(name)
		if err == nil {
			err = conn.Ping(ctx)
		}
		out[name] = err
	}
	return out
}

// With runs fn with the Maintainer of target, holding the target's session
// lock for the duration of the call.
func (s *Sessions) With(ctx context.Context, target string, fn func(*maintainer.Maintainer) error) error {
	conn, err := s.registry.Get(target)
	if err != nil {
		return fmt.Errorf("%w %q", ErrUnknownTarget, target)
	}

	s.mu.Lock()
	e, ok := s.entries[target]
	if !ok {
		e = &session{}
		s.entries[target] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m == nil {
		m, err := maintainer.Load(ctx, conn, s.store, s.logger.With("target", target), s.clock)
		if err != nil {
			return err
		}
		m.SetLock(s.lock)
		e.m = m
	} else if err := e.m.ReloadSettings(ctx); err != nil {
		return err
	}
	return fn(e.m)
}

// Reset drops the cached session of target so the next call detects the
// feature matrix again.
func (s *Sessions) Reset(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, target)
}
