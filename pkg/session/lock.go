package session

import (
	"sync"

	"github.com/dougsko/specand/pkg/status"
)

// Acquire blocks until the caller owns the session and returns the gateway
// for the critical section. Release must be called exactly once; use Do
// where the call fits a closure.
func (s *Session) Acquire() (*Gateway, error) {
	s.mutex.Lock()
	if s.closed.Load() {
		s.mutex.Unlock()
		return nil, status.InvalidSession("session " + s.name + " is closed")
	}
	return &Gateway{s: s, table: s.table.Load()}, nil
}

// Do runs fn while holding the session lock. The lock is released on every
// exit path; steps already applied by fn are not undone when it fails.
func (s *Session) Do(fn func(g *Gateway) error) error {
	g, err := s.Acquire()
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g)
}

// Release gives up the session lock. Extra calls are no-ops.
func (g *Gateway) Release() {
	g.once.Do(func() {
		g.released = true
		g.s.mutex.Unlock()
	})
}

// Released reports whether Release was called
func (g *Gateway) Released() bool {
	return g.released
}

func (g *Gateway) check() error {
	if g.released {
		return status.InvalidSession("gateway used after release")
	}
	return nil
}

// lockState is embedded in Gateway
type lockState struct {
	once     sync.Once
	released bool
}
