// Package session owns instrument sessions: the per-session lock, the
// attribute gateway that runs under it, and the capability flags resolved
// when the session opens.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/transport"
)

// DefaultOPCTimeout bounds operations synchronized with *OPC?
const DefaultOPCTimeout = 10 * time.Second

// Options configures Open
type Options struct {
	// OPCTimeout is the initial operation-complete timeout
	OPCTimeout time.Duration

	// Reset sends *RST before configuring the data format
	Reset bool

	// Observer receives one event per gateway call
	Observer Observer
}

// Session is one logical connection to an instrument
type Session struct {
	id        uuid.UUID
	name      string
	transport transport.Transport
	table     atomic.Pointer[attribute.Table]
	observer  Observer
	caps      *Capabilities

	// mutex is the session lock; every field below is guarded by it
	mutex      sync.Mutex
	opcTimeout time.Duration
	closed     atomic.Bool
}

// Open identifies the instrument on tr and prepares it for use. The
// transport is closed if the instrument cannot be identified.
func Open(name string, tr transport.Transport, table *attribute.Table, opts Options) (*Session, error) {
	if table == nil {
		table = attribute.Default()
	}
	if opts.OPCTimeout <= 0 {
		opts.OPCTimeout = DefaultOPCTimeout
	}

	s := &Session{
		id:         uuid.New(),
		name:       name,
		transport:  tr,
		observer:   opts.Observer,
		opcTimeout: opts.OPCTimeout,
	}
	s.table.Store(table)

	err := s.Do(func(g *Gateway) error {
		if err := g.WriteRaw("*CLS"); err != nil {
			return err
		}
		if opts.Reset {
			if err := g.WriteWithOPC("*RST"); err != nil {
				return err
			}
		}

		idn, err := g.QueryRaw("*IDN?")
		if err != nil {
			return err
		}
		opt, err := g.QueryRaw("*OPT?")
		if err != nil {
			return err
		}
		caps, err := ParseCapabilities(idn, opt)
		if err != nil {
			return err
		}
		s.caps = caps

		if caps.BinaryTransfer() {
			return g.WriteRaw("FORM REAL,32;FORM:BORD SWAP")
		}
		return g.WriteRaw("FORM ASC")
	})
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("failed to open session %s: %w", name, err)
	}

	return s, nil
}

// ID returns the session handle
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Name returns the configured instrument name
func (s *Session) Name() string {
	return s.name
}

// Capabilities returns the flags resolved at open
func (s *Session) Capabilities() *Capabilities {
	return s.caps
}

// Table returns the attribute table in use
func (s *Session) Table() *attribute.Table {
	return s.table.Load()
}

// SetTable swaps the attribute table; calls already holding the lock keep
// the table they started with
func (s *Session) SetTable(t *attribute.Table) {
	if t != nil {
		s.table.Store(t)
	}
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close waits for the lock, then closes the transport. Later Acquire calls
// fail with InvalidSession.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed.Load() {
		return nil
	}
	s.closed.Store(true)

	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("failed to close session %s: %w", s.name, err)
	}
	return nil
}
