package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/logging"
	"github.com/dougsko/specand/pkg/status"
	"github.com/dougsko/specand/pkg/transport"
)

// InstrumentConfig names one instrument the manager opens
type InstrumentConfig struct {
	Name       string
	Resource   string
	Timeout    time.Duration
	OPCTimeout time.Duration
	BaudRate   int
	Reset      bool
}

// Info summarizes an open session
type Info struct {
	Name     string   `json:"name"`
	Handle   string   `json:"handle"`
	Resource string   `json:"resource"`
	Model    string   `json:"model"`
	Family   string   `json:"family"`
	Serial   string   `json:"serial"`
	Firmware string   `json:"firmware"`
	Options  []string `json:"options"`
	Binary   bool     `json:"binary_transfer"`
}

// Dialer opens a transport for a resource string
type Dialer func(resource string, opts transport.Options) (transport.Transport, error)

// Manager owns the named sessions of the daemon
type Manager struct {
	mutex     sync.RWMutex
	sessions  map[string]*Session
	resources map[string]string
	table     *attribute.Table
	observer  Observer
	dial      Dialer
}

// NewManager creates a manager. A nil table selects the built-in catalog.
func NewManager(table *attribute.Table, observer Observer) *Manager {
	if table == nil {
		table = attribute.Default()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		resources: make(map[string]string),
		table:     table,
		observer:  observer,
		dial:      transport.Open,
	}
}

// SetDialer replaces the transport factory
func (m *Manager) SetDialer(d Dialer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dial = d
}

// Open opens and registers one instrument
func (m *Manager) Open(cfg InstrumentConfig) (*Session, error) {
	m.mutex.RLock()
	_, exists := m.sessions[cfg.Name]
	dial, table := m.dial, m.table
	m.mutex.RUnlock()

	if cfg.Name == "" {
		return nil, fmt.Errorf("instrument without name")
	}
	if exists {
		return nil, fmt.Errorf("instrument %s already open", cfg.Name)
	}

	logging.Infof("session", "Opening %s on %s", cfg.Name, cfg.Resource)

	tr, err := dial(cfg.Resource, transport.Options{Timeout: cfg.Timeout, BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Name, status.Transport("open "+cfg.Resource, err))
	}

	s, err := Open(cfg.Name, tr, table, Options{
		OPCTimeout: cfg.OPCTimeout,
		Reset:      cfg.Reset,
		Observer:   m.observer,
	})
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.sessions[cfg.Name]; exists {
		s.Close()
		return nil, fmt.Errorf("instrument %s already open", cfg.Name)
	}
	m.sessions[cfg.Name] = s
	m.resources[cfg.Name] = cfg.Resource

	caps := s.Capabilities()
	logging.Info("session", "Instrument ready", map[string]interface{}{
		"name":     cfg.Name,
		"model":    caps.Model,
		"firmware": caps.FirmwareText,
		"options":  caps.Options(),
	})
	return s, nil
}

// OpenAll opens instruments concurrently. If any fails, the ones opened by
// this call are closed again and the first error is returned.
func (m *Manager) OpenAll(ctx context.Context, instruments []InstrumentConfig) error {
	g, ctx := errgroup.WithContext(ctx)

	var mutex sync.Mutex
	var opened []string

	for _, cfg := range instruments {
		cfg := cfg
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := m.Open(cfg); err != nil {
				return err
			}
			mutex.Lock()
			opened = append(opened, cfg.Name)
			mutex.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, name := range opened {
			if cerr := m.Remove(name); cerr != nil {
				logging.Warnf("session", "Failed to close %s: %v", name, cerr)
			}
		}
		return err
	}
	return nil
}

// Get returns a session by name
func (m *Manager) Get(name string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, ok := m.sessions[name]
	if !ok {
		return nil, status.InvalidSession("unknown instrument " + name)
	}
	return s, nil
}

// List returns the open sessions sorted by name
func (m *Manager) List() []Info {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for name, s := range m.sessions {
		caps := s.Capabilities()
		infos = append(infos, Info{
			Name:     name,
			Handle:   s.ID().String(),
			Resource: m.resources[name],
			Model:    caps.Model,
			Family:   caps.Family,
			Serial:   caps.Serial,
			Firmware: caps.FirmwareText,
			Options:  caps.Options(),
			Binary:   caps.BinaryTransfer(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Table returns the current attribute table
func (m *Manager) Table() *attribute.Table {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.table
}

// SetTable swaps the attribute table of the manager and every session
func (m *Manager) SetTable(t *attribute.Table) {
	if t == nil {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.table = t
	for _, s := range m.sessions {
		s.SetTable(t)
	}
}

// Remove closes and forgets one session
func (m *Manager) Remove(name string) error {
	m.mutex.Lock()
	s, ok := m.sessions[name]
	delete(m.sessions, name)
	delete(m.resources, name)
	m.mutex.Unlock()

	if !ok {
		return status.InvalidSession("unknown instrument " + name)
	}
	return s.Close()
}

// Close closes every session and reports all failures
func (m *Manager) Close() error {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.resources = make(map[string]string)
	m.mutex.Unlock()

	var err error
	for name, s := range sessions {
		logging.Infof("session", "Closing %s", name)
		err = multierr.Append(err, s.Close())
	}
	return err
}
