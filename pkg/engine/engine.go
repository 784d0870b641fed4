package engine

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/config"
	"github.com/dougsko/specand/pkg/dsp"
	"github.com/dougsko/specand/pkg/logging"
	"github.com/dougsko/specand/pkg/measure"
	"github.com/dougsko/specand/pkg/protocol"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/status"
	"github.com/dougsko/specand/pkg/storage"
	"github.com/dougsko/specand/pkg/trace"
)

// Version is reported by STATUS
const Version = "0.1.0-dev"

// Defaults for optional command arguments
const (
	DefaultJournalLimit = 50
	DefaultIQCapacity   = 16384
	reloadSilence       = 100 * time.Millisecond
)

// CoreEngine serves the line protocol on a unix socket and owns the
// instrument sessions
type CoreEngine struct {
	config     *config.Config
	socketPath string
	listener   net.Listener
	running    bool
	mutex      sync.RWMutex
	startTime  time.Time
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	manager *session.Manager
	journal *storage.Journal
	pool    *trace.Pool

	calls      atomic.Int64
	failures   atomic.Int64
	reloads    atomic.Int64
	lastReload atomic.Pointer[time.Time]
}

// NewCoreEngine creates a core engine. Sessions, journal and socket are
// opened by Start.
func NewCoreEngine(cfg *config.Config, socketPath string) *CoreEngine {
	e := &CoreEngine{
		config:     cfg,
		socketPath: socketPath,
		startTime:  time.Now(),
		pool:       trace.NewPool(),
	}
	e.manager = session.NewManager(nil, session.ObserverFunc(e.observe))
	return e
}

// Manager returns the session manager
func (e *CoreEngine) Manager() *session.Manager {
	return e.manager
}

// Start loads the attribute table, opens the journal and every configured
// instrument, then listens on the unix socket
func (e *CoreEngine) Start(ctx context.Context) error {
	table, err := attribute.Load(e.config.Attributes.TableFile)
	if err != nil {
		return fmt.Errorf("failed to load attribute table: %w", err)
	}
	e.manager.SetTable(table)
	logging.Infof("engine", "Attribute table ready: %d attributes", table.Len())

	if path := e.config.Storage.DatabasePath; path != "" {
		journal, err := storage.NewJournal(path, e.config.Storage.MaxEntries, e.config.Storage.MaxTraces)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		e.mutex.Lock()
		e.journal = journal
		e.mutex.Unlock()
	}

	instruments := make([]session.InstrumentConfig, 0, len(e.config.Instruments))
	for _, inst := range e.config.Instruments {
		instruments = append(instruments, session.InstrumentConfig{
			Name:       inst.Name,
			Resource:   inst.Resource,
			Timeout:    inst.Timeout,
			OPCTimeout: inst.OPCTimeout,
			BaudRate:   inst.BaudRate,
			Reset:      inst.Reset,
		})
	}
	if err := e.manager.OpenAll(ctx, instruments); err != nil {
		e.closeJournal()
		return fmt.Errorf("failed to open instruments: %w", err)
	}

	// Remove existing socket file
	os.Remove(e.socketPath)

	listener, err := net.Listen("unix", e.socketPath)
	if err != nil {
		e.manager.Close()
		e.closeJournal()
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	// Set socket permissions (readable/writable by owner and group)
	if err := os.Chmod(e.socketPath, 0660); err != nil {
		logging.Warnf("engine", "Failed to set socket permissions: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mutex.Lock()
	e.listener = listener
	e.running = true
	e.cancel = cancel
	e.mutex.Unlock()

	logging.Infof("engine", "Core engine listening on %s", e.socketPath)

	if e.config.Attributes.Watch && e.config.Attributes.TableFile != "" {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.watchTable(runCtx, e.config.Attributes.TableFile)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.acceptConnections()
	}()

	return nil
}

// Stop closes the socket, the sessions and the journal
func (e *CoreEngine) Stop() error {
	e.mutex.Lock()
	if !e.running {
		e.mutex.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	listener := e.listener
	e.mutex.Unlock()

	listener.Close()
	e.wg.Wait()

	err := e.manager.Close()
	if err != nil {
		logging.Warnf("engine", "Errors closing sessions: %v", err)
	}
	e.closeJournal()

	// Clean up socket file
	os.Remove(e.socketPath)

	logging.Info("engine", "Core engine stopped")
	return err
}

func (e *CoreEngine) closeJournal() {
	e.mutex.Lock()
	journal := e.journal
	e.journal = nil
	e.mutex.Unlock()

	if journal != nil {
		if err := journal.Close(); err != nil {
			logging.Warnf("engine", "Failed to close journal: %v", err)
		}
	}
}

// isRunning checks if the engine is running
func (e *CoreEngine) isRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

func (e *CoreEngine) getJournal() *storage.Journal {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.journal
}

// observe counts gateway calls and forwards them to the journal
func (e *CoreEngine) observe(ev session.Event) {
	e.calls.Add(1)
	if ev.Err != nil {
		e.failures.Add(1)
	}
	if j := e.getJournal(); j != nil {
		j.Observe(ev)
	}
}

// acceptConnections accepts and handles socket connections
func (e *CoreEngine) acceptConnections() {
	var conns sync.WaitGroup
	defer conns.Wait()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if !e.isRunning() {
				return
			}
			logging.Warnf("engine", "Socket accept error: %v", err)
			continue
		}

		conns.Add(1)
		go func() {
			defer conns.Done()
			e.handleConnection(conn)
		}()
	}
}

// handleConnection handles a single socket connection
func (e *CoreEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	// closing the listener does not end open connections
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !e.isRunning() {
					conn.Close()
					return
				}
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Errorf("parse error: %w", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		response := e.handleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		// Close connection after QUIT command
		if cmd.Type == protocol.CmdQuit {
			break
		}
	}
}

// handleCommand processes a single command
func (e *CoreEngine) handleCommand(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdStatus:
		return e.handleStatus()

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	case protocol.CmdSessions:
		sessions := e.manager.List()
		return protocol.NewSuccessResponse(map[string]interface{}{
			"sessions": sessions,
			"count":    len(sessions),
		})

	case protocol.CmdSet:
		return e.handleSet(cmd)

	case protocol.CmdGet:
		return e.handleGet(cmd)

	case protocol.CmdWrite:
		return e.handleWrite(cmd)

	case protocol.CmdQuery:
		return e.handleQuery(cmd)

	case protocol.CmdTrace:
		return e.handleTrace(cmd)

	case protocol.CmdSpectrum:
		return e.handleSpectrum(cmd)

	case protocol.CmdTimeout:
		return e.handleTimeout(cmd)

	case protocol.CmdJournal:
		return e.handleJournal(cmd)

	case protocol.CmdTraces:
		return e.handleTraces(cmd)

	case protocol.CmdReload:
		n, err := e.ReloadTable()
		if err != nil {
			return protocol.NewErrorResponse(err)
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"attributes": n,
		})

	default:
		return protocol.NewErrorResponse(fmt.Errorf("unknown command: %s", cmd.Type))
	}
}

// handleStatus returns current daemon status
func (e *CoreEngine) handleStatus() *protocol.Response {
	data := map[string]interface{}{
		"version":    Version,
		"uptime":     time.Since(e.startTime).Round(time.Second).String(),
		"start_time": e.startTime,
		"sessions":   e.manager.Len(),
		"attributes": e.manager.Table().Len(),
		"calls":      e.calls.Load(),
		"failures":   e.failures.Load(),
		"reloads":    e.reloads.Load(),
		"pool":       e.pool.Stats(),
	}
	if t := e.lastReload.Load(); t != nil {
		data["last_reload"] = *t
	}

	if j := e.getJournal(); j != nil {
		stats, err := j.GetStats()
		if err != nil {
			logging.Warnf("engine", "Failed to read journal stats: %v", err)
		} else {
			data["journal"] = stats
		}
	}

	return protocol.NewSuccessResponse(data)
}

// lookupAttribute resolves the value kind of an attribute id for text
// conversion
func (e *CoreEngine) lookupAttribute(s *session.Session, id string) (attribute.Attribute, error) {
	a, ok := s.Table().Lookup(id)
	if !ok {
		return attribute.Attribute{}, status.InvalidParameter("unknown attribute %q", id)
	}
	return a, nil
}

func (e *CoreEngine) handleSet(cmd *protocol.Command) *protocol.Response {
	s, err := e.manager.Get(cmd.Arg("instrument"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	sel, err := selector.Parse(cmd.Arg("selector"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	a, err := e.lookupAttribute(s, cmd.Arg("attribute"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	value, err := attribute.FromText(a.Kind, cmd.Arg("value"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	err = s.Do(func(g *session.Gateway) error {
		return g.SetAttribute(sel, a.ID, value)
	})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"instrument": s.Name(),
		"attribute":  a.ID,
		"selector":   sel.String(),
		"value":      value.Interface(),
	})
}

func (e *CoreEngine) handleGet(cmd *protocol.Command) *protocol.Response {
	s, err := e.manager.Get(cmd.Arg("instrument"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	sel, err := selector.Parse(cmd.Arg("selector"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	var value attribute.Value
	err = s.Do(func(g *session.Gateway) error {
		var err error
		value, err = g.GetAttribute(sel, cmd.Arg("attribute"))
		return err
	})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"instrument": s.Name(),
		"attribute":  cmd.Arg("attribute"),
		"selector":   sel.String(),
		"kind":       value.Kind().String(),
		"value":      value.Interface(),
	})
}

func (e *CoreEngine) handleWrite(cmd *protocol.Command) *protocol.Response {
	s, err := e.manager.Get(cmd.Arg("instrument"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	err = s.Do(func(g *session.Gateway) error {
		return g.WriteRaw(cmd.Arg("command"))
	})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"instrument": s.Name(),
		"status":     "ok",
	})
}

func (e *CoreEngine) handleQuery(cmd *protocol.Command) *protocol.Response {
	s, err := e.manager.Get(cmd.Arg("instrument"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	var reply string
	err = s.Do(func(g *session.Gateway) error {
		var err error
		reply, err = g.QueryRaw(cmd.Arg("command"))
		return err
	})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"instrument": s.Name(),
		"reply":      reply,
	})
}

// handleTrace reads a float array into a pooled buffer of the requested
// capacity. A label saves the read to the journal.
func (e *CoreEngine) handleTrace(cmd *protocol.Command) *protocol.Response {
	s, err := e.manager.Get(cmd.Arg("instrument"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	capacity, err := cmd.IntArg("capacity", 0)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	if _, err := selector.ValidateRange(capacity, 1, trace.MaxPoints, 2, "Capacity"); err != nil {
		return protocol.NewErrorResponse(err)
	}

	buf := e.pool.Get(capacity)
	defer buf.Release()

	err = s.Do(func(g *session.Gateway) error {
		var err error
		buf.Written, buf.Available, err = g.ReadFloatArray(cmd.Arg("command"), buf.Data)
		return err
	})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	// the buffer goes back to the pool before the response is encoded
	points := append([]float64(nil), buf.Values()...)
	data := map[string]interface{}{
		"instrument": s.Name(),
		"points":     points,
		"written":    buf.Written,
		"available":  buf.Available,
		"truncated":  buf.Truncated(),
	}

	if label := cmd.Arg("label"); label != "" {
		j := e.getJournal()
		if j == nil {
			return protocol.NewErrorResponse(fmt.Errorf("journal disabled, cannot save trace %q", label))
		}
		id, err := j.SaveTrace(storage.Trace{
			Session:   s.Name(),
			Command:   cmd.Arg("command"),
			Label:     label,
			Points:    points,
			Written:   buf.Written,
			Available: buf.Available,
		})
		if err != nil {
			return protocol.NewErrorResponse(fmt.Errorf("failed to save trace: %w", err))
		}
		data["trace_id"] = id
	}

	return protocol.NewSuccessResponse(data)
}

// handleSpectrum reads the captured I/Q record and converts it into a power
// spectrum around the current center frequency
func (e *CoreEngine) handleSpectrum(cmd *protocol.Command) *protocol.Response {
	s, err := e.manager.Get(cmd.Arg("instrument"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	capacity, err := cmd.IntArg("capacity", DefaultIQCapacity)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	size, err := cmd.IntArg("fft_size", dsp.DefaultFFTSize)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	if _, err := selector.ValidateRange(capacity, 1, trace.MaxPoints, 2, "Capacity"); err != nil {
		return protocol.NewErrorResponse(err)
	}
	if _, err := selector.ValidateRange(size, dsp.MinFFTSize, dsp.MaxFFTSize, 3, "FFT Size"); err != nil {
		return protocol.NewErrorResponse(err)
	}

	rate, err := measure.QueryIQSampleRate(s)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	analyzer, err := dsp.NewAnalyzer(rate, size, cmd.Arg("window"))
	if err != nil {
		return protocol.NewErrorResponse(status.InvalidParameter("%v", err))
	}

	var center attribute.Value
	err = s.Do(func(g *session.Gateway) error {
		var err error
		center, err = g.GetAttribute(selector.Empty, attribute.FrequencyCenter)
		return err
	})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	re := e.pool.Get(capacity)
	defer re.Release()
	im := e.pool.Get(capacity)
	defer im.Release()

	written, available, err := measure.ReadIQData(s, re.Data, im.Data)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	spectrum, err := analyzer.Spectrum(re.Data[:written], im.Data[:written], center.Real())
	if err != nil {
		return protocol.NewErrorResponse(status.NoData("%v", err))
	}
	peakFreq, peakLevel := spectrum.Peak()

	return protocol.NewSuccessResponse(map[string]interface{}{
		"instrument":  s.Name(),
		"sample_rate": rate,
		"spectrum":    spectrum,
		"peak": map[string]float64{
			"frequency": peakFreq,
			"level":     peakLevel,
		},
		"written":   written,
		"available": available,
		"truncated": available > written,
	})
}

// handleTimeout reads or, with a millisecond argument, sets the OPC timeout
func (e *CoreEngine) handleTimeout(cmd *protocol.Command) *protocol.Response {
	s, err := e.manager.Get(cmd.Arg("instrument"))
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	var timeout time.Duration
	err = s.Do(func(g *session.Gateway) error {
		if _, ok := cmd.Args["milliseconds"]; ok {
			ms, err := cmd.IntArg("milliseconds", 0)
			if err != nil {
				return status.InvalidParameter("%v", err)
			}
			if err := g.SetOPCTimeout(time.Duration(ms) * time.Millisecond); err != nil {
				return err
			}
		}
		timeout = g.OPCTimeout()
		return nil
	})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"instrument":   s.Name(),
		"milliseconds": timeout.Milliseconds(),
	})
}

func (e *CoreEngine) handleJournal(cmd *protocol.Command) *protocol.Response {
	j := e.getJournal()
	if j == nil {
		return protocol.NewErrorResponse(fmt.Errorf("journal disabled"))
	}
	limit, err := cmd.IntArg("limit", DefaultJournalLimit)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	calls, err := j.GetCalls(storage.CallQuery{Limit: limit, Session: cmd.Arg("instrument")})
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"calls": calls,
		"count": len(calls),
	})
}

func (e *CoreEngine) handleTraces(cmd *protocol.Command) *protocol.Response {
	j := e.getJournal()
	if j == nil {
		return protocol.NewErrorResponse(fmt.Errorf("journal disabled"))
	}
	limit, err := cmd.IntArg("limit", DefaultJournalLimit)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}

	traces, err := j.ListTraces(cmd.Arg("instrument"), limit)
	if err != nil {
		return protocol.NewErrorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"traces": traces,
		"count":  len(traces),
	})
}

// ReloadTable reloads the attribute overrides and swaps the table of every
// session. A broken file leaves the current table in place.
func (e *CoreEngine) ReloadTable() (int, error) {
	table, err := attribute.Load(e.config.Attributes.TableFile)
	if err != nil {
		return 0, fmt.Errorf("failed to reload attribute table: %w", err)
	}
	e.manager.SetTable(table)

	now := time.Now()
	e.lastReload.Store(&now)
	e.reloads.Add(1)
	logging.Infof("engine", "Attribute table reloaded: %d attributes", table.Len())
	return table.Len(), nil
}

// watchTable reloads the attribute table whenever its file changes. The
// directory is watched so editors that replace the file are seen too.
func (e *CoreEngine) watchTable(ctx context.Context, path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Errorf("engine", "Unable to start fs watcher: %v", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logging.Errorf("engine", "Unable to watch %s: %v", dir, err)
		return
	}
	name := filepath.Clean(path)
	logging.Infof("engine", "Watching %s for attribute changes", name)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}
			drainUntilSilence(watcher, reloadSilence)
			if _, err := e.ReloadTable(); err != nil {
				logging.Warnf("engine", "%v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warnf("engine", "fs watcher: %v", err)
		}
	}
}

// drainUntilSilence reads from w.Events until the channel has been silent
// for silenceDur
func drainUntilSilence(w *fsnotify.Watcher, silenceDur time.Duration) {
	timer := time.NewTimer(silenceDur)
	defer timer.Stop()
	for {
		select {
		case <-w.Events:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(silenceDur)
		case <-timer.C:
			return
		}
	}
}
