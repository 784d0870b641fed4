package transport

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrTimeout is returned by the mock when a read has nothing to deliver
var ErrTimeout = errors.New("timeout waiting for response")

// DefaultMockFirmware is reported by a mock whose model names no firmware
const DefaultMockFirmware = "4.10"

type deviceError struct {
	code    int
	message string
}

func (e deviceError) String() string {
	return fmt.Sprintf("%d,\"%s\"", e.code, e.message)
}

// Mock simulates an R&S analyzer for tests and the MOCK:: resource. It
// keeps a settings table, an error queue and the status byte, and answers
// the IEEE-488.2 common queries.
type Mock struct {
	mutex sync.Mutex

	model    string
	serial   string
	firmware string
	options  []string

	settings map[string]string
	replies  map[string][]byte
	floats   map[string][]float64
	rejects  map[string]deviceError

	errQueue   []deviceError
	pending    [][]byte
	rejectNext *deviceError
	failNext   error

	commands []string
	timeout  time.Duration
	closed   bool
}

// NewMock creates a simulated analyzer. model may carry a firmware version
// as "FSW/2.30".
func NewMock(model string, options ...string) *Mock {
	firmware := DefaultMockFirmware
	if i := strings.Index(model, "/"); i >= 0 {
		model, firmware = model[:i], model[i+1:]
	}
	if model == "" {
		model = "FSW"
	}

	m := &Mock{
		model:    model,
		serial:   "100001",
		firmware: firmware,
		replies:  make(map[string][]byte),
		floats:   make(map[string][]float64),
		rejects:  make(map[string]deviceError),
		timeout:  DefaultTimeout,
	}
	for _, opt := range options {
		if opt = strings.ToUpper(strings.TrimSpace(opt)); opt != "" {
			m.options = append(m.options, opt)
		}
	}
	m.reset()
	return m
}

func (m *Mock) reset() {
	m.settings = map[string]string{
		"FORM":      "ASC",
		"FORM:BORD": "NORM",
	}
}

// Write executes a command; query parts queue their answers for ReadBlock
func (m *Mock) Write(cmd []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.begin(cmd); err != nil {
		return err
	}
	if replies := m.process(string(cmd)); len(replies) > 0 {
		m.pending = append(m.pending, joinReplies(replies))
	}
	return nil
}

// Query executes a command and returns the answer of its query parts
func (m *Mock) Query(cmd []byte) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.begin(cmd); err != nil {
		return nil, err
	}
	replies := m.process(string(cmd))
	if len(replies) == 0 {
		return nil, ErrTimeout
	}
	return joinReplies(replies), nil
}

// ReadBlock returns the payload of the oldest queued block answer
func (m *Mock) ReadBlock() ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if len(m.pending) == 0 {
		return nil, ErrTimeout
	}
	data := m.pending[0]
	m.pending = m.pending[1:]
	return ParseBlock(data)
}

func (m *Mock) begin(cmd []byte) error {
	if m.closed {
		return ErrClosed
	}
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.commands = append(m.commands, string(cmd))
	return nil
}

// SetTimeout records the timeout; the mock never blocks
func (m *Mock) SetTimeout(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if d > 0 {
		m.timeout = d
	}
}

// Timeout returns the recorded timeout
func (m *Mock) Timeout() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.timeout
}

// Close marks the mock closed
func (m *Mock) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *Mock) Closed() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.closed
}

// SetReply installs a canned answer for a query, matched on the full query
// text (arguments included) or on its header
func (m *Mock) SetReply(query string, reply []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.replies[normalize(query)] = append([]byte(nil), reply...)
}

// SetFloats installs a numeric array answer, rendered as REAL,32 block or
// ASCII list according to the FORM setting at query time
func (m *Mock) SetFloats(query string, values []float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.floats[normalize(query)] = append([]float64(nil), values...)
}

// SetSetting stores a setting as if it had been written
func (m *Mock) SetSetting(header, value string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.settings[normalize(header)] = normalizeValue(value)
}

// Setting returns the stored value of a header
func (m *Mock) Setting(header string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	v, ok := m.settings[normalize(header)]
	return v, ok
}

// Reject makes every command whose header starts with prefix push an error
// into the queue instead of executing
func (m *Mock) Reject(prefix string, code int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejects[normalize(prefix)] = deviceError{code: code, message: message}
}

// RejectNext rejects the next command part
func (m *Mock) RejectNext(code int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejectNext = &deviceError{code: code, message: message}
}

// PushError appends an entry to the error queue
func (m *Mock) PushError(code int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.errQueue = append(m.errQueue, deviceError{code: code, message: message})
}

// FailNext makes the next Write or Query return err without reaching the
// instrument
func (m *Mock) FailNext(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failNext = err
}

// Commands returns every command line received, in order
func (m *Mock) Commands() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.commands...)
}

// CommandsMatching returns the received lines that start with prefix
func (m *Mock) CommandsMatching(prefix string) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var out []string
	for _, c := range m.commands {
		if strings.HasPrefix(strings.ToUpper(c), strings.ToUpper(prefix)) {
			out = append(out, c)
		}
	}
	return out
}

// ClearCommands forgets the command log
func (m *Mock) ClearCommands() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.commands = nil
}

// ErrorCount returns the length of the error queue
func (m *Mock) ErrorCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.errQueue)
}

func (m *Mock) process(cmd string) [][]byte {
	var replies [][]byte
	for _, part := range splitCompound(cmd) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		header, arg := part, ""
		if i := strings.IndexAny(part, " \t"); i >= 0 {
			header, arg = part[:i], strings.TrimSpace(part[i+1:])
		}
		query := strings.HasSuffix(header, "?")
		key := normalize(strings.TrimSuffix(header, "?"))

		if m.rejectNext != nil {
			m.errQueue = append(m.errQueue, *m.rejectNext)
			m.rejectNext = nil
			if query {
				// answer empty so the caller reaches the status check
				replies = append(replies, nil)
			}
			continue
		}
		if e, ok := m.rejected(key); ok {
			m.errQueue = append(m.errQueue, e)
			if query {
				replies = append(replies, nil)
			}
			continue
		}

		if query {
			replies = append(replies, m.answer(key, normalize(part)))
			continue
		}

		switch key {
		case "*CLS":
			m.errQueue = nil
		case "*RST":
			m.reset()
		default:
			if arg != "" {
				m.settings[key] = normalizeValue(arg)
			}
		}
	}
	return replies
}

func (m *Mock) rejected(key string) (deviceError, bool) {
	// longest prefix wins so rules can be stacked
	var prefixes []string
	for p := range m.rejects {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return m.rejects[p], true
		}
	}
	return deviceError{}, false
}

func (m *Mock) answer(key, full string) []byte {
	if r, ok := m.replies[full]; ok {
		return r
	}
	if r, ok := m.replies[key]; ok {
		return r
	}

	switch key {
	case "*IDN":
		return []byte(fmt.Sprintf("Rohde&Schwarz,%s,%s,%s", m.model, m.serial, m.firmware))
	case "*OPT":
		if len(m.options) == 0 {
			return []byte("0")
		}
		return []byte(strings.Join(m.options, ","))
	case "*STB":
		if len(m.errQueue) > 0 {
			return []byte("4")
		}
		return []byte("0")
	case "*ESR":
		return []byte("0")
	case "*OPC":
		return []byte("1")
	case "SYST:ERR", "SYST:ERR:NEXT":
		if len(m.errQueue) == 0 {
			return []byte(`0,"No error"`)
		}
		e := m.errQueue[0]
		m.errQueue = m.errQueue[1:]
		return []byte(e.String())
	}

	if values, ok := m.floats[full]; ok {
		return m.renderFloats(values)
	}
	if values, ok := m.floats[key]; ok {
		return m.renderFloats(values)
	}
	if v, ok := m.settings[key]; ok {
		return []byte(v)
	}

	m.errQueue = append(m.errQueue, deviceError{code: -113, message: "Undefined header"})
	return nil
}

func (m *Mock) renderFloats(values []float64) []byte {
	if strings.HasPrefix(m.settings["FORM"], "REAL") {
		return EncodeBlock(EncodeReal32(values))
	}
	text := make([]string, len(values))
	for i, v := range values {
		text[i] = strconv.FormatFloat(v, 'G', -1, 32)
	}
	return []byte(strings.Join(text, ","))
}

func joinReplies(replies [][]byte) []byte {
	if len(replies) == 1 {
		return replies[0]
	}
	var out []byte
	for i, r := range replies {
		if i > 0 {
			out = append(out, ';')
		}
		out = append(out, r...)
	}
	return out
}

// splitCompound splits a ';' compound command outside quoted strings and
// blocks
func splitCompound(cmd string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			// skip a definite-length block argument
			if header, length, err := blockHeader([]byte(cmd[i:])); err == nil && header > 2 {
				i += header + length - 1
			}
		case c == ';':
			parts = append(parts, cmd[start:i])
			start = i + 1
		}
	}
	return append(parts, cmd[start:])
}

func normalize(header string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(header), ":"))
}

func normalizeValue(v string) string {
	switch strings.ToUpper(v) {
	case "ON":
		return "1"
	case "OFF":
		return "0"
	}
	return v
}
