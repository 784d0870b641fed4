// Package transport carries SCPI text and IEEE-488.2 blocks between the
// driver and an instrument.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/specand/pkg/verbose"
)

// DefaultTimeout bounds a single write or read
const DefaultTimeout = 5 * time.Second

// ErrClosed indicates I/O on a closed transport
var ErrClosed = errors.New("transport closed")

// Transport is the injected I/O capability of a session
type Transport interface {
	// Write sends one command line
	Write(cmd []byte) error
	// Query sends a command and reads one response (line or block)
	Query(cmd []byte) ([]byte, error)
	// ReadBlock reads one definite-length block response and returns its payload
	ReadBlock() ([]byte, error)
	SetTimeout(d time.Duration)
	Timeout() time.Duration
	Close() error
}

// stream implements Transport over a byte stream. deadline is nil for
// links that cannot time out individual operations.
type stream struct {
	name     string
	rw       io.ReadWriteCloser
	r        *bufio.Reader
	deadline func(time.Time) error

	mutex   sync.Mutex
	timeout time.Duration
	closed  bool
}

func newStream(name string, rw io.ReadWriteCloser, deadline func(time.Time) error, timeout time.Duration) *stream {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &stream{
		name:     name,
		rw:       rw,
		r:        bufio.NewReader(rw),
		deadline: deadline,
		timeout:  timeout,
	}
}

func (s *stream) arm() {
	if s.deadline != nil {
		s.deadline(time.Now().Add(s.timeout))
	}
}

func (s *stream) disarm() {
	if s.deadline != nil {
		s.deadline(time.Time{})
	}
}

// Write sends cmd terminated by a newline
func (s *stream) Write(cmd []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writeLocked(cmd)
}

func (s *stream) writeLocked(cmd []byte) error {
	if s.closed {
		return ErrClosed
	}

	verbose.Printf("%s >> %s", s.name, cmd)

	s.arm()
	defer s.disarm()

	line := make([]byte, 0, len(cmd)+1)
	line = append(line, cmd...)
	line = append(line, '\n')
	if _, err := s.rw.Write(line); err != nil {
		return fmt.Errorf("write to %s: %w", s.name, err)
	}
	return nil
}

// Query writes cmd and reads the response
func (s *stream) Query(cmd []byte) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.writeLocked(cmd); err != nil {
		return nil, err
	}
	return s.readLocked()
}

// ReadBlock reads a block response and returns its payload
func (s *stream) ReadBlock() ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	return ParseBlock(data)
}

func (s *stream) readLocked() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}

	s.arm()
	defer s.disarm()

	data, err := readResponse(s.r)
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", s.name, err)
	}

	if IsBlock(data) {
		verbose.Printf("%s << <block %d bytes>", s.name, len(data))
	} else {
		verbose.Printf("%s << %s", s.name, data)
	}
	return data, nil
}

// SetTimeout sets the per-operation timeout
func (s *stream) SetTimeout(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if d > 0 {
		s.timeout = d
	}
}

// Timeout returns the per-operation timeout
func (s *stream) Timeout() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.timeout
}

// Close closes the underlying link
func (s *stream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rw.Close()
}

// readResponse reads one response: a definite-length block (header and
// payload, terminator consumed) or a newline-terminated line (terminator
// stripped)
func readResponse(r *bufio.Reader) ([]byte, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}

	if first[0] != '#' {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	head, err := r.Peek(2)
	if err != nil {
		return nil, err
	}
	digits := int(head[1] - '0')
	if digits < 1 || digits > 9 {
		// indefinite-length blocks run to the terminator
		line, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		return line, nil
	}

	header, err := r.Peek(2 + digits)
	if err != nil {
		return nil, err
	}
	length, err := parseBlockLength(header[2:])
	if err != nil {
		return nil, err
	}

	block := make([]byte, 2+digits+length)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}

	// the terminator may arrive in a later segment; wait for it under the
	// caller's deadline. A link that never sends one ends with an error here
	// which is not the block's fault.
	next, err := r.Peek(1)
	if err != nil {
		return block, nil
	}
	switch next[0] {
	case '\n':
		r.ReadByte()
	case '\r':
		if pair, _ := r.Peek(2); len(pair) == 2 && pair[1] == '\n' {
			r.Discard(2)
		}
	}
	return block, nil
}
