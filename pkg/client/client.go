package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dougsko/specand/pkg/dsp"
	"github.com/dougsko/specand/pkg/protocol"
	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/storage"
)

// DefaultTimeout bounds one request/response exchange. Trace and spectrum
// reads of long records may need more.
const DefaultTimeout = 30 * time.Second

// SocketClient represents a client connection to the core engine
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// AttributeValue is the result of GET
type AttributeValue struct {
	Instrument string      `json:"instrument"`
	Attribute  string      `json:"attribute"`
	Selector   string      `json:"selector"`
	Kind       string      `json:"kind"`
	Value      interface{} `json:"value"`
}

// TraceResult is the result of TRACE
type TraceResult struct {
	Instrument string    `json:"instrument"`
	Points     []float64 `json:"points"`
	Written    int       `json:"written"`
	Available  int       `json:"available"`
	Truncated  bool      `json:"truncated"`
	TraceID    int64     `json:"trace_id,omitempty"`
}

// SpectrumResult is the result of SPECTRUM
type SpectrumResult struct {
	Instrument string       `json:"instrument"`
	SampleRate float64      `json:"sample_rate"`
	Spectrum   dsp.Spectrum `json:"spectrum"`
	Peak       struct {
		Frequency float64 `json:"frequency"`
		Level     float64 `json:"level"`
	} `json:"peak"`
	Written   int  `json:"written"`
	Available int  `json:"available"`
	Truncated bool `json:"truncated"`
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    DefaultTimeout,
	}
}

// SetTimeout changes the exchange timeout
func (c *SocketClient) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SendCommand sends a command line and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err = conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	// float arrays make long lines
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// call sends a structured command and decodes the data of a successful
// response into out. A failed response comes back as its status error.
func (c *SocketClient) call(cmd *protocol.Command, out interface{}) error {
	resp, err := c.SendCommand(cmd.String())
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	// Convert to JSON and back to parse properly
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("failed to encode %s data: %w", cmd.Type, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", cmd.Type, err)
	}
	return nil
}

// GetStatus gets the current daemon status
func (c *SocketClient) GetStatus() (map[string]interface{}, error) {
	resp, err := c.SendCommand(protocol.CmdStatus)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("status error: %w", err)
	}
	return resp.Data, nil
}

// Sessions lists the open instrument sessions
func (c *SocketClient) Sessions() ([]session.Info, error) {
	var out struct {
		Sessions []session.Info `json:"sessions"`
	}
	if err := c.call(protocol.NewCommand(protocol.CmdSessions), &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// SetAttribute writes an attribute from its text form
func (c *SocketClient) SetAttribute(instrument, attr, sel, value string) error {
	return c.call(protocol.NewCommand(protocol.CmdSet, instrument, attr, sel, value), nil)
}

// GetAttribute reads an attribute. An empty selector addresses the
// instrument's current instance.
func (c *SocketClient) GetAttribute(instrument, attr, sel string) (*AttributeValue, error) {
	args := []string{instrument, attr}
	if sel != "" {
		args = append(args, sel)
	}
	var out AttributeValue
	if err := c.call(protocol.NewCommand(protocol.CmdGet, args...), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Write sends a raw SCPI command
func (c *SocketClient) Write(instrument, scpi string) error {
	return c.call(protocol.NewCommand(protocol.CmdWrite, instrument, scpi), nil)
}

// Query sends a raw SCPI query and returns the reply text
func (c *SocketClient) Query(instrument, scpi string) (string, error) {
	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.call(protocol.NewCommand(protocol.CmdQuery, instrument, scpi), &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// ReadTrace reads a float array of at most capacity points. A non-empty
// label saves the read in the daemon journal.
func (c *SocketClient) ReadTrace(instrument, scpi string, capacity int, label string) (*TraceResult, error) {
	args := []string{instrument, strconv.Itoa(capacity), scpi}
	if label != "" {
		args = append(args, label)
	}
	var out TraceResult
	if err := c.call(protocol.NewCommand(protocol.CmdTrace, args...), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Spectrum converts the captured I/Q record into a power spectrum. Zero
// values and an empty window select the daemon defaults.
func (c *SocketClient) Spectrum(instrument string, capacity, fftSize int, window string) (*SpectrumResult, error) {
	args := []string{instrument, "", "", window}
	if capacity > 0 {
		args[1] = strconv.Itoa(capacity)
	}
	if fftSize > 0 {
		args[2] = strconv.Itoa(fftSize)
	}
	var out SpectrumResult
	if err := c.call(protocol.NewCommand(protocol.CmdSpectrum, args...), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Timeout sets the OPC timeout when ms > 0 and returns the current value
func (c *SocketClient) Timeout(instrument string, ms int) (time.Duration, error) {
	args := []string{instrument}
	if ms > 0 {
		args = append(args, strconv.Itoa(ms))
	}
	var out struct {
		Milliseconds int64 `json:"milliseconds"`
	}
	if err := c.call(protocol.NewCommand(protocol.CmdTimeout, args...), &out); err != nil {
		return 0, err
	}
	return time.Duration(out.Milliseconds) * time.Millisecond, nil
}

// Journal returns the newest journaled calls, optionally for one instrument
func (c *SocketClient) Journal(limit int, instrument string) ([]storage.Call, error) {
	var out struct {
		Calls []storage.Call `json:"calls"`
	}
	if err := c.call(protocol.NewCommand(protocol.CmdJournal, strconv.Itoa(limit), instrument), &out); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

// Traces lists saved traces, optionally for one instrument
func (c *SocketClient) Traces(limit int, instrument string) ([]storage.Trace, error) {
	var out struct {
		Traces []storage.Trace `json:"traces"`
	}
	if err := c.call(protocol.NewCommand(protocol.CmdTraces, strconv.Itoa(limit), instrument), &out); err != nil {
		return nil, err
	}
	return out.Traces, nil
}

// Reload asks the daemon to reload its attribute table
func (c *SocketClient) Reload() (int, error) {
	var out struct {
		Attributes int `json:"attributes"`
	}
	if err := c.call(protocol.NewCommand(protocol.CmdReload), &out); err != nil {
		return 0, err
	}
	return out.Attributes, nil
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	resp, err := c.SendCommand(protocol.CmdPing)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("ping error: %w", err)
	}
	return nil
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}
