package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/reply"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/status"
	"github.com/dougsko/specand/pkg/transport"
	"github.com/dougsko/specand/pkg/verbose"
)

const (
	// stbErrorQueue is the status byte bit set while the error queue is not empty
	stbErrorQueue = 0x04

	// maxErrorReads bounds the error queue drain
	maxErrorReads = 32
)

// Gateway applies attribute and raw SCPI operations to the instrument. It is
// only obtainable from Acquire, so every call runs under the session lock.
type Gateway struct {
	lockState
	s     *Session
	table *attribute.Table
}

// Session returns the session the gateway belongs to
func (g *Gateway) Session() *Session {
	return g.s
}

// Capabilities returns the flags resolved at open
func (g *Gateway) Capabilities() *Capabilities {
	return g.s.caps
}

// SetAttribute writes one attribute value for the instance addressed by sel
func (g *Gateway) SetAttribute(sel selector.Selector, id string, value attribute.Value) (err error) {
	start := time.Now()
	var cmd string
	defer func() {
		g.observe(Event{Op: OpSet, Attribute: id, Selector: sel.String(), Command: cmd,
			Value: value.Interface()}, start, err)
	}()

	if err = g.check(); err != nil {
		return err
	}
	a, err := g.lookup(id)
	if err != nil {
		return err
	}
	if err = a.CheckSet(value); err != nil {
		return err
	}
	header, err := a.Header(sel)
	if err != nil {
		return err
	}

	cmd = a.SetCommand(header, value)
	if err = g.write(cmd); err != nil {
		return err
	}
	return g.checkStatus()
}

// GetAttribute queries one attribute value for the instance addressed by sel
func (g *Gateway) GetAttribute(sel selector.Selector, id string) (value attribute.Value, err error) {
	start := time.Now()
	var cmd string
	defer func() {
		g.observe(Event{Op: OpGet, Attribute: id, Selector: sel.String(), Command: cmd,
			Value: value.Interface()}, start, err)
	}()

	if err = g.check(); err != nil {
		return attribute.Value{}, err
	}
	a, err := g.lookup(id)
	if err != nil {
		return attribute.Value{}, err
	}
	if err = a.CheckGet(); err != nil {
		return attribute.Value{}, err
	}
	header, err := a.Header(sel)
	if err != nil {
		return attribute.Value{}, err
	}

	cmd = a.QueryCommand(header)
	data, err := g.query(cmd)
	if err != nil {
		return attribute.Value{}, err
	}
	if err = g.checkStatus(); err != nil {
		return attribute.Value{}, err
	}
	return a.ParseReply(data)
}

// WriteRaw sends a command that has no attribute mapping
func (g *Gateway) WriteRaw(cmd string) (err error) {
	start := time.Now()
	defer func() { g.observe(Event{Op: OpWrite, Command: cmd}, start, err) }()

	if err = g.check(); err != nil {
		return err
	}
	if err = g.write(cmd); err != nil {
		return err
	}
	return g.checkStatus()
}

// QueryRaw sends a query that has no attribute mapping and returns the
// reply text without its terminator
func (g *Gateway) QueryRaw(cmd string) (text string, err error) {
	start := time.Now()
	defer func() { g.observe(Event{Op: OpQuery, Command: cmd, Value: text}, start, err) }()

	if err = g.check(); err != nil {
		return "", err
	}
	data, err := g.query(cmd)
	if err != nil {
		return "", err
	}
	if err = g.checkStatus(); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadFloatArray queries a numeric array (ASCII list or REAL,32 block) into
// dst. written is min(len(dst), available); a short dst is not an error,
// callers detect truncation from written < available.
func (g *Gateway) ReadFloatArray(cmd string, dst []float64) (written, available int, err error) {
	start := time.Now()
	defer func() {
		g.observe(Event{Op: OpRead, Command: cmd, Value: available}, start, err)
	}()

	values, err := g.readFloats(cmd)
	if err != nil {
		return 0, 0, err
	}
	available = len(values)
	written = copy(dst, values)
	return written, available, nil
}

// QueryFloats queries a numeric array of unknown length
func (g *Gateway) QueryFloats(cmd string) (values []float64, err error) {
	start := time.Now()
	defer func() {
		g.observe(Event{Op: OpRead, Command: cmd, Value: len(values)}, start, err)
	}()
	return g.readFloats(cmd)
}

// ReadIQArray queries interleaved I/Q pairs into re and im. The capacity is
// the shorter of the two slices; available counts pairs.
func (g *Gateway) ReadIQArray(cmd string, re, im []float64) (written, available int, err error) {
	start := time.Now()
	defer func() {
		g.observe(Event{Op: OpRead, Command: cmd, Value: available}, start, err)
	}()

	values, err := g.readFloats(cmd)
	if err != nil {
		return 0, 0, err
	}
	if len(values)%2 != 0 {
		return 0, 0, status.NoData("I/Q reply has an odd value count %d", len(values))
	}

	available = len(values) / 2
	written = available
	if capacity := min(len(re), len(im)); written > capacity {
		written = capacity
	}
	for i := 0; i < written; i++ {
		re[i] = values[2*i]
		im[i] = values[2*i+1]
	}
	return written, available, nil
}

// ReadRecords queries a comma-separated reply and decodes it into records
// of the declared shape
func (g *Gateway) ReadRecords(cmd string, shape reply.Shape) (records []reply.Record, err error) {
	start := time.Now()
	defer func() {
		g.observe(Event{Op: OpRead, Command: cmd, Value: len(records)}, start, err)
	}()

	if err = g.check(); err != nil {
		return nil, err
	}
	data, err := g.query(cmd)
	if err != nil {
		return nil, err
	}
	if err = g.checkStatus(); err != nil {
		return nil, err
	}
	return reply.ParseRecords(data, shape)
}

// WriteWithOPC sends cmd followed by *OPC? and waits for completion within
// the OPC timeout
func (g *Gateway) WriteWithOPC(cmd string) (err error) {
	start := time.Now()
	defer func() { g.observe(Event{Op: OpOPC, Command: cmd}, start, err) }()

	if err = g.check(); err != nil {
		return err
	}

	tr := g.s.transport
	saved := tr.Timeout()
	tr.SetTimeout(g.s.opcTimeout)
	data, qerr := g.query(cmd + ";*OPC?")
	tr.SetTimeout(saved)
	if qerr != nil {
		return qerr
	}

	if err = g.checkStatus(); err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) != "1" {
		return status.NoData("unexpected *OPC? reply %q", data)
	}
	return nil
}

// CheckStatus reads the status byte and drains the error queue
func (g *Gateway) CheckStatus() error {
	if err := g.check(); err != nil {
		return err
	}
	return g.checkStatus()
}

// OPCTimeout returns the operation-complete timeout
func (g *Gateway) OPCTimeout() time.Duration {
	return g.s.opcTimeout
}

// SetOPCTimeout changes the operation-complete timeout. Callers that change
// it temporarily restore it themselves.
func (g *Gateway) SetOPCTimeout(d time.Duration) error {
	if err := g.check(); err != nil {
		return err
	}
	if d <= 0 {
		return status.Range(2, "Timeout", "OPC timeout must be positive, got %v", d)
	}
	g.s.opcTimeout = d
	return nil
}

func (g *Gateway) lookup(id string) (attribute.Attribute, error) {
	a, ok := g.table.Lookup(id)
	if !ok {
		return attribute.Attribute{}, status.InvalidParameter("unknown attribute %q", id)
	}
	return a, nil
}

func (g *Gateway) readFloats(cmd string) ([]float64, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	data, err := g.query(cmd)
	if err != nil {
		return nil, err
	}
	if err := g.checkStatus(); err != nil {
		return nil, err
	}

	if transport.IsBlock(data) {
		payload, err := transport.ParseBlock(data)
		if err != nil {
			return nil, status.NoData("malformed block reply: %v", err)
		}
		values, err := transport.DecodeReal32(payload)
		if err != nil {
			return nil, status.NoData("%v", err)
		}
		return values, nil
	}
	return reply.ParseFloats(data)
}

func (g *Gateway) write(cmd string) error {
	if err := g.s.transport.Write([]byte(cmd)); err != nil {
		return status.Transport("write "+cmd, err)
	}
	return nil
}

func (g *Gateway) query(cmd string) ([]byte, error) {
	data, err := g.s.transport.Query([]byte(cmd))
	if err != nil {
		return nil, status.Transport("query "+cmd, err)
	}
	return data, nil
}

// checkStatus converts a non-empty error queue into DeviceRejected carrying
// the first entry's code and every entry's text
func (g *Gateway) checkStatus() error {
	data, err := g.query("*STB?")
	if err != nil {
		return err
	}
	stb, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return status.NoData("malformed status byte %q", data)
	}
	if stb&stbErrorQueue == 0 {
		return nil
	}

	var code int
	var messages []string
	for i := 0; i < maxErrorReads; i++ {
		data, err := g.query("SYST:ERR?")
		if err != nil {
			return err
		}
		c, text := parseErrorEntry(string(data))
		if c == 0 {
			break
		}
		if len(messages) == 0 {
			code = c
			messages = append(messages, text)
		} else {
			messages = append(messages, fmt.Sprintf("%d,%s", c, text))
		}
	}

	if len(messages) == 0 {
		return nil
	}
	verbose.Printf("%s: instrument error %d: %s", g.s.name, code, strings.Join(messages, "; "))
	return status.DeviceRejected(code, strings.Join(messages, "; "))
}

// parseErrorEntry splits `-222,"Data out of range"`. An entry without a
// numeric code is reported as code -1 with the raw text.
func parseErrorEntry(entry string) (int, string) {
	entry = strings.TrimSpace(entry)
	head, text, _ := strings.Cut(entry, ",")
	code, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return -1, entry
	}
	return code, reply.Unquote(strings.TrimSpace(text))
}

func (g *Gateway) observe(e Event, start time.Time, err error) {
	if g.s.observer == nil {
		return
	}
	e.Time = start
	e.Duration = time.Since(start)
	e.Session = g.s.name
	e.Handle = g.s.id.String()
	e.Err = err
	g.s.observer.Observe(e)
}
