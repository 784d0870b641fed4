package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dougsko/specand/pkg/status"
)

// Command represents a command sent to the core engine.
//
// Commands are one line, TYPE or TYPE:args, with '|' separating arguments.
// The last argument takes the rest of the line so SCPI text and values may
// contain '|'.
type Command struct {
	Type string            `json:"type"`
	Args map[string]string `json:"args,omitempty"`
}

// Response represents a response from the core engine
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	// Kind is the status kind name of a failed gateway call
	Kind string `json:"kind,omitempty"`
	// ParamIndex and ParamName locate a range or value failure
	ParamIndex int    `json:"param_index,omitempty"`
	ParamName  string `json:"param_name,omitempty"`
	// Code is the instrument's native error code
	Code int `json:"code,omitempty"`
}

// Protocol commands
const (
	CmdStatus   = "STATUS"
	CmdPing     = "PING"
	CmdQuit     = "QUIT"
	CmdSessions = "SESSIONS"
	CmdSet      = "SET"
	CmdGet      = "GET"
	CmdWrite    = "WRITE"
	CmdQuery    = "QUERY"
	CmdTrace    = "TRACE"
	CmdSpectrum = "SPECTRUM"
	CmdTimeout  = "TIMEOUT"
	CmdJournal  = "JOURNAL"
	CmdTraces   = "TRACES"
	CmdReload   = "RELOAD"
)

// argument names per command, in wire order
var layouts = map[string][]string{
	CmdSet:      {"instrument", "attribute", "selector", "value"},
	CmdGet:      {"instrument", "attribute", "selector"},
	CmdWrite:    {"instrument", "command"},
	CmdQuery:    {"instrument", "command"},
	CmdTrace:    {"instrument", "capacity", "command", "label"},
	CmdSpectrum: {"instrument", "capacity", "fft_size", "window"},
	CmdTimeout:  {"instrument", "milliseconds"},
	CmdJournal:  {"limit", "instrument"},
	CmdTraces:   {"limit", "instrument"},
}

// required is the number of leading arguments that must be present
var required = map[string]int{
	CmdSet:      4,
	CmdGet:      2,
	CmdWrite:    2,
	CmdQuery:    2,
	CmdTrace:    3,
	CmdSpectrum: 1,
	CmdTimeout:  1,
}

// ParseCommand parses a text command into a Command struct
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty command")
	}
	head, rest, hasArgs := strings.Cut(text, ":")

	cmd := &Command{
		Type: strings.ToUpper(strings.TrimSpace(head)),
		Args: make(map[string]string),
	}

	names, ok := layouts[cmd.Type]
	if !ok {
		return cmd, nil
	}

	var parts []string
	if hasArgs && rest != "" {
		parts = strings.SplitN(rest, "|", len(names))
	}
	if len(parts) < required[cmd.Type] {
		return nil, fmt.Errorf("%s needs %s", cmd.Type, strings.Join(names[:required[cmd.Type]], ", "))
	}
	for i, p := range parts {
		// SCPI text and values keep their spaces
		if names[i] != "command" && names[i] != "value" {
			p = strings.TrimSpace(p)
		}
		cmd.Args[names[i]] = p
	}
	return cmd, nil
}

// NewCommand builds a command from positional arguments in wire order.
// Arguments beyond the command's layout are dropped.
func NewCommand(kind string, args ...string) *Command {
	cmd := &Command{Type: kind, Args: make(map[string]string)}
	names := layouts[kind]
	for i, a := range args {
		if i < len(names) {
			cmd.Args[names[i]] = a
		}
	}
	return cmd
}

// Arg returns a string argument, "" if absent
func (c *Command) Arg(name string) string {
	return c.Args[name]
}

// IntArg returns an integer argument, def if absent
func (c *Command) IntArg(name string, def int) (int, error) {
	v := c.Args[name]
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", name, v)
	}
	return n, nil
}

// String renders the command back to wire form
func (c *Command) String() string {
	names, ok := layouts[c.Type]
	if !ok || len(c.Args) == 0 {
		return c.Type
	}
	last := -1
	for i, n := range names {
		if _, ok := c.Args[n]; ok {
			last = i
		}
	}
	if last < 0 {
		return c.Type
	}
	values := make([]string, last+1)
	for i := 0; i <= last; i++ {
		values[i] = c.Args[names[i]]
	}
	return c.Type + ":" + strings.Join(values, "|")
}

// String converts a Response to a JSON string
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// Err rebuilds the error of a failed response, keeping the status kind
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Kind == "" {
		return fmt.Errorf("%s", r.Error)
	}
	kind, ok := status.ParseKind(r.Kind)
	if !ok {
		return fmt.Errorf("%s", r.Error)
	}
	return &status.Error{Kind: kind, ParamIndex: r.ParamIndex, ParamName: r.ParamName, Code: r.Code,
		Message: r.Error}
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response. Status errors carry their
// kind, parameter location and native code.
func NewErrorResponse(err error) *Response {
	r := &Response{Success: false, Error: err.Error()}
	if se, ok := status.As(err); ok {
		r.Kind = se.Kind.String()
		r.ParamIndex = se.ParamIndex
		r.ParamName = se.ParamName
		r.Code = se.Code
		r.Error = se.Message
		if se.Err != nil {
			r.Error = strings.TrimPrefix(r.Error+": "+se.Err.Error(), ": ")
		}
	}
	return r
}
