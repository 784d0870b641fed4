package session

import (
	"time"

	"github.com/dougsko/specand/pkg/status"
)

// Gateway operations reported to observers
const (
	OpSet   = "set"
	OpGet   = "get"
	OpWrite = "write"
	OpQuery = "query"
	OpRead  = "read"
	OpOPC   = "opc"
)

// Event describes one completed gateway call
type Event struct {
	Time      time.Time
	Session   string
	Handle    string
	Op        string
	Attribute string
	Selector  string
	Command   string
	Value     interface{}
	Duration  time.Duration
	Err       error
}

// Status returns the status kind name of the call, "Success" when it
// succeeded
func (e Event) Status() string {
	if e.Err == nil {
		return "Success"
	}
	if k := status.KindOf(e.Err); k != 0 {
		return k.String()
	}
	return "Error"
}

// Observer is notified after every gateway call, while the session lock is
// still held. Implementations must not call back into the session.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe calls f
func (f ObserverFunc) Observe(e Event) { f(e) }
