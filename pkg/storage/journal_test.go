package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dougsko/specand/pkg/attribute"
	"github.com/dougsko/specand/pkg/selector"
	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/status"
	"github.com/dougsko/specand/pkg/transport"
)

func newTestJournal(t *testing.T, maxEntries, maxTraces int) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"), maxEntries, maxTraces)
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestNewJournal(t *testing.T) {
	t.Run("Valid Journal Creation", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		j, err := NewJournal(dbPath, 1000, 10)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer j.Close()

		if j.maxEntries != 1000 || j.maxTraces != 10 {
			t.Errorf("Unexpected limits %d/%d", j.maxEntries, j.maxTraces)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Expected database file to be created")
		}
	})

	t.Run("Nested Directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
		j, err := NewJournal(dbPath, 0, 0)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer j.Close()

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("Expected nested directory to be created")
		}
	})

	t.Run("Reopen Keeps Data", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "reopen.db")
		j, err := NewJournal(dbPath, 0, 0)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := j.Record(session.Event{Session: "fsw", Op: session.OpWrite, Command: "*CLS"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		j.Close()

		j, err = NewJournal(dbPath, 0, 0)
		if err != nil {
			t.Fatalf("Reopen: %v", err)
		}
		defer j.Close()
		if n, _ := j.GetCallCount(); n != 1 {
			t.Errorf("Expected 1 call after reopen, got %d", n)
		}
	})
}

func TestRecord(t *testing.T) {
	j := newTestJournal(t, 0, 0)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	events := []session.Event{
		{Time: start, Session: "fsw", Handle: "h1", Op: session.OpSet, Attribute: attribute.FrequencyCenter,
			Selector: "Win1", Command: "SENS1:FREQ:CENT 1E+09", Value: 1e9, Duration: 1500 * time.Microsecond},
		{Time: start.Add(time.Second), Session: "fsw", Op: session.OpGet, Attribute: attribute.TraceMode,
			Selector: "Win1,TR2", Command: "DISP1:TRAC2:MODE?", Value: "MAXH"},
		{Time: start.Add(2 * time.Second), Session: "fsv", Op: session.OpSet, Attribute: attribute.SweepTime,
			Command: "SENS1:SWE:TIME 0", Value: 0.0, Err: status.DeviceRejected(-222, "Data out of range")},
	}
	for _, e := range events {
		if err := j.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	t.Run("Newest First", func(t *testing.T) {
		calls, err := j.GetRecentCalls(10)
		if err != nil {
			t.Fatalf("GetRecentCalls: %v", err)
		}
		if len(calls) != 3 {
			t.Fatalf("Expected 3 calls, got %d", len(calls))
		}
		if calls[0].Session != "fsv" || calls[2].Attribute != attribute.FrequencyCenter {
			t.Errorf("Unexpected order: %+v", calls)
		}
	})

	t.Run("Typed Values", func(t *testing.T) {
		calls, _ := j.GetCalls(CallQuery{Attribute: attribute.FrequencyCenter})
		if len(calls) != 1 {
			t.Fatalf("Expected 1 call, got %d", len(calls))
		}
		c := calls[0]
		if v, ok := c.Value.(float64); !ok || v != 1e9 {
			t.Errorf("Expected float64 1e9, got %T %v", c.Value, c.Value)
		}
		if c.Duration != 1500*time.Microsecond {
			t.Errorf("Expected duration 1.5ms, got %v", c.Duration)
		}
		if !c.Timestamp.Equal(start) {
			t.Errorf("Expected timestamp %v, got %v", start, c.Timestamp)
		}
		if c.Status != "Success" {
			t.Errorf("Expected Success, got %s", c.Status)
		}

		calls, _ = j.GetCalls(CallQuery{Op: session.OpGet})
		if len(calls) != 1 || calls[0].Value != "MAXH" {
			t.Errorf("Expected string value MAXH, got %+v", calls)
		}
	})

	t.Run("Errors Only", func(t *testing.T) {
		calls, err := j.GetCalls(CallQuery{ErrorsOnly: true})
		if err != nil {
			t.Fatalf("GetCalls: %v", err)
		}
		if len(calls) != 1 {
			t.Fatalf("Expected 1 failed call, got %d", len(calls))
		}
		if calls[0].Status != "DeviceRejected" {
			t.Errorf("Expected DeviceRejected status, got %s", calls[0].Status)
		}
		if calls[0].Error == "" {
			t.Error("Expected error text")
		}
	})

	t.Run("Filters", func(t *testing.T) {
		since := start.Add(500 * time.Millisecond)
		calls, _ := j.GetCalls(CallQuery{Session: "fsw", Since: &since})
		if len(calls) != 1 || calls[0].Op != session.OpGet {
			t.Errorf("Expected only the get call, got %+v", calls)
		}

		calls, _ = j.GetCalls(CallQuery{Limit: 1, Offset: 1})
		if len(calls) != 1 || calls[0].Op != session.OpGet {
			t.Errorf("Expected the middle call, got %+v", calls)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := j.GetStats()
		if err != nil {
			t.Fatalf("GetStats: %v", err)
		}
		if stats.TotalCalls != 3 || stats.TotalErrors != 1 {
			t.Errorf("Unexpected stats %+v", stats)
		}
	})
}

func TestCleanup(t *testing.T) {
	j := newTestJournal(t, 5, 2)

	for i := 0; i < 8; i++ {
		if err := j.Record(session.Event{Session: "fsw", Op: session.OpWrite, Command: "*CLS"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	count, err := j.GetCallCount()
	if err != nil {
		t.Fatalf("GetCallCount: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 calls after cleanup, got %d", count)
	}

	calls, _ := j.GetRecentCalls(0)
	if calls[len(calls)-1].ID != 4 {
		t.Errorf("Expected oldest remaining id 4, got %d", calls[len(calls)-1].ID)
	}

	stats, _ := j.GetStats()
	if stats.TotalCalls != 8 {
		t.Errorf("Totals must survive cleanup, got %d", stats.TotalCalls)
	}
	if stats.LastCleanup.IsZero() {
		t.Error("Expected cleanup timestamp")
	}

	if err := j.CleanupOldEntries(); err != nil {
		t.Errorf("CleanupOldEntries: %v", err)
	}
}

func TestTraces(t *testing.T) {
	j := newTestJournal(t, 0, 2)

	id, err := j.SaveTrace(Trace{Session: "fsw", Command: "TRAC1:DATA? TRACE1", Label: "baseline",
		Points: []float64{-90.5, -80.25, -70}, Written: 3, Available: 5})
	if err != nil {
		t.Fatalf("SaveTrace: %v", err)
	}

	got, err := j.GetTrace(id)
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.Label != "baseline" || got.Available != 5 {
		t.Errorf("Unexpected trace %+v", got)
	}
	if len(got.Points) != 3 || got.Points[1] != -80.25 {
		t.Errorf("Points not preserved: %v", got.Points)
	}

	for i := 0; i < 2; i++ {
		if _, err := j.SaveTrace(Trace{Session: "fsv", Command: "TRAC1:DATA? TRACE1", Points: []float64{1}}); err != nil {
			t.Fatalf("SaveTrace: %v", err)
		}
	}
	all, err := j.ListTraces("", 0)
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected trace limit 2, got %d", len(all))
	}
	if _, err := j.GetTrace(id); err == nil {
		t.Error("Expected the oldest trace to be cleaned up")
	}

	fsv, _ := j.ListTraces("fsv", 1)
	if len(fsv) != 1 || fsv[0].Points != nil {
		t.Errorf("Expected one listing without points, got %+v", fsv)
	}

	if err := j.DeleteTrace(fsv[0].ID); err != nil {
		t.Errorf("DeleteTrace: %v", err)
	}
	if err := j.DeleteTrace(fsv[0].ID); err == nil {
		t.Error("Expected error deleting a missing trace")
	}
}

func TestJournalAsObserver(t *testing.T) {
	j := newTestJournal(t, 0, 0)

	m := transport.NewMock("FSW")
	s, err := session.Open("fsw", m, nil, session.Options{Observer: j})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	m.Reject("SENS1:FREQ:SPAN", -222, "Data out of range")
	setErr := s.Do(func(g *session.Gateway) error {
		return g.SetAttribute(selector.MustParse("Win1"), attribute.FrequencySpan, attribute.Real(-1))
	})
	if !status.Is(setErr, status.KindDeviceRejected) {
		t.Fatalf("Expected DeviceRejected, got %v", setErr)
	}

	calls, err := j.GetCalls(CallQuery{Session: "fsw", Op: session.OpSet})
	if err != nil {
		t.Fatalf("GetCalls: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("Expected 1 set call, got %d", len(calls))
	}
	if calls[0].Command != "SENS1:FREQ:SPAN -1" || calls[0].Status != "DeviceRejected" {
		t.Errorf("Unexpected journal entry %+v", calls[0])
	}
	if calls[0].Handle != s.ID().String() {
		t.Errorf("Expected handle %s, got %s", s.ID(), calls[0].Handle)
	}

	var se *status.Error
	if !errors.As(setErr, &se) || se.Code != -222 {
		t.Errorf("Expected native code -222, got %v", setErr)
	}
}
