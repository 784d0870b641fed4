package verbose

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestPrintf(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetEnabled(false)

	Printf("fsw >> %s", "*IDN?")
	if buf.Len() != 0 {
		t.Fatalf("trace written while disabled: %q", buf.String())
	}

	SetEnabled(true)
	if !IsEnabled() {
		t.Fatal("expected tracing enabled")
	}
	Printf("fsw >> %s", "*IDN?")
	if !strings.Contains(buf.String(), "[SCPI] ") || !strings.Contains(buf.String(), "fsw >> *IDN?") {
		t.Errorf("unexpected trace %q", buf.String())
	}
}
