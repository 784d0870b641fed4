package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "specand.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Valid Config", func(t *testing.T) {
		path := writeConfig(t, `
instruments:
  - name: fsw
    resource: "TCPIP0::192.168.1.20::5025::SOCKET"
    timeout: 3s
    opc_timeout: 30s
    reset: true
  - name: bench
    resource: "ASRL1::INSTR"
    baud_rate: 115200

attributes:
  table_file: "/etc/specand/attributes.yaml"
  watch: true

web:
  port: 9000
  bind_address: "0.0.0.0"

storage:
  database_path: "/tmp/specand.db"
  max_entries: 5000

logging:
  level: "debug"
  console: true
`)

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if len(config.Instruments) != 2 {
			t.Fatalf("Expected 2 instruments, got %d", len(config.Instruments))
		}
		fsw := config.Instruments[0]
		if fsw.Name != "fsw" || !fsw.Reset {
			t.Errorf("Unexpected first instrument: %+v", fsw)
		}
		if fsw.Timeout != 3*time.Second {
			t.Errorf("Expected timeout 3s, got %v", fsw.Timeout)
		}
		if fsw.OPCTimeout != 30*time.Second {
			t.Errorf("Expected OPC timeout 30s, got %v", fsw.OPCTimeout)
		}
		if config.Instruments[1].BaudRate != 115200 {
			t.Errorf("Expected baud rate 115200, got %d", config.Instruments[1].BaudRate)
		}
		if !config.Attributes.Watch {
			t.Error("Expected attribute watch enabled")
		}
		if config.Web.Port != 9000 {
			t.Errorf("Expected web port 9000, got %d", config.Web.Port)
		}
		if config.Storage.MaxEntries != 5000 {
			t.Errorf("Expected max entries 5000, got %d", config.Storage.MaxEntries)
		}
		if config.Logging.Level != "debug" {
			t.Errorf("Expected log level debug, got %s", config.Logging.Level)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("Expected valid config, got: %v", err)
		}
	})

	t.Run("Config With Defaults", func(t *testing.T) {
		path := writeConfig(t, `
instruments:
  - name: fsw
    resource: "MOCK::FSW"
`)

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		inst := config.Instruments[0]
		if inst.Timeout != 5*time.Second {
			t.Errorf("Expected default timeout 5s, got %v", inst.Timeout)
		}
		if inst.OPCTimeout != 10*time.Second {
			t.Errorf("Expected default OPC timeout 10s, got %v", inst.OPCTimeout)
		}
		if inst.BaudRate != 9600 {
			t.Errorf("Expected default baud rate 9600, got %d", inst.BaudRate)
		}
		if config.Web.Port != 8080 {
			t.Errorf("Expected default web port 8080, got %d", config.Web.Port)
		}
		if config.Web.BindAddress != "127.0.0.1" {
			t.Errorf("Expected default bind address 127.0.0.1, got %s", config.Web.BindAddress)
		}
		if config.API.UnixSocket != "/tmp/specand.sock" {
			t.Errorf("Expected default socket, got %s", config.API.UnixSocket)
		}
		if config.Storage.MaxEntries != 100000 {
			t.Errorf("Expected default max entries 100000, got %d", config.Storage.MaxEntries)
		}
		if config.Logging.Level != "info" {
			t.Errorf("Expected default log level info, got %s", config.Logging.Level)
		}
		if config.Logging.MaxSize != 100 {
			t.Errorf("Expected default log max size 100, got %d", config.Logging.MaxSize)
		}
	})

	t.Run("Environment Overrides", func(t *testing.T) {
		t.Setenv("SPECAND_WEB_PORT", "9191")
		t.Setenv("SPECAND_STORAGE_DATABASE_PATH", "/var/lib/specand/journal.db")
		t.Setenv("SPECAND_LOGGING_LEVEL", "warn")

		path := writeConfig(t, `
web:
  port: 8000
logging:
  level: debug
`)
		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if config.Web.Port != 9191 {
			t.Errorf("Expected env port 9191, got %d", config.Web.Port)
		}
		if config.Storage.DatabasePath != "/var/lib/specand/journal.db" {
			t.Errorf("Expected env database path, got %s", config.Storage.DatabasePath)
		}
		if config.Logging.Level != "warn" {
			t.Errorf("Expected env log level warn, got %s", config.Logging.Level)
		}
	})

	t.Run("Bad Environment Value", func(t *testing.T) {
		t.Setenv("SPECAND_WEB_PORT", "eighty")
		_, err := LoadConfig(writeConfig(t, ""))
		if err == nil || !strings.Contains(err.Error(), "environment overrides") {
			t.Errorf("Expected environment override error, got: %v", err)
		}
	})

	t.Run("File Not Found", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/path/config.yaml")
		if err == nil {
			t.Fatal("Expected error for nonexistent file, got nil")
		}
		if !strings.Contains(err.Error(), "failed to read config file") {
			t.Errorf("Expected 'failed to read config file' error, got: %v", err)
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		path := writeConfig(t, `
instruments:
  - name: [invalid yaml structure
`)
		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("Expected error for invalid YAML, got nil")
		}
		if !strings.Contains(err.Error(), "failed to parse config file") {
			t.Errorf("Expected 'failed to parse config file' error, got: %v", err)
		}
	})

	t.Run("Empty File", func(t *testing.T) {
		config, err := LoadConfig(writeConfig(t, ""))
		if err != nil {
			t.Fatalf("Expected no error for empty file, got: %v", err)
		}
		if len(config.Instruments) != 0 {
			t.Errorf("Expected no instruments, got %d", len(config.Instruments))
		}
		if config.Web.Port != 8080 {
			t.Errorf("Expected default port for empty file, got %d", config.Web.Port)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Instruments = []Instrument{{Name: "fsw", Resource: "MOCK::FSW"}}
		return c
	}

	t.Run("Valid Config", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Expected no error for valid config, got: %v", err)
		}
	})

	testCases := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"Missing Name", func(c *Config) { c.Instruments[0].Name = "" }, "name is required"},
		{"Separator In Name", func(c *Config) { c.Instruments[0].Name = "a|b" }, "must not contain"},
		{"Duplicate Name", func(c *Config) {
			c.Instruments = append(c.Instruments, Instrument{Name: "fsw", Resource: "MOCK::FSV"})
		}, "duplicate name"},
		{"Missing Resource", func(c *Config) { c.Instruments[0].Resource = "" }, "resource is required"},
		{"Bad Resource", func(c *Config) { c.Instruments[0].Resource = "GPIB0::20::INSTR" }, "instrument fsw"},
		{"Negative Timeout", func(c *Config) { c.Instruments[0].Timeout = -time.Second }, "negative"},
		{"Watch Without File", func(c *Config) { c.Attributes.Watch = true }, "requires attributes.table_file"},
		{"Port Out Of Range", func(c *Config) { c.Web.Port = 70000 }, "out of range"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.modify(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}
