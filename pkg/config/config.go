package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/dougsko/specand/pkg/transport"
)

// EnvPrefix prefixes every environment override, e.g. SPECAND_WEB_PORT
const EnvPrefix = "SPECAND"

// Instrument describes one analyzer the daemon opens a session to
type Instrument struct {
	Name       string        `yaml:"name"`
	Resource   string        `yaml:"resource"`
	Timeout    time.Duration `yaml:"timeout"`
	OPCTimeout time.Duration `yaml:"opc_timeout"`
	BaudRate   int           `yaml:"baud_rate"`
	Reset      bool          `yaml:"reset"`
}

// Config represents the specand configuration
type Config struct {
	Instruments []Instrument `yaml:"instruments" ignored:"true"`

	Attributes struct {
		// TableFile holds attribute overrides merged over the built-in table
		TableFile string `yaml:"table_file" split_words:"true"`
		Watch     bool   `yaml:"watch"`
	} `yaml:"attributes"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address" split_words:"true"`
	} `yaml:"web"`

	API struct {
		UnixSocket string `yaml:"unix_socket" split_words:"true"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path" split_words:"true"`
		MaxEntries   int    `yaml:"max_entries" split_words:"true"`
		MaxTraces    int    `yaml:"max_traces" split_words:"true"`
	} `yaml:"storage"`

	Logging Logging `yaml:"logging"`
}

// Logging configures pkg/logging
type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	Structured bool   `yaml:"structured"`
	MaxSize    int    `yaml:"max_size" split_words:"true"`
	MaxBackups int    `yaml:"max_backups" split_words:"true"`
	MaxAge     int    `yaml:"max_age" split_words:"true"`
	Compress   bool   `yaml:"compress"`
}

// LoadConfig loads configuration from a YAML file, applies environment
// overrides and fills in defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	for i := range c.Instruments {
		inst := &c.Instruments[i]
		if inst.Timeout == 0 {
			inst.Timeout = transport.DefaultTimeout
		}
		if inst.OPCTimeout == 0 {
			inst.OPCTimeout = 10 * time.Second
		}
		if inst.BaudRate == 0 {
			inst.BaudRate = transport.DefaultBaudRate
		}
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "127.0.0.1"
	}
	if c.API.UnixSocket == "" {
		c.API.UnixSocket = "/tmp/specand.sock"
	}
	if c.Storage.MaxEntries == 0 {
		c.Storage.MaxEntries = 100000
	}
	if c.Storage.MaxTraces == 0 {
		c.Storage.MaxTraces = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.Name == "" {
			return fmt.Errorf("instrument %d: name is required", i+1)
		}
		if strings.ContainsAny(inst.Name, "|:\n") {
			return fmt.Errorf("instrument %s: name must not contain '|', ':' or newlines", inst.Name)
		}
		if names[inst.Name] {
			return fmt.Errorf("instrument %s: duplicate name", inst.Name)
		}
		names[inst.Name] = true

		if inst.Resource == "" {
			return fmt.Errorf("instrument %s: resource is required", inst.Name)
		}
		if _, err := transport.ParseResource(inst.Resource); err != nil {
			return fmt.Errorf("instrument %s: %w", inst.Name, err)
		}
		if inst.Timeout < 0 || inst.OPCTimeout < 0 {
			return fmt.Errorf("instrument %s: timeouts must not be negative", inst.Name)
		}
	}
	if c.Attributes.Watch && c.Attributes.TableFile == "" {
		return fmt.Errorf("attributes.watch requires attributes.table_file")
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	if c.Storage.MaxEntries < 0 || c.Storage.MaxTraces < 0 {
		return fmt.Errorf("storage limits must not be negative")
	}
	return nil
}
