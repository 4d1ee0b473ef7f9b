package olsr

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config covers every recognized option of §6, loadable from a TOML file or
// built programmatically. The zero value of every field falls back to the
// documented default in Validate's companion, ApplyDefaults.
type Config struct {
	HelloInterval          time.Duration `toml:"hello_interval"`
	TcInterval             time.Duration `toml:"tc_interval"`
	MidInterval            time.Duration `toml:"mid_interval"`
	HnaInterval            time.Duration `toml:"hna_interval"`
	Willingness            Willingness   `toml:"willingness"`
	MaxCommunicationRadius float64       `toml:"max_communication_radius"`
	InterfaceExclusions    []string      `toml:"interface_exclusions"`
	LogLevel               string        `toml:"log_level"`
}

// ApplyDefaults fills zero-value fields with the protocol defaults, mirroring
// the teacher's pattern of cheap zero-value structs that still "just work".
func (c *Config) ApplyDefaults() {
	if c.HelloInterval == 0 {
		c.HelloInterval = DefaultHelloInterval
	}
	if c.TcInterval == 0 {
		c.TcInterval = DefaultTcInterval
	}
	if c.MidInterval == 0 {
		c.MidInterval = DefaultMidInterval
	}
	if c.HnaInterval == 0 {
		c.HnaInterval = DefaultHnaInterval
	}
	if c.Willingness == 0 {
		c.Willingness = DefaultWillingness
	}
	if c.MaxCommunicationRadius == 0 {
		c.MaxCommunicationRadius = DefaultMaxCommunicationRadius
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects non-positive intervals and an out-of-range Willingness,
// per §4.11. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if c.HelloInterval <= 0 {
		return fmt.Errorf("hello_interval must be positive, got %s", c.HelloInterval)
	}
	if c.TcInterval <= 0 {
		return fmt.Errorf("tc_interval must be positive, got %s", c.TcInterval)
	}
	if c.MidInterval <= 0 {
		return fmt.Errorf("mid_interval must be positive, got %s", c.MidInterval)
	}
	if c.HnaInterval <= 0 {
		return fmt.Errorf("hna_interval must be positive, got %s", c.HnaInterval)
	}
	if !c.Willingness.Valid() {
		return fmt.Errorf("willingness %d is not one of NEVER/LOW/DEFAULT/HIGH/ALWAYS", c.Willingness)
	}
	if c.MaxCommunicationRadius <= 0 {
		return fmt.Errorf("max_communication_radius must be positive, got %f", c.MaxCommunicationRadius)
	}
	return nil
}

// LoadConfig reads and decodes a TOML config file, applies defaults, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if _, err := toml.Decode(string(data), &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
