// Package config loads the poller configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/siwa2904/zkclient"
)

const (
	DefaultSchedule = "@every 5m"
	DefaultStore    = "attendance.db"
)

// Config is the whole poller configuration.
type Config struct {
	// Schedule is a cron spec with optional seconds field, or @every.
	Schedule string   `yaml:"schedule"`
	LogLevel string   `yaml:"log_level"`
	Store    Store    `yaml:"store"`
	Devices  []Device `yaml:"devices"`
}

type Store struct {
	Path string `yaml:"path"`
}

// Device is one terminal to poll.
type Device struct {
	ID        string        `yaml:"id"`
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Transport string        `yaml:"transport"`
	Protocol  string        `yaml:"protocol"`
	Timeout   time.Duration `yaml:"timeout"`
	// BufferSize bounds socket buffers and one received chunk.
	BufferSize int    `yaml:"buffer_size"`
	Pin        int    `yaml:"pin"`
	Timezone   string `yaml:"timezone"`
	// Schedule overrides Config.Schedule for this device.
	Schedule string `yaml:"schedule"`
	// StrictAck turns silent acks into failures.
	StrictAck bool `yaml:"strict_ack"`
	// DisableWhileReading locks the terminal during the transfer.
	DisableWhileReading *bool `yaml:"disable_while_reading"`
	// ClearAfterRead erases the log once it is stored.
	ClearAfterRead bool `yaml:"clear_after_read"`
}

// Load reads and validates path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStore
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Port == 0 {
			d.Port = zkclient.DefaultPort
		}
		if d.ID == "" {
			d.ID = fmt.Sprintf("%s:%d", d.Host, d.Port)
		}
		if d.DisableWhileReading == nil {
			v := true
			d.DisableWhileReading = &v
		}
	}
}

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule the way the poller does.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Devices) == 0 {
		errs = append(errs, errors.New("no devices configured"))
	}
	if _, err := ParseSchedule(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule %q: %w", c.Schedule, err))
	}

	seen := map[string]bool{}
	for _, d := range c.Devices {
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("device %s: duplicate id", d.ID))
		}
		seen[d.ID] = true
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", d.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (d Device) Validate() error {
	if d.Host == "" {
		return errors.New("host is required")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("port %d out of range", d.Port)
	}
	if _, err := zkclient.ParseTransportKind(d.Transport); err != nil {
		return err
	}
	if _, err := zkclient.ParseProtocolMode(d.Protocol); err != nil {
		return err
	}
	if d.Timeout < 0 {
		return fmt.Errorf("timeout %s is negative", d.Timeout)
	}
	if d.Schedule != "" {
		if _, err := ParseSchedule(d.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", d.Schedule, err)
		}
	}
	if d.Timezone != "" {
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

// ScheduleFor returns the device schedule, or the global one.
func (c *Config) ScheduleFor(d Device) string {
	if d.Schedule != "" {
		return d.Schedule
	}
	return c.Schedule
}

// ClientOptions turns the device settings into client options.
func (d Device) ClientOptions() ([]zkclient.Option, error) {
	kind, err := zkclient.ParseTransportKind(d.Transport)
	if err != nil {
		return nil, err
	}
	mode, err := zkclient.ParseProtocolMode(d.Protocol)
	if err != nil {
		return nil, err
	}
	opts := []zkclient.Option{
		zkclient.WithTransport(kind),
		zkclient.WithProtocol(mode),
		zkclient.WithPin(d.Pin),
		zkclient.WithLocation(zkclient.LoadLocation(d.Timezone)),
	}
	if d.Timeout > 0 {
		opts = append(opts, zkclient.WithTimeout(d.Timeout))
	}
	if d.BufferSize > 0 {
		opts = append(opts, zkclient.WithBufferSize(d.BufferSize))
	}
	if d.StrictAck {
		opts = append(opts, zkclient.WithAckPolicy(zkclient.StrictAck))
	}
	return opts, nil
}

// Disables reports whether the terminal is locked during reads.
func (d Device) Disables() bool {
	return d.DisableWhileReading == nil || *d.DisableWhileReading
}
