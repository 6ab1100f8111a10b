package sproxy

import (
	"fmt"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultHz                = 10
	MinHz                    = 1
	MaxHz                    = 500
	DefaultReconnectInterval = 1000
	MinReconnectInterval     = 100
	MaxReconnectInterval     = 60000
	DefaultBeforeSleepDelay  = 1000
	DefaultStatsInterval     = 20
	DefaultEventBufferSize   = 64
)

type Global struct {
	LogLevel            string `yaml:"log_level" toml:"log_level"`
	LogFile             string `yaml:"log_file" toml:"log_file"`
	SyslogEnabled       bool   `yaml:"syslog_enabled" toml:"syslog_enabled"`
	PidFile             string `yaml:"pid_file" toml:"pid_file"`
	Hz                  int    `yaml:"hz" toml:"hz"`
	ReconnectIntervalMs int    `yaml:"reconnect_interval_ms" toml:"reconnect_interval_ms"`
	BeforeSleepDelayMs  *int   `yaml:"before_sleep_delay_ms" toml:"before_sleep_delay_ms"`
	StatsIntervalSec    *int   `yaml:"stats_interval_sec" toml:"stats_interval_sec"`
	EventBufferSize     int    `yaml:"event_buffer_size" toml:"event_buffer_size"`
	LockOsThread        *bool  `yaml:"lock_os_thread" toml:"lock_os_thread"`
	SerialConfig        string `yaml:"serial_config" toml:"serial_config"`
}

type EventsConfig struct {
	Router       string `yaml:"router" toml:"router"`
	KafkaBrokers string `yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic" toml:"kafka_topic"`
}

// DeviceConfig describes one master and the virtuals published for it.
// Virtual names are "<name>.<suffix>".
type DeviceConfig struct {
	Name     string   `yaml:"name" toml:"name"`
	BaudRate int      `yaml:"baud_rate" toml:"baud_rate"`
	Virtuals []string `yaml:"virtuals" toml:"virtuals"`
	Writer   string   `yaml:"writer" toml:"writer"`
}

type Config struct {
	Global  Global         `yaml:"global" toml:"global"`
	Events  EventsConfig   `yaml:"events" toml:"events"`
	Devices []DeviceConfig `yaml:"devices" toml:"devices"`
}

// LoadConfig reads a TOML or YAML configuration, chosen by file suffix. When
// global.serial_config is set the device list is read from that file instead.
func LoadConfig(filePath string) (*Config, error) {
	config := &Config{}
	if err := unmarshalFile(filePath, config); err != nil {
		return nil, err
	}
	if config.Global.SerialConfig != "" {
		if err := config.LoadDevices(config.Global.SerialConfig); err != nil {
			return nil, err
		}
	}
	config.applyDefaults()
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDevices replaces the device list with the one found in filePath.
func (c *Config) LoadDevices(filePath string) error {
	serial := &Config{}
	if err := unmarshalFile(filePath, serial); err != nil {
		return err
	}
	c.Global.SerialConfig = filePath
	c.Devices = serial.Devices
	return validateDevices(c.Devices)
}

func (g *Global) BeforeSleepDelay() int {
	if g.BeforeSleepDelayMs == nil {
		return DefaultBeforeSleepDelay
	}
	return *g.BeforeSleepDelayMs
}

func (g *Global) StatsInterval() int {
	if g.StatsIntervalSec == nil {
		return DefaultStatsInterval
	}
	return *g.StatsIntervalSec
}

func (g *Global) LockOSThread() bool {
	return g.LockOsThread == nil || *g.LockOsThread
}

func unmarshalFile(filePath string, config *Config) error {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		err = toml.Unmarshal(file, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, config)
	default:
		return fmt.Errorf("unsupported config format: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", filePath, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	g := &c.Global
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.Hz == 0 {
		g.Hz = DefaultHz
	}
	g.Hz = clamp(g.Hz, MinHz, MaxHz)
	if g.ReconnectIntervalMs == 0 {
		g.ReconnectIntervalMs = DefaultReconnectInterval
	}
	g.ReconnectIntervalMs = clamp(g.ReconnectIntervalMs, MinReconnectInterval, MaxReconnectInterval)
	if g.EventBufferSize <= 0 {
		g.EventBufferSize = DefaultEventBufferSize
	}
}

func validateConfig(config *Config) error {
	if config.Global.BeforeSleepDelay() < 0 {
		return fmt.Errorf("before_sleep_delay_ms must not be negative")
	}
	if config.Global.StatsInterval() < 0 {
		return fmt.Errorf("stats_interval_sec must not be negative")
	}
	switch config.Events.Router {
	case "", "log", "kafka":
	default:
		return fmt.Errorf("unknown event router: %s", config.Events.Router)
	}
	return validateDevices(config.Devices)
}

func validateDevices(devices []DeviceConfig) error {
	for _, device := range devices {
		if device.Name == "" {
			return &TopologyError{Name: "<unnamed>", Reason: "device without name"}
		}
		if device.BaudRate != 0 && !ValidBaudRate(device.BaudRate) {
			return &TopologyError{Name: device.Name, Reason: fmt.Sprintf("baud rate %d", device.BaudRate), Err: ErrInvalidBaudRate}
		}
		for _, suffix := range device.Virtuals {
			if suffix == "" || strings.Contains(suffix, "/") {
				return &TopologyError{Name: device.Name, Reason: fmt.Sprintf("invalid virtual suffix %q", suffix)}
			}
		}
	}
	return nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
