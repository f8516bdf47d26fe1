// Package config loads leaphand settings from a YAML file, LEAPHAND_*
// environment variables and built-in defaults.
package config

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/clintpurser/leaphand/dynamixel"
	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/mapping"
	"github.com/clintpurser/leaphand/syncloop"
	"github.com/clintpurser/leaphand/trajectory"
)

// EnvPrefix prefixes every environment override, e.g. LEAPHAND_BUS_PORT.
const EnvPrefix = "LEAPHAND"

// Config is the complete runtime configuration.
type Config struct {
	Bus      BusConfig      `mapstructure:"bus"`
	Control  ControlConfig  `mapstructure:"control"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Sync     SyncConfig     `mapstructure:"sync"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// BusConfig selects the serial ports.
type BusConfig struct {
	Port         string        `mapstructure:"port"`
	FallbackPort string        `mapstructure:"fallback_port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// ControlConfig holds the position-control gains.
type ControlConfig struct {
	KP           float64 `mapstructure:"kp"`
	KI           float64 `mapstructure:"ki"`
	KD           float64 `mapstructure:"kd"`
	CurrentLimit float64 `mapstructure:"current_limit"`
}

// PlaybackConfig tunes trajectory playback and pose holding.
type PlaybackConfig struct {
	Hz                     float64       `mapstructure:"hz"`
	Settle                 time.Duration `mapstructure:"settle"`
	HoldInterval           time.Duration `mapstructure:"hold_interval"`
	SpinWindow             time.Duration `mapstructure:"spin_window"`
	MaxConsecutiveTimeouts int           `mapstructure:"max_consecutive_timeouts"`
}

// SyncConfig tunes the observe loop.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Settle   time.Duration `mapstructure:"settle"`
}

// MQTTConfig addresses the joint-state broker. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      int    `mapstructure:"qos"`
	Retained bool   `mapstructure:"retained"`
}

// LimitsConfig holds the angle tables keyed by joint index ("0".."15"), each
// entry a [min, max] pair.
type LimitsConfig struct {
	Raw    map[string][]float64 `mapstructure:"raw"`
	Visual map[string][]float64 `mapstructure:"visual"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bus.port", "/dev/ttyUSB0")
	v.SetDefault("bus.fallback_port", "/dev/ttyUSB1")
	v.SetDefault("bus.baud_rate", dynamixel.DefaultBaudRate)
	v.SetDefault("bus.read_timeout", dynamixel.DefaultReadTimeout)

	gains := hand.DefaultGains()
	v.SetDefault("control.kp", gains.KP)
	v.SetDefault("control.ki", gains.KI)
	v.SetDefault("control.kd", gains.KD)
	v.SetDefault("control.current_limit", gains.CurrentLimit)

	play := trajectory.DefaultConfig()
	v.SetDefault("playback.hz", 20.0)
	v.SetDefault("playback.settle", play.Settle)
	v.SetDefault("playback.hold_interval", play.HoldInterval)
	v.SetDefault("playback.spin_window", play.SpinWindow)
	v.SetDefault("playback.max_consecutive_timeouts", play.MaxConsecutiveTimeouts)

	v.SetDefault("sync.interval", syncloop.DefaultConfig().Interval)
	v.SetDefault("sync.settle", time.Second)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "leaphand")
	v.SetDefault("mqtt.topic", "leaphand/joint_states")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)

	v.SetDefault("limits.raw", encodeLimits(mapping.DefaultRawLimits()))
	v.SetDefault("limits.visual", encodeLimits(mapping.DefaultVisualLimits()))

	v.SetDefault("logging.level", "info")
}

// New returns a viper instance with defaults and environment overrides wired.
// If path is empty, ./leaphand.yaml is used when present.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("leaphand")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks value ranges. Errors wrap hand.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	if c.Bus.Port == "" {
		problems = append(problems, "bus.port is required")
	}
	if c.Bus.BaudRate <= 0 {
		problems = append(problems, "bus.baud_rate must be positive")
	}
	if !(c.Playback.Hz > 0) {
		problems = append(problems, "playback.hz must be positive")
	}
	if c.Playback.HoldInterval <= 0 {
		problems = append(problems, "playback.hold_interval must be positive")
	}
	if c.Playback.MaxConsecutiveTimeouts < 0 {
		problems = append(problems, "playback.max_consecutive_timeouts must not be negative")
	}
	if c.Sync.Interval <= 0 {
		problems = append(problems, "sync.interval must be positive")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		problems = append(problems, "mqtt.qos must be 0, 1 or 2")
	}
	if len(problems) > 0 {
		return errors.Wrap(hand.ErrConfiguration, strings.Join(problems, "; "))
	}
	if err := c.Gains().Validate(); err != nil {
		return errors.Wrap(err, "control")
	}
	if _, err := c.Tables(); err != nil {
		return err
	}
	return nil
}

// Tables builds the immutable mapping tables from the limits section.
func (c *Config) Tables() (*mapping.Tables, error) {
	raw, err := decodeLimits("limits.raw", c.Limits.Raw)
	if err != nil {
		return nil, err
	}
	visual, err := decodeLimits("limits.visual", c.Limits.Visual)
	if err != nil {
		return nil, err
	}
	return mapping.NewTables(raw, visual)
}

// Connection returns the bus ports to try.
func (c *Config) Connection() hand.ConnectionConfig {
	return hand.ConnectionConfig{Port: c.Bus.Port, FallbackPort: c.Bus.FallbackPort, BaudRate: c.Bus.BaudRate}
}

// Gains returns the control gains.
func (c *Config) Gains() hand.Gains {
	return hand.Gains{KP: c.Control.KP, KI: c.Control.KI, KD: c.Control.KD, CurrentLimit: c.Control.CurrentLimit}
}

// Scheduler returns the trajectory scheduler settings.
func (c *Config) Scheduler() trajectory.Config {
	return trajectory.Config{
		Settle:                 c.Playback.Settle,
		HoldInterval:           c.Playback.HoldInterval,
		SpinWindow:             c.Playback.SpinWindow,
		MaxConsecutiveTimeouts: c.Playback.MaxConsecutiveTimeouts,
	}
}

// SyncLoop returns the observe loop settings.
func (c *Config) SyncLoop() syncloop.Config {
	return syncloop.Config{Interval: c.Sync.Interval, MaxConsecutiveTimeouts: c.Playback.MaxConsecutiveTimeouts}
}

// MQTTSink returns the broker settings for the joint-state publisher.
func (c *Config) MQTTSink() syncloop.MQTTConfig {
	return syncloop.MQTTConfig{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Topic:    c.MQTT.Topic,
		QoS:      byte(c.MQTT.QoS),
		Retained: c.MQTT.Retained,
	}
}

func encodeLimits(table map[int]mapping.Range) map[string][]float64 {
	out := make(map[string][]float64, len(table))
	for i, r := range table {
		out[strconv.Itoa(i)] = []float64{r.Min, r.Max}
	}
	return out
}

func decodeLimits(name string, table map[string][]float64) (map[int]mapping.Range, error) {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[int]mapping.Range, len(table))
	for _, k := range keys {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, errors.Wrapf(hand.ErrConfiguration, "%s: joint key %q is not an index", name, k)
		}
		pair := table[k]
		if len(pair) != 2 {
			return nil, errors.Wrapf(hand.ErrConfiguration, "%s: joint %d needs [min, max], got %v", name, i, pair)
		}
		out[i] = mapping.Range{Min: pair[0], Max: pair[1]}
	}
	return out, nil
}
