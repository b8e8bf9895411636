// Package config loads station configuration files for the LAPDm
// simulator. Files are YAML or TOML, selected by extension; durations are
// written as strings such as "220ms".
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"avaneesh/lapdm-go/pkg/driver"
	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/internal/logger"
	"avaneesh/lapdm-go/pkg/lapdm"
)

var (
	ErrUnknownFormat = errors.New("unknown configuration format")
	ErrInvalid       = errors.New("invalid configuration")
)

// Format is a configuration file syntax
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Duration is a time.Duration that decodes from strings like "1.5s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config describes one simulated station
type Config struct {
	Name       string `toml:"name" yaml:"name"`
	Role       string `toml:"role" yaml:"role"` // "ms" or "bts"
	ChanNr     uint8  `toml:"chan_nr" yaml:"chan_nr"`
	LogLevel   string `toml:"log_level" yaml:"log_level"`
	FrameDebug bool   `toml:"frame_debug" yaml:"frame_debug"`

	Transport Transport `toml:"transport" yaml:"transport"`
	LAPDm     LAPDm     `toml:"lapdm" yaml:"lapdm"`
	Driver    Driver    `toml:"driver" yaml:"driver"`
	Sim       Sim       `toml:"sim" yaml:"sim"`
}

// LAPDm holds the channel parameters. Zero values select protocol defaults.
type LAPDm struct {
	PollingOnly    bool     `toml:"polling_only" yaml:"polling_only"`
	EmptyFrame     bool     `toml:"empty_frame" yaml:"empty_frame"`
	T200DCCH       Duration `toml:"t200_dcch" yaml:"t200_dcch"`
	T200ACCH       Duration `toml:"t200_acch" yaml:"t200_acch"`
	N200EstRel     int      `toml:"n200_est_rel" yaml:"n200_est_rel"`
	N200DCCH       int      `toml:"n200_dcch" yaml:"n200_dcch"`
	N200ACCH       int      `toml:"n200_acch" yaml:"n200_acch"`
	WindowSize     int      `toml:"window_size" yaml:"window_size"`
	MaxMessageSize int      `toml:"max_message_size" yaml:"max_message_size"`
}

// Driver holds the Layer 1 emulation timing
type Driver struct {
	BlockInterval  Duration `toml:"block_interval" yaml:"block_interval"`
	ACCHEvery      int      `toml:"acch_every" yaml:"acch_every"`
	WriteQueueSize int      `toml:"write_queue_size" yaml:"write_queue_size"`
}

// Sim holds the behaviour of the simulated Layer 3
type Sim struct {
	RA                   uint8  `toml:"ra" yaml:"ra"`                                       // Random access reference sent by an MS
	ContentionResolution string `toml:"contention_resolution" yaml:"contention_resolution"` // Hex octets carried in the SABM
	Echo                 bool   `toml:"echo" yaml:"echo"`                                   // A BTS echoes every message back
}

// Default returns the configuration of a BTS listening on TCP
func Default() Config {
	lapdmDefaults := lapdm.DefaultChannelConfig()
	driverDefaults := driver.DefaultConfig()

	return Config{
		Name:     "lapdm",
		Role:     "bts",
		ChanNr:   0x20,
		LogLevel: "info",
		Transport: Transport{
			Type:           TransportTCP,
			Address:        "127.0.0.1:4729",
			ReconnectDelay: Duration{5 * time.Second},
			BaudRate:       115200,
		},
		LAPDm: LAPDm{
			N200EstRel:     lapdmDefaults.N200EstRel,
			N200DCCH:       lapdmDefaults.N200DCCH,
			N200ACCH:       lapdmDefaults.N200ACCH,
			WindowSize:     lapdmDefaults.WindowSize,
			MaxMessageSize: lapdmDefaults.MaxMessageSize,
		},
		Driver: Driver{
			BlockInterval:  Duration{driverDefaults.BlockInterval},
			ACCHEvery:      driverDefaults.ACCHEvery,
			WriteQueueSize: driverDefaults.WriteQueueSize,
		},
		Sim: Sim{
			RA:                   0x23,
			ContentionResolution: "062707035008",
			Echo:                 true,
		},
	}
}

// Load reads a configuration file on top of the defaults
func Load(path string) (Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data on top of the defaults and validates the result
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
		}
	default:
		return Config{}, ErrUnknownFormat
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	info, err := c.ContentionResolution()
	if err != nil {
		return err
	}
	if len(info) > frame.N201DCCH {
		return fmt.Errorf("%w: contention resolution of %d octets", ErrInvalid, len(info))
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.ChannelConfig().Validate(); err != nil {
		return err
	}
	return c.DriverConfig().Validate()
}

// Mode returns the channel role
func (c Config) Mode() (frame.Role, error) {
	switch strings.ToLower(c.Role) {
	case "bts", "network":
		return frame.RoleBTS, nil
	case "ms", "mobile":
		return frame.RoleMS, nil
	default:
		return 0, fmt.Errorf("%w: role %q", ErrInvalid, c.Role)
	}
}

// ContentionResolution decodes the hex SABM information field
func (c Config) ContentionResolution() ([]byte, error) {
	info, err := hex.DecodeString(strings.ReplaceAll(c.Sim.ContentionResolution, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: contention resolution %q: %v", ErrInvalid, c.Sim.ContentionResolution, err)
	}
	return info, nil
}

// ChannelConfig converts the LAPDm section
func (c Config) ChannelConfig() lapdm.ChannelConfig {
	cfg := lapdm.DefaultChannelConfig()
	if c.LAPDm.PollingOnly {
		cfg.Flags |= lapdm.FlagPollingOnly
	}
	if c.LAPDm.EmptyFrame {
		cfg.Flags |= lapdm.FlagEmptyFrame
	}
	cfg.T200DCCH = c.LAPDm.T200DCCH.Duration
	cfg.T200ACCH = c.LAPDm.T200ACCH.Duration
	cfg.N200EstRel = c.LAPDm.N200EstRel
	cfg.N200DCCH = c.LAPDm.N200DCCH
	cfg.N200ACCH = c.LAPDm.N200ACCH
	cfg.WindowSize = c.LAPDm.WindowSize
	cfg.MaxMessageSize = c.LAPDm.MaxMessageSize
	cfg.Logger = logger.GetDefault()
	return cfg
}

// DriverConfig converts the driver section
func (c Config) DriverConfig() driver.Config {
	return driver.Config{
		BlockInterval:  c.Driver.BlockInterval.Duration,
		ACCHEvery:      c.Driver.ACCHEvery,
		WriteQueueSize: c.Driver.WriteQueueSize,
		Logger:         logger.GetDefault(),
	}
}

// ApplyLogging installs the default logger at the configured level and
// returns it
func (c Config) ApplyLogging() logger.Logger {
	level, _ := logger.ParseLevel(c.LogLevel)
	log := logger.NewDefaultLogger(level)
	logger.SetDefault(log)
	logger.SetFrameDebug(c.FrameDebug)
	return log
}
