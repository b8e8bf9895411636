package config

import (
	"fmt"
	"strings"

	"avaneesh/lapdm-go/pkg/phy"
)

// Transport types
const (
	TransportTCP    = "tcp"
	TransportUDP    = "udp"
	TransportQUIC   = "quic"
	TransportSerial = "serial"
)

// Transport selects and configures the physical channel
type Transport struct {
	Type           string   `toml:"type" yaml:"type"`
	Address        string   `toml:"address" yaml:"address"`
	Server         bool     `toml:"server" yaml:"server"`
	ReconnectDelay Duration `toml:"reconnect_delay" yaml:"reconnect_delay"`

	SerialPort  string `toml:"serial_port" yaml:"serial_port"`
	SerialMatch string `toml:"serial_match" yaml:"serial_match"`
	BaudRate    uint   `toml:"baud_rate" yaml:"baud_rate"`
	RTSCTS      bool   `toml:"rtscts" yaml:"rtscts"`
}

// Validate checks that the selected transport has what it needs
func (t Transport) Validate() error {
	switch strings.ToLower(t.Type) {
	case TransportTCP, TransportUDP, TransportQUIC:
		if t.Address == "" {
			return fmt.Errorf("%w: %s transport without address", ErrInvalid, t.Type)
		}
	case TransportSerial:
		if t.SerialPort == "" && t.SerialMatch == "" {
			return fmt.Errorf("%w: serial transport needs serial_port or serial_match", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: transport type %q", ErrInvalid, t.Type)
	}
	return nil
}

// Open creates the physical channel
func (t Transport) Open() (phy.PhysicalChannel, error) {
	var (
		ch  phy.PhysicalChannel
		err error
	)

	switch strings.ToLower(t.Type) {
	case TransportTCP:
		var tc *phy.TCPChannel
		if tc, err = phy.NewTCPChannel(phy.TCPChannelConfig{
			Address:        t.Address,
			IsServer:       t.Server,
			ReconnectDelay: t.ReconnectDelay.Duration,
		}); err == nil {
			ch = tc
		}
	case TransportUDP:
		var uc *phy.UDPChannel
		if uc, err = phy.NewUDPChannel(phy.UDPChannelConfig{
			Address:  t.Address,
			IsServer: t.Server,
		}); err == nil {
			ch = uc
		}
	case TransportQUIC:
		var qc *phy.QUICChannel
		if qc, err = phy.NewQUICChannel(phy.QUICChannelConfig{
			Address:        t.Address,
			IsServer:       t.Server,
			ReconnectDelay: t.ReconnectDelay.Duration,
		}); err == nil {
			ch = qc
		}
	case TransportSerial:
		var sc *phy.StreamChannel
		if sc, err = phy.OpenSerial(phy.SerialConfig{
			Port:     t.SerialPort,
			Match:    t.SerialMatch,
			BaudRate: t.BaudRate,
			RTSCTS:   t.RTSCTS,
		}); err == nil {
			ch = sc
		}
	default:
		err = fmt.Errorf("%w: transport type %q", ErrInvalid, t.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("%s transport: %w", t.Type, err)
	}
	return ch, nil
}
