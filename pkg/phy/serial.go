package phy

import (
	"errors"
	"fmt"

	"github.com/jacobsa/go-serial/serial"
)

var ErrNoSerialPort = errors.New("no matching serial port found")

// SerialConfig configures a serial line to a radio front end
type SerialConfig struct {
	Port     string // Device path; found by Match when empty
	Match    string // Substring of the device description to search for
	BaudRate uint
	RTSCTS   bool
}

// DefaultSerialConfig returns 115200 baud with hardware flow control
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate: 115200,
		RTSCTS:   true,
	}
}

// OpenSerial opens the configured port and frames envelopes on it
func OpenSerial(config SerialConfig) (*StreamChannel, error) {
	port := config.Port
	if port == "" {
		if config.Match == "" {
			return nil, ErrAddressRequired
		}
		found, err := FindSerialPort(config.Match)
		if err != nil {
			return nil, err
		}
		port = found
	}
	if config.BaudRate == 0 {
		config.BaudRate = DefaultSerialConfig().BaudRate
	}

	options := serial.OpenOptions{
		PortName:              port,
		BaudRate:              config.BaudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     config.RTSCTS,
		MinimumReadSize:       1,
		InterCharacterTimeout: 100,
	}

	device, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", port, err)
	}
	return NewStreamChannel(device), nil
}
