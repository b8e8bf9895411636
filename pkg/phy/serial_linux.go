//go:build linux

package phy

import (
	"strings"

	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

// FindSerialPort returns the path of the first serial device whose
// description contains match, ignoring case
func FindSerialPort(match string) (string, error) {
	devices, err := serialdet.List()
	if err != nil {
		return "", err
	}

	match = strings.ToLower(match)
	for _, device := range devices {
		description := strings.ToLower(device.Description())
		if strings.Contains(description, match) {
			return device.Path(), nil
		}
	}

	return "", ErrNoSerialPort
}
