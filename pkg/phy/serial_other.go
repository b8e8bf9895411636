//go:build !linux

package phy

// FindSerialPort is only supported on linux
func FindSerialPort(match string) (string, error) {
	return "", ErrNoSerialPort
}
