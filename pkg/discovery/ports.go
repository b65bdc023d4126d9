// Package discovery finds serial ports that may carry a servo bus and
// probes them for servos.
package discovery

import (
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Port describes one serial port.
type Port struct {
	Name   string `json:"name"`
	USB    bool   `json:"usb"`
	VID    string `json:"vid,omitempty"`
	PID    string `json:"pid,omitempty"`
	Serial string `json:"serial,omitempty"`
}

// Suffix returns a short name for the port, suitable for labels.
func (p Port) Suffix() string {
	return PortSuffix(p.Name)
}

// Lister enumerates the serial ports present on the system.
type Lister func() ([]*enumerator.PortDetails, error)

// SystemPorts lists ports with go.bug.st/serial.
func SystemPorts() ([]*enumerator.PortDetails, error) {
	return enumerator.GetDetailedPortsList()
}

// Candidates returns the ports that look like servo adapters, sorted by name.
func Candidates(list Lister) ([]Port, error) {
	details, err := list()
	if err != nil {
		return nil, err
	}
	var ports []Port
	for _, d := range details {
		if d == nil || !IsCandidatePort(d.Name) {
			continue
		}
		ports = append(ports, Port{
			Name:   d.Name,
			USB:    d.IsUSB,
			VID:    d.VID,
			PID:    d.PID,
			Serial: d.SerialNumber,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// IsCandidatePort reports whether a port name matches a USB serial adapter.
func IsCandidatePort(name string) bool {
	// Bluetooth serial ports on macOS never carry a bus.
	if strings.Contains(name, "Bluetooth") {
		return false
	}
	for _, prefix := range []string{
		"/dev/ttyUSB", "/dev/ttyACM",
		"/dev/tty.usbmodem", "/dev/tty.usbserial",
		"/dev/cu.usbmodem", "/dev/cu.usbserial",
		"COM",
	} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// PortSuffix shortens a port path: /dev/ttyUSB0 becomes ttyUSB0 and
// /dev/tty.usbmodem123 becomes usbmodem123.
func PortSuffix(name string) string {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}
