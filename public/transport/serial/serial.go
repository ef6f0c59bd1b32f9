package serial

import (
	"fmt"

	"go.bug.st/serial"
)

const (
	DefaultPortSpeed = 115200 //921600
)

func Connect(port string) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: DefaultPortSpeed,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", port, err)
	}
	return p, nil
}

// GetPorts lists the serial ports present on the host.
func GetPorts() ([]string, error) {
	return serial.GetPortsList()
}
