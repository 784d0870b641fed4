package transport

import (
	"fmt"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// DefaultBaudRate is used when a serial resource does not name one
const DefaultBaudRate = 9600

// VTIME is a single byte of deciseconds
const maxInterCharacterTimeout = 25500

// OpenSerial opens an RS-232 link. The port read timeout is the
// inter-character timeout, rounded up to the 100 ms granularity of termios.
func OpenSerial(device string, baud int, timeout time.Duration) (Transport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ms := (timeout.Milliseconds() + 99) / 100 * 100
	if ms > maxInterCharacterTimeout {
		ms = maxInterCharacterTimeout
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:              device,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(ms),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}

	return newStream("serial:"+device, port, nil, timeout), nil
}
