//go:build !tinygo

package espat

import (
	"io"

	"github.com/tarm/serial"
)

// OpenSerial opens the modem's UART, e.g. /dev/ttyUSB0 at 115200 baud
func OpenSerial(name string, baud int) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = 115200
	}
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud})
}
