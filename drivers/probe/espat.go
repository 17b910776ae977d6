//go:build challenger_rp2040

package probe

import (
	"machine"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/drivers/espat"
)

// uart blocks reads until data arrives; machine.UART returns empty reads
type uart struct {
	*machine.UART
}

func (u uart) Read(p []byte) (int, error) {
	for {
		n, err := u.UART.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		time.Sleep(time.Millisecond)
	}
}

// Probe returns the ESP-AT coprocessor.  The modem gets its own lease, so
// staticIP is unused.
func Probe(staticIP wifista.IPInfo) wifista.Driver {
	machine.UART1.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART1_TX_PIN,
		RX:       machine.UART1_RX_PIN,
	})
	return espat.NewDevice(uart{machine.UART1}, espat.Config{})
}
