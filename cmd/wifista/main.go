// Command wifista brings up a Wi-Fi station, on a simulated radio or an
// ESP-AT modem on a serial port, and publishes its status.
//
//	wifista run --driver espat --port /dev/ttyUSB0 --ssid home --password secret
//	wifista console
package main

import (
	"os"
)

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
