//go:build pico

package probe

import (
	"github.com/merliot/wifista"
	"github.com/merliot/wifista/drivers/cyw43439"
)

func Probe(staticIP wifista.IPInfo) wifista.Driver {
	return cyw43439.New(cyw43439.Config{StaticIP: staticIP})
}
