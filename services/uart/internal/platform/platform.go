// Package platform selects the UART driver for the build target.
package platform

import (
	"periphcode-go/periph"
	"periphcode-go/types"
)

// Driver is the hardware access layer behind the UART registry.
type Driver = periph.Driver[types.SerialConfig]

// Default returns the driver for this build and a short name for it.
func Default() (Driver, string) { return defaultDriver() }
