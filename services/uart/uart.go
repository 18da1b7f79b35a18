// Package uart is the UART flavour of the peripheral registry. It fixes the
// configuration type to types.SerialConfig and the slot count to the number
// of UART channels, and keeps one process-wide registry for callers that do
// not build their own.
package uart

import (
	"sync"

	"periphcode-go/periph"
	"periphcode-go/services/uart/internal/platform"
	"periphcode-go/types"
)

type (
	Config   = types.SerialConfig
	Registry = periph.Registry[types.SerialConfig]
	Handle   = periph.Handle[types.SerialConfig]
	Driver   = periph.Driver[types.SerialConfig]
)

// Channel identifiers.
const (
	UART0 = periph.ID(types.UART0)
	UART1 = periph.ID(types.UART1)
)

// New builds a UART registry over drv. Options default the name to "uart".
func New(drv Driver, opts ...periph.Option) *Registry {
	opts = append([]periph.Option{periph.WithName("uart")}, opts...)
	return periph.New[types.SerialConfig](types.UARTCount, drv, opts...)
}

var defaultRegistry = sync.OnceValues(func() (*Registry, string) {
	drv, name := platform.Default()
	return New(drv), name
})

// Default returns the process-wide registry, creating it with the platform
// driver on first use. It lives until the process exits.
func Default() *Registry {
	r, _ := defaultRegistry()
	return r
}

// Backend names the driver behind Default.
func Backend() string {
	_, name := defaultRegistry()
	return name
}

// Open validates cfg and returns a handle from the default registry.
func Open(id periph.ID, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Default().GetHandle(id, cfg)
}

// Status reports which channels of the default registry are constructed.
func Status() []bool { return Default().IsConstructedAll() }
