//go:build (linux || darwin) && (amd64 || arm64)

// Package uartlib binds a vendor UART shared library at run time with purego,
// so no cgo toolchain is needed. The library must export:
//
//	bool api_uart_init(uint8_t id, uint32_t baud, uint8_t data_bits,
//	                   uint8_t parity, uint8_t stop_bits, bool flow);
//	bool api_uart_deinit(uint8_t id);
//	bool api_uart_send(uint8_t id, const uint8_t *buf, uint16_t len);
//	bool api_uart_receive(uint8_t id, uint8_t *buf, uint16_t len);
//
// A false result is reported as ErrCallFailed wrapped with the function name.
package uartlib

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"

	"periphcode-go/periph"
	"periphcode-go/types"
)

// Errors returned by the binding.
var (
	ErrCallFailed = errors.New("uartlib: call returned false")
	ErrClosed     = errors.New("uartlib: library closed")
)

// Library is a loaded vendor library. It implements
// periph.Driver[types.SerialConfig].
type Library struct {
	path string

	mu     sync.RWMutex
	handle uintptr

	uartInit    func(id uint8, baud uint32, dataBits, parity, stopBits uint8, flow bool) bool
	uartDeinit  func(id uint8) bool
	uartSend    func(id uint8, buf *byte, n uint16) bool
	uartReceive func(id uint8, buf *byte, n uint16) bool
}

var _ periph.Driver[types.SerialConfig] = (*Library)(nil)

// Open loads the library at path and binds the UART entry points.
func Open(path string) (l *Library, err error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("uartlib: open %s: %w", path, err)
	}
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			_ = purego.Dlclose(h)
			l, err = nil, fmt.Errorf("uartlib: bind %s: %v", path, r)
		}
	}()

	l = &Library{path: path, handle: h}
	purego.RegisterLibFunc(&l.uartInit, h, "api_uart_init")
	purego.RegisterLibFunc(&l.uartDeinit, h, "api_uart_deinit")
	purego.RegisterLibFunc(&l.uartSend, h, "api_uart_send")
	purego.RegisterLibFunc(&l.uartReceive, h, "api_uart_receive")
	return l, nil
}

// Path returns the path the library was loaded from.
func (l *Library) Path() string { return l.path }

// Close unloads the library. Calls after Close return ErrClosed.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	return err
}

// call runs fn with the library pinned open.
func (l *Library) call(name string, fn func() bool) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.handle == 0 {
		return ErrClosed
	}
	if !fn() {
		return fmt.Errorf("%w: %s", ErrCallFailed, name)
	}
	return nil
}

func (l *Library) Init(id periph.ID, c types.SerialConfig) error {
	return l.call("api_uart_init", func() bool {
		return l.uartInit(uint8(id), c.Baud, c.DataBits, uint8(c.Parity), c.StopBits, c.FlowControl)
	})
}

func (l *Library) Deinit(id periph.ID) error {
	return l.call("api_uart_deinit", func() bool { return l.uartDeinit(uint8(id)) })
}

// Send and Receive expect 0 < len(p) <= periph.MaxTransfer; the registry
// enforces that before the call.
func (l *Library) Send(id periph.ID, p []byte) error {
	if len(p) == 0 || len(p) > periph.MaxTransfer {
		return fmt.Errorf("uartlib: send length %d", len(p))
	}
	return l.call("api_uart_send", func() bool { return l.uartSend(uint8(id), &p[0], uint16(len(p))) })
}

func (l *Library) Receive(id periph.ID, p []byte) error {
	if len(p) == 0 || len(p) > periph.MaxTransfer {
		return fmt.Errorf("uartlib: receive length %d", len(p))
	}
	return l.call("api_uart_receive", func() bool { return l.uartReceive(uint8(id), &p[0], uint16(len(p))) })
}
