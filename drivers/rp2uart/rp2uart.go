//go:build rp2040 || rp2350

// Package rp2uart drives the two on-chip UARTs of the RP2040/RP2350 through
// uartx. Identifier 0 is UART0 and 1 is UART1.
package rp2uart

import (
	"context"
	"errors"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"periphcode-go/errcode"
	"periphcode-go/periph"
	"periphcode-go/types"
)

var (
	ErrChannel = errors.New("rp2uart: channel out of range")
	ErrShort   = errors.New("rp2uart: short write")
)

// Pins selects the TX/RX pins of one UART.
type Pins struct {
	TX, RX machine.Pin
}

// Config controls pin routing and receive timing. All fields are optional.
type Config struct {
	// Pins defaults to GP0/GP1 for UART0 and GP4/GP5 for UART1.
	Pins [types.UARTCount]Pins
	// ReadTimeout bounds one Receive call. Default 1 s.
	ReadTimeout time.Duration
}

// Driver implements periph.Driver[types.SerialConfig].
type Driver struct {
	cfg Config
	hw  [types.UARTCount]*uartx.UART
}

var _ periph.Driver[types.SerialConfig] = (*Driver)(nil)

// New returns a driver for both on-chip UARTs. Hardware is only touched by Init.
func New(cfg Config) *Driver {
	if cfg.Pins == ([types.UARTCount]Pins{}) {
		cfg.Pins = [types.UARTCount]Pins{
			{TX: machine.GPIO0, RX: machine.GPIO1},
			{TX: machine.GPIO4, RX: machine.GPIO5},
		}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	return &Driver{cfg: cfg, hw: [types.UARTCount]*uartx.UART{uartx.UART0, uartx.UART1}}
}

func (d *Driver) port(id periph.ID) (*uartx.UART, error) {
	if int(id) >= len(d.hw) {
		return nil, ErrChannel
	}
	return d.hw[id], nil
}

func parity(p types.Parity) uartx.UARTParity {
	switch p {
	case types.ParityEven:
		return uartx.ParityEven
	case types.ParityOdd:
		return uartx.ParityOdd
	default:
		return uartx.ParityNone
	}
}

func (d *Driver) Init(id periph.ID, c types.SerialConfig) error {
	u, err := d.port(id)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if c.FlowControl {
		return &errcode.E{C: errcode.Unsupported, Op: "rp2uart", Msg: "hardware flow control"}
	}
	pins := d.cfg.Pins[id]
	if err := u.Configure(uartx.UARTConfig{BaudRate: c.Baud, TX: pins.TX, RX: pins.RX}); err != nil {
		return err
	}
	u.SetBaudRate(c.Baud)
	return u.SetFormat(c.DataBits, c.StopBits, parity(c.Parity))
}

// Deinit leaves the pins configured; uartx has no disable. The registry
// re-runs Init before the next use.
func (d *Driver) Deinit(id periph.ID) error {
	_, err := d.port(id)
	return err
}

func (d *Driver) Send(id periph.ID, p []byte) error {
	u, err := d.port(id)
	if err != nil {
		return err
	}
	n, err := u.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrShort
	}
	return nil
}

func (d *Driver) Receive(id periph.ID, p []byte) error {
	u, err := d.port(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ReadTimeout)
	defer cancel()
	for len(p) > 0 {
		n, err := u.RecvSomeContext(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return errcode.Wrap(errcode.Timeout, "rp2uart", err)
			}
			return err
		}
		p = p[n:]
	}
	return nil
}
