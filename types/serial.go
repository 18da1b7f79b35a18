package types

import (
	"fmt"

	"periphcode-go/errcode"
)

// ------------------------
// Serial
// ------------------------

// UART channel identifiers. They index the registry's slots directly.
const (
	UART0 uint8 = iota
	UART1

	UARTCount = 2
)

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

func (p *Parity) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"none"`, `""`, `null`:
		*p = ParityNone
	case `"even"`:
		*p = ParityEven
	case `"odd"`:
		*p = ParityOdd
	default:
		return &errcode.E{C: errcode.InvalidParams, Op: "parity", Msg: string(b)}
	}
	return nil
}

// SerialConfig is the full line configuration of a UART channel.
// Two configurations are compatible only when every field is equal (==).
type SerialConfig struct {
	Baud        uint32 `json:"baud"`
	DataBits    uint8  `json:"data_bits"`
	Parity      Parity `json:"parity"`
	StopBits    uint8  `json:"stop_bits"`
	FlowControl bool   `json:"flow_control"`
}

// DefaultSerialConfig is 115200 baud, 8N1, no flow control.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{Baud: 115200, DataBits: 8, Parity: ParityNone, StopBits: 1}
}

// Validate reports whether the configuration can be programmed into a UART.
func (c SerialConfig) Validate() error {
	switch {
	case c.Baud == 0:
		return &errcode.E{C: errcode.InvalidParams, Op: "serial", Msg: "baud must be > 0"}
	case c.DataBits < 5 || c.DataBits > 8:
		return &errcode.E{C: errcode.InvalidParams, Op: "serial", Msg: fmt.Sprintf("data bits %d not in 5..8", c.DataBits)}
	case c.StopBits != 1 && c.StopBits != 2:
		return &errcode.E{C: errcode.InvalidParams, Op: "serial", Msg: fmt.Sprintf("stop bits %d not 1 or 2", c.StopBits)}
	case c.Parity > ParityOdd:
		return &errcode.E{C: errcode.InvalidParams, Op: "serial", Msg: "unknown parity"}
	}
	return nil
}

// String renders the configuration as e.g. "9600 8N1" or "115200 7E2 rtscts".
func (c SerialConfig) String() string {
	par := byte('N')
	switch c.Parity {
	case ParityEven:
		par = 'E'
	case ParityOdd:
		par = 'O'
	}
	s := fmt.Sprintf("%d %d%c%d", c.Baud, c.DataBits, par, c.StopBits)
	if c.FlowControl {
		s += " rtscts"
	}
	return s
}
