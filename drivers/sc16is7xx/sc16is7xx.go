// Package sc16is7xx drives the NXP SC16IS752/SC16IS762 I2C-to-dual-UART
// bridge. Channel A and B map to identifiers 0 and 1, so one Device serves a
// whole UART registry:
//
//	d := sc16is7xx.New(i2c)
//	d.Configure(sc16is7xx.Config{Crystal: 14_745_600})
//	reg := uart.New(d)
//
// Transfers go through the 64-byte FIFOs. Send writes THR in bursts bounded by
// TXLVL; Receive reads RHR bounded by RXLVL. Both poll the level register with
// PollInterval until the buffer is done or Timeout passes.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package sc16is7xx

import (
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"periphcode-go/errcode"
	"periphcode-go/periph"
	"periphcode-go/types"
)

// Address is the 7-bit I2C address with A1 and A0 tied to VDD.
const Address = 0x48

// Registers. DLL/DLH overlay RHR/IER while LCR bit 7 is set; EFR overlays FCR
// while LCR holds lcrEnhanced.
const (
	regRHR   = 0x00 // read
	regTHR   = 0x00 // write
	regIER   = 0x01
	regFCR   = 0x02 // write
	regLCR   = 0x03
	regMCR   = 0x04
	regLSR   = 0x05
	regTXLVL = 0x08
	regRXLVL = 0x09
	regIOCtl = 0x0E
	regEFCR  = 0x0F

	regDLL = 0x00
	regDLH = 0x01
	regEFR = 0x02
)

const (
	lcrDivisorLatch = 0x80
	lcrEnhanced     = 0xBF
	lcrParityEnable = 0x08
	lcrEvenParity   = 0x10
	lcrTwoStop      = 0x04

	fcrEnable  = 0x01
	fcrResetRx = 0x02
	fcrResetTx = 0x04

	efrEnhanced = 0x10
	efrAutoRTS  = 0x40
	efrAutoCTS  = 0x80

	efcrDisableRx = 0x02
	efcrDisableTx = 0x04

	ioctlSoftReset = 0x08

	lsrOverrun = 0x02
	lsrParity  = 0x04
	lsrFraming = 0x08

	fifoSize = 64
	channels = 2
)

// Errors returned by the driver.
var (
	ErrChannel  = errors.New("sc16is7xx: channel out of range")
	ErrBaud     = &errcode.E{C: errcode.InvalidParams, Op: "sc16is7xx", Msg: "baud rate not reachable with crystal"}
	ErrTimeout  = &errcode.E{C: errcode.Timeout, Op: "sc16is7xx", Msg: "fifo wait timed out"}
	ErrLine     = errors.New("sc16is7xx: line error")
	ErrNotReady = errors.New("sc16is7xx: channel not initialised")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x48 if zero.
	Address uint16
	// Crystal is the XTAL1 frequency in Hz. Default 14.7456 MHz.
	Crystal uint32
	// PollInterval is slept between FIFO level reads. Default 1 ms.
	PollInterval time.Duration
	// Timeout bounds the wait for FIFO room or data per call. Default 1 s.
	Timeout time.Duration
}

// Device wraps an I2C connection to an SC16IS752.
type Device struct {
	bus drivers.I2C
	cfg Config

	mu  sync.Mutex // serialises bus transactions between channels
	buf [1 + fifoSize]byte
	up  [channels]bool
}

var _ periph.Driver[types.SerialConfig] = (*Device)(nil)

// New creates a Device with default settings. The I2C bus must already be
// configured. It does not touch the hardware.
func New(bus drivers.I2C) *Device {
	d := &Device{bus: bus}
	d.Configure(Config{})
	return d
}

// Configure applies cfg over the defaults.
func (d *Device) Configure(cfg Config) {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.Crystal == 0 {
		cfg.Crystal = 14_745_600
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	d.cfg = cfg
}

// Reset issues a software reset. Both channels return to power-on defaults.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.up = [channels]bool{}
	// The chip does not acknowledge the reset write; the error is expected.
	_ = d.write(0, regIOCtl, ioctlSoftReset)
	return nil
}

// subaddr builds the register address byte: reg in bits 6..3, channel in 2..1.
func subaddr(ch uint8, reg uint8) byte { return reg<<3 | ch<<1 }

// write and read expect d.mu held.
func (d *Device) write(ch, reg, v uint8) error {
	d.buf[0], d.buf[1] = subaddr(ch, reg), v
	return d.bus.Tx(d.cfg.Address, d.buf[:2], nil)
}

func (d *Device) read(ch, reg uint8) (uint8, error) {
	d.buf[0] = subaddr(ch, reg)
	var r [1]byte
	if err := d.bus.Tx(d.cfg.Address, d.buf[:1], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// divisor returns the baud divisor for a 16x sampling clock.
func (d *Device) divisor(baud uint32) (uint16, error) {
	if baud == 0 {
		return 0, ErrBaud
	}
	div := (d.cfg.Crystal + 8*baud) / (16 * baud)
	if div == 0 || div > 0xFFFF {
		return 0, ErrBaud
	}
	return uint16(div), nil
}

func lcrFor(c types.SerialConfig) uint8 {
	lcr := (c.DataBits - 5) & 0x03
	if c.StopBits == 2 {
		lcr |= lcrTwoStop
	}
	switch c.Parity {
	case types.ParityEven:
		lcr |= lcrParityEnable | lcrEvenParity
	case types.ParityOdd:
		lcr |= lcrParityEnable
	}
	return lcr
}

func channel(id periph.ID) (uint8, error) {
	if id >= channels {
		return 0, ErrChannel
	}
	return uint8(id), nil
}

// Init programs the line format, baud divisor, flow control and FIFOs.
func (d *Device) Init(id periph.ID, c types.SerialConfig) error {
	ch, err := channel(id)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	div, err := d.divisor(c.Baud)
	if err != nil {
		return err
	}
	var efr uint8 = efrEnhanced
	if c.FlowControl {
		efr |= efrAutoRTS | efrAutoCTS
	}
	lcr := lcrFor(c)

	d.mu.Lock()
	defer d.mu.Unlock()
	steps := []struct{ reg, v uint8 }{
		{regLCR, lcrEnhanced},
		{regEFR, efr},
		{regLCR, lcrDivisorLatch},
		{regDLL, uint8(div)},
		{regDLH, uint8(div >> 8)},
		{regLCR, lcr},
		{regFCR, fcrEnable | fcrResetRx | fcrResetTx},
		{regEFCR, 0},
		{regIER, 0},
	}
	for _, s := range steps {
		if err := d.write(ch, s.reg, s.v); err != nil {
			return err
		}
	}
	d.up[ch] = true
	return nil
}

// Deinit disables the transmitter and receiver and the FIFOs.
func (d *Device) Deinit(id periph.ID) error {
	ch, err := channel(id)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.up[ch] = false
	if err := d.write(ch, regEFCR, efcrDisableRx|efcrDisableTx); err != nil {
		return err
	}
	return d.write(ch, regFCR, 0)
}

// Send writes all of p, waiting for FIFO room as needed.
func (d *Device) Send(id periph.ID, p []byte) error {
	ch, err := channel(id)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(d.cfg.Timeout)
	for len(p) > 0 {
		n, err := d.sendBurst(ch, p)
		if err != nil {
			return err
		}
		p = p[n:]
		if n == 0 {
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			time.Sleep(d.cfg.PollInterval)
		}
	}
	return nil
}

func (d *Device) sendBurst(ch uint8, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.up[ch] {
		return 0, ErrNotReady
	}
	room, err := d.read(ch, regTXLVL)
	if err != nil {
		return 0, err
	}
	n := min(int(room), len(p), fifoSize)
	if n == 0 {
		return 0, nil
	}
	d.buf[0] = subaddr(ch, regTHR)
	copy(d.buf[1:], p[:n])
	if err := d.bus.Tx(d.cfg.Address, d.buf[:1+n], nil); err != nil {
		return 0, err
	}
	return n, nil
}

// Receive fills all of p, waiting for data as needed.
func (d *Device) Receive(id periph.ID, p []byte) error {
	ch, err := channel(id)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(d.cfg.Timeout)
	for len(p) > 0 {
		n, err := d.recvBurst(ch, p)
		if err != nil {
			return err
		}
		p = p[n:]
		if n == 0 {
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			time.Sleep(d.cfg.PollInterval)
		}
	}
	return nil
}

func (d *Device) recvBurst(ch uint8, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.up[ch] {
		return 0, ErrNotReady
	}
	lsr, err := d.read(ch, regLSR)
	if err != nil {
		return 0, err
	}
	if lsr&(lsrOverrun|lsrParity|lsrFraming) != 0 {
		return 0, errors.Join(ErrLine, lineError(lsr))
	}
	avail, err := d.read(ch, regRXLVL)
	if err != nil {
		return 0, err
	}
	n := min(int(avail), len(p), fifoSize)
	if n == 0 {
		return 0, nil
	}
	d.buf[0] = subaddr(ch, regRHR)
	if err := d.bus.Tx(d.cfg.Address, d.buf[:1], p[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

type lineError uint8

func (e lineError) Error() string {
	switch {
	case e&lsrOverrun != 0:
		return "overrun"
	case e&lsrFraming != 0:
		return "framing"
	default:
		return "parity"
	}
}
