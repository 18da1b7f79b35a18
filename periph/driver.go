package periph

import (
	"math"
	"strconv"
)

// ID identifies a peripheral and indexes its slot.
type ID uint8

// Invalid is never a valid slot index.
const Invalid ID = math.MaxUint8

// MaxSlots bounds the number of slots a registry may be created with.
const MaxSlots = 64

// MaxTransfer is the largest buffer a single Send or Receive hands to the
// driver; hardware transfer counts are 16 bits wide.
const MaxTransfer = math.MaxUint16

func (id ID) String() string {
	if id == Invalid {
		return "invalid"
	}
	return strconv.Itoa(int(id))
}

// Driver is the hardware-access API behind a registry. Calls are synchronous
// and may block. The registry serialises every call for one ID, so an
// implementation only needs to guard state shared between IDs.
type Driver[C any] interface {
	// Init brings the peripheral up with cfg.
	Init(id ID, cfg C) error
	// Deinit releases the peripheral.
	Deinit(id ID) error
	// Send transmits all of p.
	Send(id ID, p []byte) error
	// Receive fills all of p.
	Receive(id ID, p []byte) error
}

type op uint8

const (
	opSend op = iota
	opReceive
	opInit
	opDeinit
)

func (o op) String() string {
	switch o {
	case opSend:
		return "send"
	case opReceive:
		return "receive"
	case opInit:
		return "init"
	default:
		return "deinit"
	}
}
