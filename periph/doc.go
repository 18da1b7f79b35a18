// Package periph manages exclusive, lazily constructed access to a fixed set
// of hardware peripheral instances shared by many goroutines.
//
// A Registry owns one slot per peripheral identifier. Slots are allocated
// once, when the registry is created, and hold their instance by value; the
// registry never grows. The first GetHandle for an identifier constructs the
// instance in its slot and brings the hardware up through the Driver. Later
// requests with an equal configuration share the same instance; a request
// with a different configuration is refused with errcode.ConfigConflict and
// leaves the live instance alone.
//
// Handles are reference counted. Clone adds a reference and Release drops
// one; when the last reference is released the instance is torn down in its
// slot and the slot may be constructed again, possibly with a different
// configuration:
//
//	h, err := reg.GetHandle(0, cfg)
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//	if err := h.Send(frame); err != nil {
//		return err
//	}
//
// Each instance carries its own I/O lock. Send and Receive on handles that
// alias one instance are mutually exclusive; transfers on different
// instances never wait for each other. Transact holds the lock across
// several transfers when a caller needs them to stay together.
package periph
