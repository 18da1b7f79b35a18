//go:build !((linux || darwin) && (amd64 || arm64))

package uartlib

import (
	"errors"

	"periphcode-go/periph"
	"periphcode-go/types"
)

var (
	ErrUnsupported = errors.New("uartlib: dynamic loading not supported on this platform")
	ErrCallFailed  = errors.New("uartlib: call returned false")
	ErrClosed      = errors.New("uartlib: library closed")
)

// Library is never loaded on this platform.
type Library struct{}

var _ periph.Driver[types.SerialConfig] = (*Library)(nil)

// Open always fails with ErrUnsupported.
func Open(path string) (*Library, error) { return nil, ErrUnsupported }

func (l *Library) Path() string { return "" }
func (l *Library) Close() error { return nil }
func (l *Library) Init(periph.ID, types.SerialConfig) error { return ErrUnsupported }
func (l *Library) Deinit(periph.ID) error { return ErrUnsupported }
func (l *Library) Send(periph.ID, []byte) error { return ErrUnsupported }
func (l *Library) Receive(periph.ID, []byte) error { return ErrUnsupported }
