package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"periphcode-go/bus"
	"periphcode-go/errcode"
	"periphcode-go/types"
)

// -----------------------------------------------------------------------------
// String constants
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	uartKey      = "uart"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Document
// -----------------------------------------------------------------------------

// PortConfig is the line configuration requested for one UART channel.
type PortConfig struct {
	ID uint8 `json:"id"`
	types.SerialConfig
}

// UnmarshalJSON fills fields missing from the document with
// types.DefaultSerialConfig values.
func (p *PortConfig) UnmarshalJSON(b []byte) error {
	type plain PortConfig
	v := plain{SerialConfig: types.DefaultSerialConfig()}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = PortConfig(v)
	return nil
}

// Document is a device configuration.
type Document struct {
	UARTs []PortConfig `json:"uarts"`
}

// Port returns the configuration for id, if the document has one.
func (d Document) Port(id uint8) (PortConfig, bool) {
	for _, p := range d.UARTs {
		if p.ID == id {
			return p, true
		}
	}
	return PortConfig{}, false
}

// Decode parses and validates a configuration document.
func Decode(raw []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return Document{}, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "decode", Err: err}
	}
	seen := map[uint8]bool{}
	for _, p := range d.UARTs {
		if p.ID >= types.UARTCount {
			return Document{}, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: fmt.Sprintf("uart id %d outside [0, %d)", p.ID, types.UARTCount)}
		}
		if seen[p.ID] {
			return Document{}, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: fmt.Sprintf("uart id %d listed twice", p.ID)}
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			return Document{}, fmt.Errorf("config: uart %d: %w", p.ID, err)
		}
	}
	return d, nil
}

// Load reads a document from a file path, or from the embedded config of
// the named device when path is empty.
func Load(path, device string) (Document, error) {
	if path == "" {
		raw, ok := EmbeddedConfigLookup(device)
		if !ok || len(raw) == 0 {
			return Document{}, errors.New("no embedded config for device: " + device)
		}
		return Decode(raw)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Decode(raw)
}

// Topic is where the configuration of a UART channel is published.
func Topic(id uint8) bus.Topic {
	return bus.T(configPrefix, uartKey, strconv.Itoa(int(id)))
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	log  *slog.Logger
}

func NewConfigService() *ConfigService {
	return &ConfigService{
		Name: serviceName,
		log:  slog.Default().With("component", serviceName),
	}
}

// publishConfig decodes the device config and publishes each UART entry as a
// retained message on Topic(id).
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	doc, err := Load("", device)
	if err != nil {
		return err
	}
	for _, p := range doc.UARTs {
		conn.Publish(&bus.Message{
			Topic:    Topic(p.ID),
			Payload:  p,
			Retained: true,
		})
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			s.log.Warn("config not published", "err", err)
		}
	}()
}
