package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `{
  "uarts": [
    {"id": 0, "baud": 9600},
    {"id": 1, "baud": 115200}
  ]
}`

const cfgHost = `{
  "uarts": [
    {"id": 0, "baud": 9600},
    {"id": 1, "baud": 57600, "parity": "even", "stop_bits": 2}
  ]
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}
