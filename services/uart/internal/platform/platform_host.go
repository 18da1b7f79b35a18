//go:build !rp2040 && !rp2350

package platform

import (
	"log/slog"
	"os"

	"periphcode-go/drivers/uartlib"
	"periphcode-go/drivers/uartsim"
)

// LibraryEnv names the vendor library to load on hosts. When unset, or when
// the library cannot be loaded, the in-memory simulator is used.
const LibraryEnv = "UARTLIB_PATH"

func defaultDriver() (Driver, string) {
	if path := os.Getenv(LibraryEnv); path != "" {
		lib, err := uartlib.Open(path)
		if err == nil {
			return lib, "uartlib:" + path
		}
		slog.Warn("vendor uart library unavailable, using simulator", "component", "platform", "path", path, "err", err)
	}
	return uartsim.New(uartsim.Config{}), "sim"
}
