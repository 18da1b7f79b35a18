//go:build (linux || darwin) && (amd64 || arm64)

package uartlib

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"periphcode-go/types"
)

func TestOpenMissingLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libnouart.so")
	l, err := Open(path)
	if err == nil {
		l.Close()
		t.Fatal("Open succeeded for a missing library")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q does not name the path", err)
	}
}

func TestOpenNotALibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libbogus.so")
	if err := os.WriteFile(path, []byte("not an ELF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("Open succeeded for a non-library file")
	}
}

// A library built from the vendor header can be tested by pointing
// UARTLIB_PATH at it.
func TestVendorLibrary(t *testing.T) {
	path := os.Getenv("UARTLIB_PATH")
	if path == "" {
		t.Skip("UARTLIB_PATH not set")
	}
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.Init(0, types.DefaultSerialConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := l.Send(0, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 4)
	if err := l.Receive(0, buf); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := l.Deinit(0); err != nil {
		t.Fatalf("Deinit: %v", err)
	}

	l.Close()
	if err := l.Send(0, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v", err)
	}
}
