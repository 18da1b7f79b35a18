package main

import (
	"context"
	"testing"
	"time"

	"periphcode-go/bus"
	"periphcode-go/drivers/uartsim"
	"periphcode-go/periph"
	"periphcode-go/services/uart"
)

func TestWatchEventsSeesDestroyBeforeStopping(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test-events")
	defer conn.Disconnect()
	reg := uart.New(uartsim.New(uartsim.Config{}), periph.WithBus(conn))

	events := watchEvents(t.Context(), conn, reg, 4)
	for range 2 {
		h, err := reg.GetHandle(uart.UART1, uart.Config{Baud: 9600, DataBits: 8, StopBits: 1})
		if err != nil {
			t.Fatal(err)
		}
		h.Release()
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	if n := events.Wait(ctx); n != 4 {
		t.Errorf("events seen = %d, want 4", n)
	}
}
