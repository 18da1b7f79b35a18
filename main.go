package main

import (
	"context"
	"time"

	"periphcode-go/bus"
	"periphcode-go/periph"
	"periphcode-go/services/config"
	"periphcode-go/services/heartbeat"
	"periphcode-go/services/uart"
)

const device = "pico"

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot, uart backend:", uart.Backend())

	doc, err := config.Load("", device)
	if err != nil {
		println("config:", err.Error())
		return
	}
	p0, ok := doc.Port(uint8(uart.UART0))
	if !ok {
		println("config: no uart0 entry")
		return
	}

	ctx := context.Background()
	b := bus.NewBus(4)
	cfgConn := b.NewConnection("config")
	hbConn := b.NewConnection("heartbeat")

	config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, device), cfgConn)

	h, err := uart.Open(uart.UART0, p0.SerialConfig)
	if err != nil {
		println("uart0:", err.Error())
		return
	}
	defer h.Release()
	println("uart0 up at", p0.SerialConfig.String(), "ready:", h.Ready())

	hb := &heartbeat.Service{Out: h, Interval: time.Second}
	_ = hb.Start(ctx, hbConn)

	// Periodic status.
	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	for t := range tick.C {
		print(t.Format("15:04:05"), " uarts:")
		for i, live := range uart.Status() {
			print(" ", periph.ID(i).String(), "=", live)
		}
		println()
	}
}
