//go:build (rp2040 || rp2350) && !uart_bridge

package platform

import "periphcode-go/drivers/rp2uart"

// On-chip UART0 on GP0/GP1 and UART1 on GP4/GP5.
func defaultDriver() (Driver, string) {
	return rp2uart.New(rp2uart.Config{}), "rp2"
}
