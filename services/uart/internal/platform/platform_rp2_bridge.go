//go:build (rp2040 || rp2350) && uart_bridge

package platform

import (
	"machine"

	"periphcode-go/drivers/sc16is7xx"
)

// An SC16IS752 on i2c0 at 400 kHz with board-default pins.
func defaultDriver() (Driver, string) {
	b := machine.I2C0
	_ = b.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	return sc16is7xx.New(b), "sc16is752"
}
