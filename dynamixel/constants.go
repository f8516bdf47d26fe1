// Package dynamixel provides low-level Dynamixel motor communication for the LEAP hand.
package dynamixel

import "time"

// Protocol and communication constants.
const (
	DefaultBaudRate    = 4000000
	DefaultReadTimeout = 100 * time.Millisecond

	// Control table addresses (XC330/XL330 series, Protocol 2.0)
	AddrTorqueEnable    uint16 = 64
	AddrGoalPosition    uint16 = 116
	AddrPresentPosition uint16 = 132

	// Position resolution
	TicksPerRevolution = 4096
)
