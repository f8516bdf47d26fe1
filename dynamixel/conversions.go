package dynamixel

import (
	"encoding/binary"
	"math"
)

// TicksToRadians converts encoder ticks to raw hand radians. Tick 0 is 0 rad,
// so the motor centre (2048) reads as π.
func TicksToRadians(ticks int) float64 {
	return float64(ticks) * (2.0 * math.Pi / float64(TicksPerRevolution))
}

// RadiansToTicks converts raw hand radians to encoder ticks.
func RadiansToTicks(radians float64) int {
	return int(math.Round(radians * (float64(TicksPerRevolution) / (2.0 * math.Pi))))
}

// BytesToInt32 converts 4 bytes (little-endian) to an int32.
func BytesToInt32(data []byte) int32 {
	if len(data) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(data))
}

// Int32ToBytes converts an int32 to 4 bytes (little-endian).
func Int32ToBytes(val int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(val))
	return buf
}

// ValueToBytes encodes val little-endian into a register of size 1, 2 or 4 bytes.
func ValueToBytes(val int, size int) []byte {
	switch size {
	case 1:
		return []byte{byte(val)}
	case 2:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(val))
		return buf
	default:
		return Int32ToBytes(int32(val))
	}
}
