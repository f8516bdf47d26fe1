package dynamixel

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	protocol "github.com/haguro/go-dxl/protocol/v2"
	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/clintpurser/leaphand/hand"
)

// ErrNotOpen is returned when operations are attempted on a closed driver.
var ErrNotOpen = errors.New("driver not open")

// Driver talks to the hand's motors over one serial port. It implements hand.Bus.
type Driver struct {
	port    serial.Port
	handler *protocol.Handler
	mu      sync.Mutex
	isOpen  bool
}

var _ hand.Bus = (*Driver)(nil)

// Open opens portName and returns a driver for the motors behind it.
func Open(portName string, baudRate int, readTimeout time.Duration) (*Driver, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Driver{
		port:    port,
		handler: protocol.NewHandler(port, readTimeout),
		isOpen:  true,
	}, nil
}

// Dialer returns a hand.Dialer that opens drivers with the given read timeout.
func Dialer(readTimeout time.Duration) hand.Dialer {
	return func(port string, baudRate int) (hand.Bus, error) {
		d, err := Open(port, baudRate, readTimeout)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Close closes the driver and releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isOpen {
		return nil
	}

	d.isOpen = false
	return d.port.Close()
}

// checkOpen verifies the driver is open.
func (d *Driver) checkOpen() error {
	if !d.isOpen {
		return ErrNotOpen
	}
	return nil
}

// WriteRegister writes values[k] to register addr of motor ids[k].
func (d *Driver) WriteRegister(ids []int, values []int, addr uint16, size int) error {
	if len(ids) != len(values) {
		return fmt.Errorf("expected %d register values, got %d", len(ids), len(values))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return err
	}

	for k, id := range ids {
		if err := d.write(id, addr, ValueToBytes(values[k], size)); err != nil {
			return errors.Wrapf(err, "register %d", addr)
		}
	}
	return nil
}

// SetTorqueEnabled enables or disables torque on the specified motors.
func (d *Driver) SetTorqueEnabled(ids []int, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return err
	}

	var value byte
	if enabled {
		value = 1
	}
	for _, id := range ids {
		if err := d.write(id, AddrTorqueEnable, []byte{value}); err != nil {
			return errors.Wrapf(err, "torque enable=%t", enabled)
		}
	}
	return nil
}

// WriteDesiredPosition writes goal positions, in raw hand radians, one motor
// at a time. A communication failure at motor k leaves motors before k on
// their new goal. Hardware status errors (like data limit errors) are ignored:
// the motor still moves to the closest valid position.
func (d *Driver) WriteDesiredPosition(ids []int, positions []float64) error {
	if len(ids) != len(positions) {
		return fmt.Errorf("expected %d positions, got %d", len(ids), len(positions))
	}
	for k, pos := range positions {
		if math.IsNaN(pos) || math.IsInf(pos, 0) {
			return errors.Wrapf(hand.ErrValidation, "motor %d goal is %g", ids[k], pos)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return err
	}

	for k, id := range ids {
		data := Int32ToBytes(int32(RadiansToTicks(positions[k])))
		if err := d.write(id, AddrGoalPosition, data); err != nil {
			return errors.Wrap(err, "goal position")
		}
	}
	return nil
}

// ReadPosition reads the present position of each motor, in raw hand radians.
func (d *Driver) ReadPosition(ids []int) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	positions := make([]float64, len(ids))
	for k, id := range ids {
		data, err := d.handler.Read(byte(id), AddrPresentPosition, 4)
		if err != nil {
			return nil, errors.Wrapf(hand.ErrTimeout, "failed to read position from motor %d: %v", id, err)
		}
		positions[k] = TicksToRadians(int(BytesToInt32(data)))
	}
	return positions, nil
}

// write sends one register write. Communication failures are reported as
// hand.ErrTimeout; hardware status errors are dropped.
func (d *Driver) write(id int, addr uint16, data []byte) error {
	err := d.handler.Write(byte(id), addr, data...)
	if err == nil || isHardwareError(err) {
		return nil
	}
	return errors.Wrapf(hand.ErrTimeout, "failed to write motor %d: %v", id, err)
}

// isHardwareError checks if the error is a Dynamixel hardware error
// (as opposed to a communication error)
func isHardwareError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// Hardware errors from Dynamixel contain these phrases
	return strings.Contains(errStr, "data limit error") ||
		strings.Contains(errStr, "processing error") ||
		strings.Contains(errStr, "hardware error") ||
		strings.Contains(errStr, "overload error") ||
		strings.Contains(errStr, "overheating error")
}
