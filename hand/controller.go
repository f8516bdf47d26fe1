package hand

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Control table addresses written during bring-up (XC330/XL330, Protocol 2.0).
const (
	AddrOperatingMode uint16 = 11
	AddrPositionDGain uint16 = 80
	AddrPositionIGain uint16 = 82
	AddrPositionPGain uint16 = 84
	AddrCurrentLimit  uint16 = 102
)

// CurrentBasedPosition is the operating mode value for current-limited
// position control.
const CurrentBasedPosition = 5

// Bus is the hardware capability the controller drives. Implementations are not
// required to be safe for concurrent use; the controller serializes all calls.
type Bus interface {
	// WriteRegister writes values[k] into register addr (size bytes) of motor ids[k].
	WriteRegister(ids []int, values []int, addr uint16, size int) error
	SetTorqueEnabled(ids []int, enabled bool) error
	// WriteDesiredPosition is not atomic across motors: on error, motors
	// earlier in ids may already hold their new goal. The next successful
	// write brings the whole hand back in step.
	WriteDesiredPosition(ids []int, positions []float64) error
	ReadPosition(ids []int) ([]float64, error)
	Close() error
}

// Dialer opens a bus on a serial port.
type Dialer func(port string, baudRate int) (Bus, error)

// ConnectionConfig names the ports tried at bring-up.
type ConnectionConfig struct {
	Port         string
	FallbackPort string
	BaudRate     int
}

// Gains are the position-control gains and current limit written to every motor.
type Gains struct {
	KP           float64
	KI           float64
	KD           float64
	CurrentLimit float64
}

// Register ceilings for the gain and current limit writes (XC330/XL330).
const (
	MaxPositionGain = 16383
	MaxCurrentLimit = 1750
)

// Validate rejects gains the motor registers cannot hold. Errors wrap
// ErrConfiguration.
func (g Gains) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
		max   float64
	}{
		{"kp", g.KP, MaxPositionGain},
		{"ki", g.KI, MaxPositionGain},
		{"kd", g.KD, MaxPositionGain},
		{"current_limit", g.CurrentLimit, MaxCurrentLimit},
	} {
		if !(f.value >= 0 && f.value <= f.max) {
			return errors.Wrapf(ErrConfiguration, "%s must be in [0, %.0f], got %g", f.name, f.max, f.value)
		}
	}
	return nil
}

// DefaultGains are the gains the hand is tuned for.
func DefaultGains() Gains {
	return Gains{KP: 600, KI: 0, KD: 200, CurrentLimit: 350}
}

// Controller owns the bus connection and the commanded pose state.
type Controller struct {
	mu     sync.Mutex
	bus    Bus
	logger logging.Logger

	port   string
	gains  Gains
	prev   Pose
	curr   Pose
	closed bool
}

// Connect opens the bus on the primary port and, if that fails, once on the
// fallback port. Failing both is fatal and wraps ErrConnection.
func Connect(dial Dialer, cfg ConnectionConfig, logger logging.Logger) (*Controller, error) {
	if dial == nil {
		return nil, errors.Wrap(ErrConnection, "no bus dialer")
	}

	port := cfg.Port
	bus, err := dial(port, cfg.BaudRate)
	if err != nil {
		if cfg.FallbackPort == "" {
			return nil, errors.Wrapf(ErrConnection, "open %s: %v", cfg.Port, err)
		}
		logger.Warnf("Could not open %s (%v), trying %s", cfg.Port, err, cfg.FallbackPort)
		port = cfg.FallbackPort
		var fallbackErr error
		bus, fallbackErr = dial(port, cfg.BaudRate)
		if fallbackErr != nil {
			return nil, errors.Wrapf(ErrConnection, "open %s: %v; open %s: %v",
				cfg.Port, err, cfg.FallbackPort, fallbackErr)
		}
	}

	logger.Infof("Hand bus open on %s at %d baud", port, cfg.BaudRate)
	neutral := NeutralPose()
	return &Controller{
		bus:    bus,
		logger: logger,
		port:   port,
		prev:   neutral,
		curr:   neutral,
	}, nil
}

// Port returns the port the bus was opened on.
func (c *Controller) Port() string {
	return c.port
}

// Configure puts every motor in current-based position mode and writes the
// gains. The special joints get SpecialGainScale times KP and KD.
func (c *Controller) Configure(g Gains) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}

	if err := c.bus.WriteRegister(MotorIDs, fill(CurrentBasedPosition), AddrOperatingMode, 1); err != nil {
		return errors.Wrap(err, "failed to set operating mode")
	}

	writes := []struct {
		name   string
		addr   uint16
		values []int
	}{
		{"P gain", AddrPositionPGain, scaledGain(g.KP)},
		{"D gain", AddrPositionDGain, scaledGain(g.KD)},
		{"I gain", AddrPositionIGain, fill(round(g.KI))},
		{"current limit", AddrCurrentLimit, fill(round(g.CurrentLimit))},
	}
	for _, w := range writes {
		if err := c.bus.WriteRegister(MotorIDs, w.values, w.addr, 2); err != nil {
			return errors.Wrapf(err, "failed to write %s", w.name)
		}
	}

	c.gains = g
	c.logger.Debugf("Gains configured: kP=%.0f kI=%.0f kD=%.0f current=%.0f", g.KP, g.KI, g.KD, g.CurrentLimit)
	return nil
}

// Gains returns the gains last written by Configure.
func (c *Controller) Gains() Gains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gains
}

// SetTorque enables or disables torque on every motor. Torque is off for
// passive observation and on for active control.
func (c *Controller) SetTorque(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.bus.SetTorqueEnabled(MotorIDs, enabled); err != nil {
		return errors.Wrapf(err, "failed to set torque enabled=%t", enabled)
	}
	return nil
}

// SetPose records the pose and writes it to the bus. It does not wait for the
// motors to reach it.
func (c *Controller) SetPose(p Pose) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}

	c.prev = c.curr
	c.curr = p
	return c.bus.WriteDesiredPosition(MotorIDs, p.Slice())
}

// ReadPose queries the bus for the present position of every joint.
func (c *Controller) ReadPose() (Pose, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return Pose{}, err
	}

	values, err := c.bus.ReadPosition(MotorIDs)
	if err != nil {
		return Pose{}, err
	}
	return PoseFromSlice(values)
}

// PreviousPose returns the pose commanded before the current one.
func (c *Controller) PreviousPose() Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prev
}

// CurrentPose returns the last commanded pose.
func (c *Controller) CurrentPose() Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curr
}

// Close disables torque and releases the bus. Safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.bus.SetTorqueEnabled(MotorIDs, false); err != nil {
		c.logger.Warnf("Failed to disable torque on close: %v", err)
	}
	if err := c.bus.Close(); err != nil {
		return errors.Wrap(err, "failed to close bus")
	}

	c.logger.Info("Hand controller closed")
	return nil
}

func (c *Controller) checkOpen() error {
	if c.closed {
		return errors.New("controller closed")
	}
	return nil
}

func scaledGain(base float64) []int {
	values := make([]int, NumJoints)
	for i := range values {
		if IsSpecial(i) {
			values[i] = round(base * SpecialGainScale)
		} else {
			values[i] = round(base)
		}
	}
	return values
}

func fill(v int) []int {
	values := make([]int, NumJoints)
	for i := range values {
		values[i] = v
	}
	return values
}

func round(v float64) int {
	return int(math.Round(v))
}
