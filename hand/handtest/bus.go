// Package handtest provides an in-memory hand.Bus for tests.
package handtest

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/clintpurser/leaphand/hand"
)

// Write is one recorded WriteDesiredPosition call.
type Write struct {
	At       time.Time
	Position hand.Pose
}

// Bus records every call made to it. Reads return queued poses, then repeat
// the last one.
type Bus struct {
	mu sync.Mutex

	Registers map[uint16][]int
	Torque    []bool
	Writes    []Write
	Reads     int
	Closed    bool

	readQueue []hand.Pose
	readErrs  []error
	writeErrs []error
}

// NewBus returns an empty recording bus.
func NewBus() *Bus {
	return &Bus{Registers: make(map[uint16][]int)}
}

// Dialer returns a hand.Dialer that hands out b.
func (b *Bus) Dialer() hand.Dialer {
	return func(string, int) (hand.Bus, error) { return b, nil }
}

// QueueReads appends poses returned by subsequent ReadPosition calls.
func (b *Bus) QueueReads(poses ...hand.Pose) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readQueue = append(b.readQueue, poses...)
}

// FailReads makes the next len(errs) reads fail with errs in order. A nil
// entry lets that read succeed.
func (b *Bus) FailReads(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErrs = append(b.readErrs, errs...)
}

// FailWrites is FailReads for position writes.
func (b *Bus) FailWrites(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErrs = append(b.writeErrs, errs...)
}

// Timeout is a recoverable bus error as the dynamixel driver reports it.
func Timeout() error {
	return errors.Wrap(hand.ErrTimeout, "no status packet")
}

// WriteCount returns the number of position writes so far.
func (b *Bus) WriteCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Writes)
}

// WriteTimes returns the timestamps of all position writes.
func (b *Bus) WriteTimes() []time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]time.Time, len(b.Writes))
	for i, w := range b.Writes {
		out[i] = w.At
	}
	return out
}

// WriteRegister implements hand.Bus.
func (b *Bus) WriteRegister(ids []int, values []int, addr uint16, size int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, ok := b.Registers[addr]
	if !ok {
		reg = make([]int, hand.NumJoints)
		b.Registers[addr] = reg
	}
	for k, id := range ids {
		reg[id] = values[k]
	}
	return nil
}

// SetTorqueEnabled implements hand.Bus.
func (b *Bus) SetTorqueEnabled(ids []int, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Torque = append(b.Torque, enabled)
	return nil
}

// WriteDesiredPosition implements hand.Bus.
func (b *Bus) WriteDesiredPosition(ids []int, positions []float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.writeErrs) > 0 {
		err := b.writeErrs[0]
		b.writeErrs = b.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	var p hand.Pose
	copy(p[:], positions)
	b.Writes = append(b.Writes, Write{At: time.Now(), Position: p})
	return nil
}

// ReadPosition implements hand.Bus.
func (b *Bus) ReadPosition(ids []int) ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Reads++
	if len(b.readErrs) > 0 {
		err := b.readErrs[0]
		b.readErrs = b.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	p := hand.NeutralPose()
	switch {
	case len(b.readQueue) > 1:
		p = b.readQueue[0]
		b.readQueue = b.readQueue[1:]
	case len(b.readQueue) == 1:
		p = b.readQueue[0]
	}
	return p.Slice(), nil
}

// Close implements hand.Bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}
