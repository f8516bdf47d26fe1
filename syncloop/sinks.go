package syncloop

import (
	"io"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/clintpurser/leaphand/hand"
)

// JointState is the wire form of a pose published to external observers.
type JointState struct {
	Stamp    time.Time `json:"stamp"`
	Space    string    `json:"space"`
	Names    []string  `json:"names"`
	Position []float64 `json:"position"`
}

var jointNames = func() []string {
	names := make([]string, hand.NumJoints)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}()

// NewJointState wraps p for publishing.
func NewJointState(p hand.Pose, raw bool) JointState {
	space := "visual"
	if raw {
		space = "raw"
	}
	return JointState{Stamp: time.Now(), Space: space, Names: jointNames, Position: p.Slice()}
}

// LogSink prints every pose it receives.
type LogSink struct {
	Logger logging.Logger
	Raw    bool
}

// ObservesRaw implements RawObserver.
func (s *LogSink) ObservesRaw() bool { return s.Raw }

// Update logs p.
func (s *LogSink) Update(p hand.Pose) error {
	s.Logger.Infof("Joint angles: %s", p)
	return nil
}

// JSONSink writes one JointState per line to W.
type JSONSink struct {
	mu  sync.Mutex
	enc *jsoniter.Encoder
	raw bool
}

// NewJSONSink returns a sink writing newline-delimited JSON to w.
func NewJSONSink(w io.Writer, raw bool) *JSONSink {
	return &JSONSink{enc: jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w), raw: raw}
}

// ObservesRaw implements RawObserver.
func (s *JSONSink) ObservesRaw() bool { return s.raw }

// Update encodes p.
func (s *JSONSink) Update(p hand.Pose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(NewJointState(p, s.raw))
}

// Tee fans each pose out to several sinks observing the same space.
type Tee struct {
	sinks []Sink
	raw   bool
}

// NewTee combines sinks. They must all observe the same angle space.
func NewTee(sinks ...Sink) (*Tee, error) {
	if len(sinks) == 0 {
		return nil, errors.New("tee needs at least one sink")
	}
	t := &Tee{sinks: sinks, raw: observesRaw(sinks[0])}
	for _, s := range sinks[1:] {
		if observesRaw(s) != t.raw {
			return nil, errors.Wrap(hand.ErrConfiguration, "tee mixes raw and visual sinks")
		}
	}
	return t, nil
}

// ObservesRaw implements RawObserver.
func (t *Tee) ObservesRaw() bool { return t.raw }

// Update forwards p to every sink, stopping at the first error.
func (t *Tee) Update(p hand.Pose) error {
	for _, s := range t.sinks {
		if err := s.Update(p); err != nil {
			return err
		}
	}
	return nil
}

// Summarize forwards to every member that accumulates state.
func (t *Tee) Summarize(logger logging.Logger) {
	for _, s := range t.sinks {
		if sum, ok := s.(Summarizer); ok {
			sum.Summarize(logger)
		}
	}
}

func observesRaw(s Sink) bool {
	ro, ok := s.(RawObserver)
	return ok && ro.ObservesRaw()
}
