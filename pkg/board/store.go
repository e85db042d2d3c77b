// Package board holds the shared I/O state of the active control board.
package board

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// RateWindow is the number of update deltas averaged for the update rate.
const RateWindow = 10

// ErrLengthMismatch indicates a vector doesn't match the channel count.
var ErrLengthMismatch = errors.New("length mismatch")

// Layout is the channel layout of a board.
type Layout struct {
	LEDs     int
	PWMs     int
	Analogs  int
	Switches int
	// PWMMax clamps PWM outputs to 0..PWMMax, 0 disables clamping.
	PWMMax int
}

// Status is a consistent snapshot of the store.
type Status struct {
	LEDs     []bool `json:"leds"`
	PWMs     []int  `json:"pwms"`
	Analogs  []int  `json:"analogs"`
	Switches []bool `json:"switches"`
	State    string `json:"state"`
	Running  bool   `json:"running"`
	// UpdateRate is nil until the rate window is full.
	UpdateRate *float64 `json:"update_rate,omitempty"`
}

// Store is the mutex guarded board state. All accessors copy vectors in
// and out, so callers never share memory with the store.
type Store struct {
	layout Layout

	lock       sync.Mutex
	leds       []bool
	pwms       []int
	analogs    []int
	switches   []bool
	deltas     []time.Duration
	lastUpdate time.Time
	state      string
	running    bool
	notifier   func()
}

// NewStore creates a zeroed store.
func NewStore(layout Layout) *Store {
	s := &Store{layout: layout, state: "None"}
	s.zero()
	return s
}

// Layout returns the channel layout.
func (s *Store) Layout() Layout {
	return s.layout
}

// SetNotifier sets the callback fired by ResetValues.
func (s *Store) SetNotifier(fn func()) {
	s.lock.Lock()
	s.notifier = fn
	s.lock.Unlock()
}

func (s *Store) zero() {
	s.leds = make([]bool, s.layout.LEDs)
	s.pwms = make([]int, s.layout.PWMs)
	s.analogs = make([]int, s.layout.Analogs)
	s.switches = make([]bool, s.layout.Switches)
	s.deltas = make([]time.Duration, 0, RateWindow)
	s.lastUpdate = time.Time{}
}

// ResetValues zeroes all vectors and the rate window, then fires the
// notifier once.
func (s *Store) ResetValues() {
	glog.V(2).Info("resetting board values")
	s.lock.Lock()
	s.zero()
	notifier := s.notifier
	s.lock.Unlock()
	if notifier != nil {
		notifier()
	}
}

func checkLength(name string, expected, actual int) error {
	if expected != actual {
		return fmt.Errorf("%w: %s expect %d, got %d", ErrLengthMismatch, name, expected, actual)
	}
	return nil
}

// LEDValues returns a copy of the LED outputs.
func (s *Store) LEDValues() []bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]bool(nil), s.leds...)
}

// PWMValues returns a copy of the PWM outputs.
func (s *Store) PWMValues() []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]int(nil), s.pwms...)
}

// AnalogValues returns a copy of the analog inputs.
func (s *Store) AnalogValues() []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]int(nil), s.analogs...)
}

// SwitchValues returns a copy of the switch inputs.
func (s *Store) SwitchValues() []bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]bool(nil), s.switches...)
}

// Outputs returns LED and PWM outputs taken under one lock.
func (s *Store) Outputs() ([]bool, []int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]bool(nil), s.leds...), append([]int(nil), s.pwms...)
}

// PutLEDValues replaces the LED outputs.
func (s *Store) PutLEDValues(vals []bool) error {
	if err := checkLength("LED outputs", s.layout.LEDs, len(vals)); err != nil {
		return err
	}
	vals = append([]bool(nil), vals...)
	s.lock.Lock()
	s.leds = vals
	s.lock.Unlock()
	return nil
}

// PutPWMValues replaces the PWM outputs, clamping to 0..PWMMax.
func (s *Store) PutPWMValues(vals []int) error {
	if err := checkLength("PWM outputs", s.layout.PWMs, len(vals)); err != nil {
		return err
	}
	clamped := make([]int, len(vals))
	for n, v := range vals {
		if s.layout.PWMMax > 0 {
			if v < 0 {
				v = 0
			} else if v > s.layout.PWMMax {
				v = s.layout.PWMMax
			}
		}
		clamped[n] = v
	}
	s.lock.Lock()
	s.pwms = clamped
	s.lock.Unlock()
	return nil
}

// PutAnalogValues replaces the analog inputs.
func (s *Store) PutAnalogValues(vals []int) error {
	if err := checkLength("analog inputs", s.layout.Analogs, len(vals)); err != nil {
		return err
	}
	vals = append([]int(nil), vals...)
	s.lock.Lock()
	s.analogs = vals
	s.lock.Unlock()
	return nil
}

// PutSwitchValues replaces the switch inputs.
func (s *Store) PutSwitchValues(vals []bool) error {
	if err := checkLength("switch inputs", s.layout.Switches, len(vals)); err != nil {
		return err
	}
	vals = append([]bool(nil), vals...)
	s.lock.Lock()
	s.switches = vals
	s.lock.Unlock()
	return nil
}

// PutInputs replaces switch and analog inputs together.
func (s *Store) PutInputs(switches []bool, analogs []int) error {
	if err := checkLength("switch inputs", s.layout.Switches, len(switches)); err != nil {
		return err
	}
	if err := checkLength("analog inputs", s.layout.Analogs, len(analogs)); err != nil {
		return err
	}
	switches, analogs = append([]bool(nil), switches...), append([]int(nil), analogs...)
	s.lock.Lock()
	s.switches, s.analogs = switches, analogs
	s.lock.Unlock()
	return nil
}

// MarkUpdate records a successful update at t and appends the delta since
// the previous one to the rate window, evicting the oldest on overflow.
func (s *Store) MarkUpdate(t time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.lastUpdate.IsZero() {
		if len(s.deltas) == RateWindow {
			copy(s.deltas, s.deltas[1:])
			s.deltas = s.deltas[:RateWindow-1]
		}
		s.deltas = append(s.deltas, t.Sub(s.lastUpdate))
	}
	s.lastUpdate = t
}

// SetState records the engine state.
func (s *Store) SetState(name string, running bool) {
	s.lock.Lock()
	s.state, s.running = name, running
	s.lock.Unlock()
}

// State returns the engine state name and whether it's running.
func (s *Store) State() (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state, s.running
}

// UpdateRate returns updates per second once the window is full.
func (s *Store) UpdateRate() (float64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.updateRate()
}

func (s *Store) updateRate() (float64, bool) {
	if len(s.deltas) != RateWindow {
		return 0, false
	}
	var sum float64
	for _, d := range s.deltas {
		sum += d.Seconds()
	}
	mean := sum / float64(len(s.deltas))
	if mean <= 0 {
		return 0, false
	}
	return 1 / mean, true
}

// Status takes a snapshot of everything under a single lock.
func (s *Store) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	st := Status{
		LEDs:     append([]bool(nil), s.leds...),
		PWMs:     append([]int(nil), s.pwms...),
		Analogs:  append([]int(nil), s.analogs...),
		Switches: append([]bool(nil), s.switches...),
		State:    s.state,
		Running:  s.running,
	}
	if rate, ok := s.updateRate(); ok {
		st.UpdateRate = &rate
	}
	return st
}

// Text formats the status line shown to operators.
func (st Status) Text() string {
	if !st.Running {
		return st.State
	}
	if st.UpdateRate == nil {
		return "Running, Calculating update rate..."
	}
	return fmt.Sprintf("Running, Updating @ %d Hz", int(*st.UpdateRate))
}
