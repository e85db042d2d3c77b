// Package engine runs the control board polling state machine.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/board"
	"github.com/robotalks/controlboard/pkg/session"
)

// DefaultReconnectDelay is the pause between reconnect attempts.
const DefaultReconnectDelay = time.Second

// ErrAlreadyStarted is returned by Start on a started engine.
var ErrAlreadyStarted = errors.New("engine already started")

// Device is the board the engine polls. session.Session implements it.
type Device interface {
	Connect() error
	IsConnected() bool
	ResetAndHandshake() error
	Exchange(leds []bool, pwms []int) (switches []bool, analogs []int, err error)
	Disconnect() error
}

// Engine polls a Device and keeps a board.Store up to date.
type Engine struct {
	// ReconnectDelay is slept before every reconnect attempt.
	ReconnectDelay time.Duration
	// Clock provides timestamps for the update rate and the reconnect delay.
	Clock clock.Clock

	device Device
	store  *board.Store

	lock    sync.Mutex
	handler func()
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an engine. The store's notifier is taken over by the
// engine's event handler.
func New(device Device, store *board.Store) *Engine {
	e := &Engine{
		ReconnectDelay: DefaultReconnectDelay,
		Clock:          clock.New(),
		device:         device,
		store:          store,
	}
	store.SetNotifier(e.fire)
	store.SetState(StateInit.String(), false)
	return e
}

// Store returns the board store.
func (e *Engine) Store() *board.Store {
	return e.store
}

// SetEventHandler sets the callback fired on every state change and every
// successful update. Panics inside are recovered and logged.
func (e *Engine) SetEventHandler(fn func()) {
	e.lock.Lock()
	e.handler = fn
	e.lock.Unlock()
}

func (e *Engine) fire() {
	e.lock.Lock()
	fn := e.handler
	e.lock.Unlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("event handler panic: %v", r)
		}
	}()
	fn()
}

// Start runs the state machine in background.
func (e *Engine) Start() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.done != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	return nil
}

// IsStarted indicates the background state machine is running.
func (e *Engine) IsStarted() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.done != nil
}

// Shutdown stops the state machine and waits until it exits, after which
// the device is disconnected and the store no longer written.
func (e *Engine) Shutdown() {
	e.lock.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.lock.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run implements framework.Runnable. It returns once ctx is done and the
// Stopped state has been processed.
func (e *Engine) Run(ctx context.Context) error {
	glog.V(2).Info("state machine started")
	state, last := StateInit, StateInit
	e.store.SetState(state.String(), false)
	var lastErr string
	for {
		if ctx.Err() != nil {
			state = StateStopped
		}
		if state != last {
			glog.V(2).Infof("state %s -> %s", last, state)
			last = state
			e.store.SetState(state.String(), state == StateRun)
			e.fire()
		}

		next, err := e.step(ctx, state)
		if err != nil {
			if msg := err.Error(); msg != lastErr {
				glog.Warningf("%s: %v", state, err)
				lastErr = msg
			}
			next = nextOnError(state, err)
		} else {
			lastErr = ""
		}
		if state == StateStopped {
			glog.V(2).Info("state machine stopped")
			return nil
		}
		state = next
	}
}

func (e *Engine) step(ctx context.Context, state State) (State, error) {
	switch state {
	case StateInit:
		return StateCheckConnection, nil
	case StateCheckConnection:
		if e.device.IsConnected() {
			return StateReset, nil
		}
		return StateReconnecting, nil
	case StateReset:
		if err := e.device.ResetAndHandshake(); err != nil {
			return state, err
		}
		e.store.ResetValues()
		return StateRun, nil
	case StateRun:
		leds, pwms := e.store.Outputs()
		switches, analogs, err := e.device.Exchange(leds, pwms)
		if err != nil {
			return state, err
		}
		if err = e.store.PutInputs(switches, analogs); err != nil {
			return state, err
		}
		e.store.MarkUpdate(e.Clock.Now())
		e.fire()
		return StateRun, nil
	case StateReconnecting:
		if err := e.device.Disconnect(); err != nil {
			glog.V(2).Infof("disconnect: %v", err)
		}
		select {
		case <-ctx.Done():
			return state, nil
		case <-e.Clock.After(e.ReconnectDelay):
		}
		if err := e.device.Connect(); err != nil {
			return state, err
		}
		return StateConnected, nil
	case StateConnected:
		glog.Info("control board connected")
		return StateCheckConnection, nil
	case StateStopped:
		if err := e.device.Disconnect(); err != nil {
			glog.Warningf("disconnect: %v", err)
		}
		return StateStopped, nil
	}
	return state, nil
}

// nextOnError maps a failure in state to the state to go next.
// Unknown errors keep the state so it's retried.
func nextOnError(state State, err error) State {
	switch {
	case errors.Is(err, session.ErrDataCorruption):
		return state
	case errors.Is(err, session.ErrTimeout):
		if state == StateReconnecting {
			return state
		}
		return StateReset
	case errors.Is(err, session.ErrTransport),
		errors.Is(err, session.ErrHandshakeFailed),
		errors.Is(err, session.ErrNoMatchingDevice),
		errors.Is(err, session.ErrInvalidPortSelection):
		return StateReconnecting
	}
	return state
}
