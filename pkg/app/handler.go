// Package app wires the active control board with the mirror and monitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/board"
	"github.com/robotalks/controlboard/pkg/engine"
	fx "github.com/robotalks/controlboard/pkg/framework"
	"github.com/robotalks/controlboard/pkg/mirror"
	"github.com/robotalks/controlboard/pkg/registry"
	"github.com/robotalks/controlboard/pkg/session"
	"github.com/robotalks/controlboard/pkg/simulator"
	"github.com/robotalks/controlboard/pkg/transport"
)

var (
	// ErrNotInitialized indicates no device type has been selected.
	ErrNotInitialized = errors.New("control board not initialized")
	// ErrNotSimulated indicates the active device isn't a simulator.
	ErrNotSimulated = errors.New("not a simulated control board")
	// ErrOutOfRange indicates a channel index out of range.
	ErrOutOfRange = errors.New("channel out of range")
)

// Options customizes a Handler.
type Options struct {
	// Mirror is optional.
	Mirror *mirror.Mirror
	// Descriptor adjusts descriptors before use, e.g. port overrides.
	Descriptor func(registry.Descriptor) registry.Descriptor
	// ReconnectDelay overrides engine.DefaultReconnectDelay when set.
	ReconnectDelay time.Duration
	// Serial is the driver of real boards, transport.Serial by default.
	Serial transport.Driver
}

// Status is the status of the application.
type Status struct {
	board.Status
	Type            string `json:"type"`
	Name            string `json:"name"`
	Port            string `json:"port,omitempty"`
	Text            string `json:"text"`
	TestMode        bool   `json:"test_mode"`
	MirrorConnected bool   `json:"mirror_connected"`
}

// Handler owns the active device and its engine.
type Handler struct {
	registry *registry.Registry
	opts     Options

	lock      sync.Mutex
	desc      registry.Descriptor
	session   *session.Session
	engine    *engine.Engine
	sim       *simulator.Board
	testMode  bool
	testLEDs  []bool
	testPWMs  []int
	loop      *fx.Loop
	notifiers []func()
	lastErr   string
}

// New creates a Handler.
func New(reg *registry.Registry, opts Options) *Handler {
	if opts.Serial == nil {
		opts.Serial = transport.Serial{}
	}
	return &Handler{registry: reg, opts: opts}
}

// Registry returns the device registry.
func (h *Handler) Registry() *registry.Registry {
	return h.registry
}

// AddNotifier adds a func called after every processed event.
func (h *Handler) AddNotifier(fn func()) {
	h.lock.Lock()
	h.notifiers = append(h.notifiers, fn)
	h.lock.Unlock()
}

// AddToLoop implements framework.LoopAdder. Engine events trigger the loop.
func (h *Handler) AddToLoop(loop *fx.Loop) {
	h.lock.Lock()
	h.loop = loop
	h.lock.Unlock()
	loop.AddController(fx.ControlFunc(h.control))
}

// Init selects the device type and creates its engine, not started.
func (h *Handler) Init(typ string) error {
	desc, err := h.registry.Lookup(typ)
	if err != nil {
		return err
	}
	if h.opts.Descriptor != nil {
		desc = h.opts.Descriptor(desc)
	}

	var driver transport.Driver = h.opts.Serial
	var sim *simulator.Board
	if desc.Simulated {
		sim = simulator.New(desc.Port, desc.USB, desc.Codec())
		driver = sim
	}
	store := board.NewStore(board.Layout{
		LEDs:     desc.LEDs,
		PWMs:     desc.PWMs,
		Analogs:  desc.Analogs,
		Switches: desc.Switches,
		PWMMax:   desc.PWMMax,
	})
	sess := session.New(desc, driver)
	eng := engine.New(sess, store)
	if h.opts.ReconnectDelay > 0 {
		eng.ReconnectDelay = h.opts.ReconnectDelay
	}
	eng.SetEventHandler(h.respond)

	h.lock.Lock()
	h.desc, h.session, h.engine, h.sim = desc, sess, eng, sim
	h.testLEDs, h.testPWMs = make([]bool, desc.LEDs), make([]int, desc.PWMs)
	h.lock.Unlock()
	if h.opts.Mirror != nil {
		h.opts.Mirror.Attach(store)
	}
	glog.Infof("control board type %s: %s", desc.Type, desc.Name)
	return nil
}

// InitOrFallback is Init which falls back to the first registered type
// when typ is unknown.
func (h *Handler) InitOrFallback(typ string) error {
	err := h.Init(typ)
	if !errors.Is(err, registry.ErrUnknownType) {
		return err
	}
	fallback, ferr := h.registry.Fallback()
	if ferr != nil {
		return err
	}
	glog.Errorf("%v, using %s", err, fallback.Type)
	return h.Init(fallback.Type)
}

func (h *Handler) current() (*engine.Engine, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.engine == nil {
		return nil, ErrNotInitialized
	}
	return h.engine, nil
}

// Start starts polling the board.
func (h *Handler) Start() error {
	eng, err := h.current()
	if err != nil {
		return err
	}
	return eng.Start()
}

// Shutdown stops polling and waits until the board is disconnected.
func (h *Handler) Shutdown() {
	if eng, err := h.current(); err == nil {
		eng.Shutdown()
	}
}

// Run implements framework.Runnable. It polls the board until ctx is done.
func (h *Handler) Run(ctx context.Context) error {
	if err := h.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	h.Shutdown()
	return ctx.Err()
}

// IsStarted indicates the engine is polling.
func (h *Handler) IsStarted() bool {
	eng, err := h.current()
	return err == nil && eng.IsStarted()
}

// Swap replaces the active device type, resets the table and starts the
// new one. An unknown type leaves the active device untouched.
func (h *Handler) Swap(typ string) error {
	if _, err := h.registry.Lookup(typ); err != nil {
		return err
	}
	h.Shutdown()
	if err := h.Init(typ); err != nil {
		return err
	}
	if h.opts.Mirror != nil {
		if err := h.opts.Mirror.ResetTable(); err != nil {
			glog.Warningf("reset table: %v", err)
		}
	}
	return h.Start()
}

// SetTestMode switches test mode. In test mode outputs come from
// SetTestLED/SetTestPWM instead of the mirror.
func (h *Handler) SetTestMode(on bool) {
	h.lock.Lock()
	changed := h.testMode != on
	h.testMode = on
	h.lock.Unlock()
	if changed {
		glog.Infof("test mode switched %s", onOff(on))
		h.trigger()
	}
}

// TestMode indicates test mode is on.
func (h *Handler) TestMode() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.testMode
}

// SetTestLED sets the test value of an LED.
func (h *Handler) SetTestLED(index int, on bool) error {
	h.lock.Lock()
	if index < 0 || index >= len(h.testLEDs) {
		h.lock.Unlock()
		return fmt.Errorf("%w: LED %d", ErrOutOfRange, index)
	}
	h.testLEDs[index] = on
	h.lock.Unlock()
	h.trigger()
	return nil
}

// SetTestPWM sets the test value of a PWM.
func (h *Handler) SetTestPWM(index, value int) error {
	h.lock.Lock()
	if index < 0 || index >= len(h.testPWMs) {
		h.lock.Unlock()
		return fmt.Errorf("%w: PWM %d", ErrOutOfRange, index)
	}
	h.testPWMs[index] = value
	h.lock.Unlock()
	h.trigger()
	return nil
}

// Simulator returns the simulated board of the active device.
func (h *Handler) Simulator() (*simulator.Board, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.engine == nil {
		return nil, ErrNotInitialized
	}
	if h.sim == nil {
		return nil, ErrNotSimulated
	}
	return h.sim, nil
}

// Status returns the status of the active device.
func (h *Handler) Status() Status {
	h.lock.Lock()
	desc, eng, sess, testMode := h.desc, h.engine, h.session, h.testMode
	h.lock.Unlock()
	st := Status{Type: desc.Type, Name: desc.Name, TestMode: testMode}
	if eng == nil {
		st.Text = ErrNotInitialized.Error()
		return st
	}
	st.Status = eng.Store().Status()
	st.Text = st.Status.Text()
	st.Port = sess.PortName()
	if h.opts.Mirror != nil {
		st.MirrorConnected = h.opts.Mirror.Connected()
	}
	return st
}

// StatusText returns the status line shown to operators.
func (h *Handler) StatusText() string {
	return h.Status().Text
}

func (h *Handler) trigger() {
	h.lock.Lock()
	loop := h.loop
	h.lock.Unlock()
	if loop != nil {
		loop.TriggerNext()
	}
}

// respond is the engine event handler. It must not block the engine, so
// the work is done by the loop.
func (h *Handler) respond() {
	h.trigger()
}

func (h *Handler) control(fx.ControlContext) error {
	h.lock.Lock()
	eng, testMode := h.engine, h.testMode
	leds := append([]bool(nil), h.testLEDs...)
	pwms := append([]int(nil), h.testPWMs...)
	notifiers := h.notifiers
	h.lock.Unlock()

	var err error
	if eng != nil {
		if testMode {
			if err = eng.Store().PutLEDValues(leds); err == nil {
				err = eng.Store().PutPWMValues(pwms)
			}
		} else if h.opts.Mirror != nil {
			err = h.opts.Mirror.Update()
		}
	}
	for _, fn := range notifiers {
		fn()
	}
	h.logOnce(err)
	return nil
}

// logOnce logs err unless it's the same as the last one.
func (h *Handler) logOnce(err error) {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	h.lock.Lock()
	changed := msg != h.lastErr
	h.lastErr = msg
	h.lock.Unlock()
	if changed && err != nil {
		glog.Warningf("update: %v", err)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
