package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/controlboard/pkg/board"
	"github.com/robotalks/controlboard/pkg/registry"
	"github.com/robotalks/controlboard/pkg/session"
	"github.com/robotalks/controlboard/pkg/simulator"
)

type fakeDevice struct {
	lock        sync.Mutex
	connected   bool
	connectErr  error
	resetErr    error
	exchange    func(n int) ([]bool, []int, error)
	connects    int
	resets      int
	exchanges   int
	disconnects int
}

func (d *fakeDevice) Connect() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.connects++
	if d.connectErr != nil {
		return d.connectErr
	}
	d.connected = true
	return nil
}

func (d *fakeDevice) IsConnected() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.connected
}

func (d *fakeDevice) ResetAndHandshake() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.resets++
	return d.resetErr
}

func (d *fakeDevice) Exchange(leds []bool, pwms []int) ([]bool, []int, error) {
	d.lock.Lock()
	n := d.exchanges
	d.exchanges++
	fn := d.exchange
	d.lock.Unlock()
	if fn == nil {
		return []bool{true, false}, []int{1, 2}, nil
	}
	return fn(n)
}

func (d *fakeDevice) Disconnect() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.disconnects++
	d.connected = false
	return nil
}

func (d *fakeDevice) counts() (connects, resets, exchanges, disconnects int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.connects, d.resets, d.exchanges, d.disconnects
}

var fakeLayout = board.Layout{LEDs: 2, PWMs: 1, Analogs: 2, Switches: 2, PWMMax: 255}

type stateRecorder struct {
	lock   sync.Mutex
	states []string
	events int
}

func (r *stateRecorder) attach(e *Engine) {
	e.SetEventHandler(func() {
		name, _ := e.Store().State()
		r.lock.Lock()
		defer r.lock.Unlock()
		r.events++
		if len(r.states) == 0 || r.states[len(r.states)-1] != name {
			r.states = append(r.states, name)
		}
	})
}

func (r *stateRecorder) snapshot() ([]string, int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.states...), r.events
}

func (r *stateRecorder) count(name string) int {
	states, _ := r.snapshot()
	n := 0
	for _, s := range states {
		if s == name {
			n++
		}
	}
	return n
}

func newEngine(dev Device, layout board.Layout) (*Engine, *stateRecorder) {
	e := New(dev, board.NewStore(layout))
	e.ReconnectDelay = time.Millisecond
	rec := &stateRecorder{}
	rec.attach(e)
	return e, rec
}

func TestStateNames(t *testing.T) {
	require.Equal(t, "Initializing", StateInit.String())
	require.Equal(t, "Checking connection", StateCheckConnection.String())
	require.Equal(t, "Resetting control board", StateReset.String())
	require.Equal(t, "Running", StateRun.String())
	require.Equal(t, "Control board disconnected", StateReconnecting.String())
	require.Equal(t, "Stopped", StateStopped.String())
	require.Equal(t, "Unknown", State(99).String())
}

func TestNextOnError(t *testing.T) {
	testCases := []struct {
		state    State
		err      error
		expected State
	}{
		{StateRun, session.ErrDataCorruption, StateRun},
		{StateRun, session.ErrTimeout, StateReset},
		{StateReset, session.ErrTimeout, StateReset},
		{StateReconnecting, session.ErrTimeout, StateReconnecting},
		{StateRun, fmt.Errorf("%w: read: EOF", session.ErrTransport), StateReconnecting},
		{StateReset, session.ErrHandshakeFailed, StateReconnecting},
		{StateReconnecting, session.ErrNoMatchingDevice, StateReconnecting},
		{StateReconnecting, session.ErrInvalidPortSelection, StateReconnecting},
		{StateRun, board.ErrLengthMismatch, StateRun},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, nextOnError(tc.state, tc.err), "%s: %v", tc.state, tc.err)
	}
}

func TestEngineReachesRun(t *testing.T) {
	dev := &fakeDevice{connected: true}
	e, rec := newEngine(dev, fakeLayout)
	require.NoError(t, e.Start())
	require.ErrorIs(t, e.Start(), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		_, _, exchanges, _ := dev.counts()
		return exchanges > 20
	}, time.Second, time.Millisecond)
	st := e.Store().Status()
	require.True(t, st.Running)
	require.Equal(t, "Running", st.State)
	require.Equal(t, []bool{true, false}, st.Switches)
	require.Equal(t, []int{1, 2}, st.Analogs)

	e.Shutdown()
	require.False(t, e.IsStarted())
	_, resets, _, disconnects := dev.counts()
	require.Equal(t, 1, resets)
	require.Equal(t, 1, disconnects)

	states, events := rec.snapshot()
	require.Equal(t, []string{"Checking connection", "Resetting control board", "Running", "Stopped"}, states)
	require.Greater(t, events, 20)
	name, running := e.Store().State()
	require.Equal(t, "Stopped", name)
	require.False(t, running)
}

func TestEngineAlwaysFailingConnect(t *testing.T) {
	dev := &fakeDevice{connectErr: fmt.Errorf("%w: open: no such file", session.ErrTransport)}
	e, rec := newEngine(dev, fakeLayout)
	require.NoError(t, e.Start())

	require.Eventually(t, func() bool {
		connects, _, _, _ := dev.counts()
		return connects > 10
	}, time.Second, time.Millisecond)
	states, _ := rec.snapshot()
	require.Equal(t, []string{"Checking connection", "Control board disconnected"}, states)
	require.True(t, e.IsStarted())
	name, running := e.Store().State()
	require.Equal(t, "Control board disconnected", name)
	require.False(t, running)

	e.Shutdown()
	states, _ = rec.snapshot()
	require.Equal(t, "Stopped", states[len(states)-1])
}

func TestEngineTimeoutResets(t *testing.T) {
	dev := &fakeDevice{connected: true}
	dev.exchange = func(n int) ([]bool, []int, error) {
		if n == 3 {
			return nil, nil, session.ErrTimeout
		}
		return []bool{false, true}, []int{5, 6}, nil
	}
	e, _ := newEngine(dev, fakeLayout)
	require.NoError(t, e.Start())
	defer e.Shutdown()
	require.Eventually(t, func() bool {
		_, resets, exchanges, _ := dev.counts()
		return resets == 2 && exchanges > 10
	}, time.Second, time.Millisecond)
	connects, _, _, _ := dev.counts()
	require.Zero(t, connects)
}

func TestEngineDataCorruptionKeepsValues(t *testing.T) {
	dev := &fakeDevice{connected: true}
	dev.exchange = func(n int) ([]bool, []int, error) {
		if n == 0 {
			return []bool{true, true}, []int{100, 200}, nil
		}
		return nil, nil, fmt.Errorf("%w: checksum mismatch", session.ErrDataCorruption)
	}
	e, rec := newEngine(dev, fakeLayout)
	require.NoError(t, e.Start())
	defer e.Shutdown()
	require.Eventually(t, func() bool {
		_, _, exchanges, _ := dev.counts()
		return exchanges > 10
	}, time.Second, time.Millisecond)

	st := e.Store().Status()
	require.True(t, st.Running)
	require.Equal(t, []int{100, 200}, st.Analogs)
	require.Equal(t, []bool{true, true}, st.Switches)
	_, resets, _, _ := dev.counts()
	require.Equal(t, 1, resets)
	require.Equal(t, 0, rec.count("Control board disconnected"))
}

func TestEngineRecoversHandlerPanic(t *testing.T) {
	dev := &fakeDevice{connected: true}
	e := New(dev, board.NewStore(fakeLayout))
	e.SetEventHandler(func() { panic("boom") })
	require.NoError(t, e.Start())
	require.Eventually(t, func() bool {
		_, _, exchanges, _ := dev.counts()
		return exchanges > 5
	}, time.Second, time.Millisecond)
	e.Shutdown()
}

func TestEngineUpdateRate(t *testing.T) {
	mock := clock.NewMock()
	dev := &fakeDevice{connected: true}
	dev.exchange = func(int) ([]bool, []int, error) {
		mock.Add(100 * time.Millisecond)
		return []bool{false, false}, []int{0, 0}, nil
	}
	e, _ := newEngine(dev, fakeLayout)
	e.Clock = mock
	require.NoError(t, e.Start())
	defer e.Shutdown()

	require.Eventually(t, func() bool {
		_, ok := e.Store().UpdateRate()
		return ok
	}, time.Second, time.Millisecond)
	rate, ok := e.Store().UpdateRate()
	require.True(t, ok)
	require.InDelta(t, 10.0, rate, 1e-6)
	require.Equal(t, "Running, Updating @ 10 Hz", e.Store().Status().Text())
}

func simulatedEngine(t *testing.T) (*Engine, *stateRecorder, *simulator.Board) {
	desc, err := registry.Builtin().Lookup("ArduinoUno_Simulator")
	require.NoError(t, err)
	desc.Timeout = 50 * time.Millisecond
	desc.ResetPulse = time.Millisecond
	sim := simulator.New(desc.Port, desc.USB, desc.Codec())
	e, rec := newEngine(session.New(desc, sim), board.Layout{
		LEDs: desc.LEDs, PWMs: desc.PWMs, Analogs: desc.Analogs, Switches: desc.Switches, PWMMax: desc.PWMMax,
	})
	return e, rec, sim
}

func TestEngineWithSimulator(t *testing.T) {
	e, _, sim := simulatedEngine(t)
	require.NoError(t, sim.SetAnalog(2, 300))
	require.NoError(t, e.Start())
	defer e.Shutdown()

	require.Eventually(t, func() bool {
		return sim.Frames() > 5
	}, time.Second, time.Millisecond)
	require.NoError(t, e.Store().PutPWMValues([]int{42}))
	require.Eventually(t, func() bool {
		_, pwms := sim.Outputs()
		return pwms[0] == 42
	}, time.Second, time.Millisecond)
	st := e.Store().Status()
	require.True(t, st.Running)
	require.Equal(t, 300, st.Analogs[2])

	// unplug, the engine reconnects and resumes
	sim.SetPlugged(false)
	require.Eventually(t, func() bool {
		name, _ := e.Store().State()
		return name == "Control board disconnected"
	}, time.Second, time.Millisecond)
	frames := sim.Frames()
	sim.SetPlugged(true)
	require.Eventually(t, func() bool {
		return sim.Frames() > frames+5
	}, time.Second, time.Millisecond)
	require.True(t, e.Store().Status().Running)
}

func TestEngineWrongWelcome(t *testing.T) {
	e, rec, sim := simulatedEngine(t)
	sim.SetWelcome("WRONG")
	require.NoError(t, e.Start())

	require.Eventually(t, func() bool {
		return rec.count("Resetting control board") >= 3
	}, time.Second, time.Millisecond)
	e.Shutdown()

	states, events := rec.snapshot()
	require.NotContains(t, states, "Running")
	require.Zero(t, sim.Frames())
	require.GreaterOrEqual(t, events, len(states))
	for n, s := range states {
		if s == "Resetting control board" && n+1 < len(states) {
			require.Contains(t, []string{"Control board disconnected", "Stopped"}, states[n+1])
		}
	}
	require.Greater(t, rec.count("Control board disconnected"), 1)
}
