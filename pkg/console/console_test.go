package console

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/controlboard/pkg/app"
	"github.com/robotalks/controlboard/pkg/registry"
)

func newConsole(t *testing.T) *Console {
	h := app.New(registry.Builtin(), app.Options{
		ReconnectDelay: time.Millisecond,
		Descriptor: func(d registry.Descriptor) registry.Descriptor {
			d.Timeout, d.ResetPulse = 50*time.Millisecond, time.Millisecond
			return d
		},
	})
	require.NoError(t, h.Init("ArduinoUno_Simulator"))
	return &Console{Handler: h}
}

func TestParseOnOff(t *testing.T) {
	for _, s := range []string{"on", "ON", "1", "true"} {
		on, err := parseOnOff(s)
		require.NoError(t, err)
		require.True(t, on, s)
	}
	for _, s := range []string{"off", "0", "false"} {
		on, err := parseOnOff(s)
		require.NoError(t, err)
		require.False(t, on, s)
	}
	_, err := parseOnOff("maybe")
	require.ErrorIs(t, err, errUsage)
}

func TestUnknownCommandAndUsage(t *testing.T) {
	c := newConsole(t)
	_, err := c.Exec("fly")
	require.Error(t, err)
	_, err = c.Exec("led", "1")
	require.ErrorIs(t, err, errUsage)
	_, err = c.Exec("pwm", "x", "1")
	require.ErrorIs(t, err, errUsage)
}

func TestTypesCommand(t *testing.T) {
	c := newConsole(t)
	out, err := c.Exec("types")
	require.NoError(t, err)
	require.Contains(t, out, "* ArduinoUno_Simulator: Arduino Uno Simulator")
	require.Contains(t, out, "  ControlBoard_1v1: FRC Control Board - Version 1.1")

	c.OutputJSON = true
	out, err = c.Exec("l")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "["))
}

func TestConsoleSession(t *testing.T) {
	c := newConsole(t)
	defer c.Handler.Shutdown()

	out, err := c.Exec("status")
	require.NoError(t, err)
	require.Contains(t, out, "Arduino Uno Simulator (ArduinoUno_Simulator): Initializing")
	require.Contains(t, out, "LED: 0000")

	_, err = c.Exec("start")
	require.NoError(t, err)
	_, err = c.Exec("sim.switch", "2", "on")
	require.NoError(t, err)
	_, err = c.Exec("sim.analog", "0", "99")
	require.NoError(t, err)
	_, err = c.Exec("sim.analog", "9", "99")
	require.Error(t, err)

	require.Eventually(t, func() bool {
		out, err := c.Exec("s")
		return err == nil && strings.Contains(out, "SW:  001000") && strings.Contains(out, "ANA: [99 0 0 0 0 0]")
	}, 2*time.Second, 5*time.Millisecond)

	_, err = c.Exec("test", "on")
	require.NoError(t, err)
	_, err = c.Exec("led", "0", "on")
	require.NoError(t, err)
	_, err = c.Exec("pwm", "0", "17")
	require.NoError(t, err)
	_, err = c.Exec("led", "7", "on")
	require.ErrorIs(t, err, app.ErrOutOfRange)
	out, err = c.Exec("status")
	require.NoError(t, err)
	require.Contains(t, out, "Test mode: on")

	_, err = c.Exec("sim.plug", "off")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return c.Handler.StatusText() == "Control board disconnected"
	}, 2*time.Second, 5*time.Millisecond)
	_, err = c.Exec("sim.plug", "on")
	require.NoError(t, err)

	out, err = c.Exec("nt")
	require.NoError(t, err)
	require.Equal(t, "Network table: disabled", out)

	_, err = c.Exec("stop")
	require.NoError(t, err)
	require.Equal(t, "Stopped", c.Handler.StatusText())
}

func TestSimCommandsNeedSimulator(t *testing.T) {
	c := newConsole(t)
	_, err := c.Exec("type", "Nope")
	require.ErrorIs(t, err, registry.ErrUnknownType)
	require.NoError(t, c.Handler.Init("ArduinoUno"))
	_, err = c.Exec("sim.plug", "on")
	require.ErrorIs(t, err, app.ErrNotSimulated)
}
