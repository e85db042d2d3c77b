package console

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

var commands = []command{
	{name: "status", aliases: []string{"s"}, run: statusCmd},
	{name: "types", aliases: []string{"list", "l"}, run: typesCmd},
	{name: "type", help: "TYPE", args: 1, run: typeCmd},
	{name: "start", run: startCmd},
	{name: "stop", run: stopCmd},
	{name: "test", help: "on|off", args: 1, run: testCmd},
	{name: "led", help: "INDEX on|off", args: 2, run: ledCmd},
	{name: "pwm", help: "INDEX VALUE", args: 2, run: pwmCmd},
	{name: "sim.plug", help: "on|off", args: 1, run: simPlugCmd},
	{name: "sim.switch", help: "INDEX on|off", args: 2, run: simSwitchCmd},
	{name: "sim.analog", help: "INDEX VALUE", args: 2, run: simAnalogCmd},
	{name: "nt", run: ntCmd},
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not on/off", errUsage, s)
}

func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errUsage, s)
	}
	return v, nil
}

func formatBools(vals []bool) string {
	var w bytes.Buffer
	for _, v := range vals {
		if v {
			w.WriteByte('1')
		} else {
			w.WriteByte('0')
		}
	}
	return w.String()
}

func statusCmd(c *Console, _ []string) (string, error) {
	st := c.Handler.Status()
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s (%s)", st.Name, st.Type)
	if st.Port != "" {
		fmt.Fprintf(&w, " on %s", st.Port)
	}
	fmt.Fprintf(&w, ": %s\n", st.Text)
	if st.TestMode {
		fmt.Fprintln(&w, "Test mode: on")
	}
	fmt.Fprintf(&w, "LED: %s\n", formatBools(st.LEDs))
	fmt.Fprintf(&w, "PWM: %v\n", st.PWMs)
	fmt.Fprintf(&w, "SW:  %s\n", formatBools(st.Switches))
	fmt.Fprintf(&w, "ANA: %v", st.Analogs)
	return c.format(st, w.String())
}

func typesCmd(c *Console, _ []string) (string, error) {
	descs := c.Handler.Registry().Descriptors()
	current := c.Handler.Status().Type
	var w bytes.Buffer
	for _, d := range descs {
		mark := " "
		if d.Type == current {
			mark = "*"
		}
		fmt.Fprintf(&w, "%s %s: %s\n", mark, d.Type, d.Name)
	}
	return c.format(descs, w.String())
}

func typeCmd(c *Console, args []string) (string, error) {
	if err := c.Handler.Swap(args[0]); err != nil {
		return "", err
	}
	c.updatePrompt()
	return "OK", nil
}

func startCmd(c *Console, _ []string) (string, error) {
	if err := c.Handler.Start(); err != nil {
		return "", err
	}
	return "OK", nil
}

func stopCmd(c *Console, _ []string) (string, error) {
	c.Handler.Shutdown()
	return "OK", nil
}

func testCmd(c *Console, args []string) (string, error) {
	on, err := parseOnOff(args[0])
	if err != nil {
		return "", err
	}
	c.Handler.SetTestMode(on)
	return "OK", nil
}

func ledCmd(c *Console, args []string) (string, error) {
	index, err := parseInt(args[0])
	if err != nil {
		return "", err
	}
	on, err := parseOnOff(args[1])
	if err != nil {
		return "", err
	}
	if err = c.Handler.SetTestLED(index, on); err != nil {
		return "", err
	}
	return "OK", nil
}

func pwmCmd(c *Console, args []string) (string, error) {
	index, err := parseInt(args[0])
	if err != nil {
		return "", err
	}
	value, err := parseInt(args[1])
	if err != nil {
		return "", err
	}
	if err = c.Handler.SetTestPWM(index, value); err != nil {
		return "", err
	}
	return "OK", nil
}

func simPlugCmd(c *Console, args []string) (string, error) {
	sim, err := c.Handler.Simulator()
	if err != nil {
		return "", err
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return "", err
	}
	sim.SetPlugged(on)
	return "OK", nil
}

func simSwitchCmd(c *Console, args []string) (string, error) {
	sim, err := c.Handler.Simulator()
	if err != nil {
		return "", err
	}
	index, err := parseInt(args[0])
	if err != nil {
		return "", err
	}
	on, err := parseOnOff(args[1])
	if err != nil {
		return "", err
	}
	if err = sim.SetSwitch(index, on); err != nil {
		return "", err
	}
	return "OK", nil
}

func simAnalogCmd(c *Console, args []string) (string, error) {
	sim, err := c.Handler.Simulator()
	if err != nil {
		return "", err
	}
	index, err := parseInt(args[0])
	if err != nil {
		return "", err
	}
	value, err := parseInt(args[1])
	if err != nil {
		return "", err
	}
	if err = sim.SetAnalog(index, value); err != nil {
		return "", err
	}
	return "OK", nil
}

func ntCmd(c *Console, _ []string) (string, error) {
	if c.MirrorURL == "" {
		return "Network table: disabled", nil
	}
	state := "disconnected"
	if c.Handler.Status().MirrorConnected {
		state = "connected"
	}
	return fmt.Sprintf("Network table: %s %s", c.MirrorURL, state), nil
}
