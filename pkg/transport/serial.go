package transport

import (
	"strconv"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Serial is the Driver for real serial ports.
type Serial struct{}

// Open implements Opener.
func (Serial) Open(name string, mode Mode) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if mode.ReadTimeout > 0 {
		if err = port.SetReadTimeout(mode.ReadTimeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}

// Ports implements Enumerator.
func (Serial) Ports() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Name: d.Name, USB: d.IsUSB}
		if d.IsUSB {
			info.ID.Vendor = parseHexID(d.VID)
			info.ID.Product = parseHexID(d.PID)
		}
		ports = append(ports, info)
	}
	return ports, nil
}

func parseHexID(s string) uint16 {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}
