package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEnumerator []PortInfo

func (e fakeEnumerator) Ports() ([]PortInfo, error) { return e, nil }

func TestResolve(t *testing.T) {
	ftdi := USBID{Vendor: 0x0403, Product: 0x6001}
	uno := USBID{Vendor: 0x2341, Product: 0x0043}
	ports := fakeEnumerator{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", USB: true, ID: uno},
		{Name: "/dev/ttyUSB0", USB: true, ID: ftdi},
		{Name: "/dev/ttyUSB1", USB: true, ID: ftdi},
	}
	testCases := []struct {
		name   string
		port   string
		id     USBID
		expect string
		err    error
	}{
		{"auto first match", "auto", ftdi, "/dev/ttyUSB0", nil},
		{"auto case insensitive", "AUTO", uno, "/dev/ttyACM0", nil},
		{"auto no match", "auto", USBID{Vendor: 0x1a86, Product: 0x7523}, "", ErrNoMatchingDevice},
		{"auto without ids", "auto", USBID{}, "", ErrInvalidPortSelection},
		{"named match", "/dev/ttyUSB1", ftdi, "/dev/ttyUSB1", nil},
		{"named filtered out", "/dev/ttyACM0", ftdi, "", ErrInvalidPortSelection},
		{"named without ids", "/dev/ttyS0", USBID{}, "/dev/ttyS0", nil},
		{"named absent", "COM3", USBID{}, "", ErrInvalidPortSelection},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, err := Resolve(ports, tc.port, tc.id)
			if tc.err != nil {
				require.True(t, errors.Is(err, tc.err), "unexpected error %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, name)
		})
	}
}

func TestUSBID(t *testing.T) {
	require.Equal(t, "0403:6001", USBID{Vendor: 0x0403, Product: 0x6001}.String())
	require.False(t, USBID{Vendor: 1}.IsValid())
	require.Equal(t, uint16(0x1a86), parseHexID("1A86"))
	require.Equal(t, uint16(0), parseHexID("zz"))
}
