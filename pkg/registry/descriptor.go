// Package registry maps device type tags to their static descriptors.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/robotalks/controlboard/pkg/protocol"
	"github.com/robotalks/controlboard/pkg/transport"
)

// Defaults applied to descriptors leaving fields unset.
const (
	DefaultBaudRate   = 115200
	DefaultTimeout    = time.Second
	DefaultResetPulse = 50 * time.Millisecond
	DefaultPWMMax     = 255
)

var (
	// ErrUnknownType indicates the device type isn't registered.
	ErrUnknownType = errors.New("unknown device type")
	// ErrInvalidDescriptor indicates a descriptor fails validation.
	ErrInvalidDescriptor = errors.New("invalid device descriptor")
)

// Descriptor is the immutable configuration of a device type.
type Descriptor struct {
	// Type is the short tag, e.g. ArduinoUno.
	Type string `yaml:"type" json:"type"`
	// Name is the display name.
	Name string `yaml:"name" json:"name"`

	LEDs     int `yaml:"leds" json:"leds"`
	PWMs     int `yaml:"pwms" json:"pwms"`
	Analogs  int `yaml:"analogs" json:"analogs"`
	Switches int `yaml:"switches" json:"switches"`
	PWMMax   int `yaml:"pwm_max" json:"pwm_max"`

	// Port is the port name or transport.AutoPort.
	Port       string          `yaml:"port" json:"port"`
	USB        transport.USBID `yaml:"usb" json:"usb"`
	BaudRate   int             `yaml:"baud_rate" json:"baud_rate"`
	Timeout    time.Duration   `yaml:"timeout" json:"timeout"`
	ResetPulse time.Duration   `yaml:"reset_pulse" json:"reset_pulse"`
	Welcome    string          `yaml:"welcome" json:"welcome"`

	// Simulated selects the in-process firmware instead of a serial port.
	Simulated bool `yaml:"simulated" json:"simulated"`
}

// WithDefaults fills unset fields.
func (d Descriptor) WithDefaults() Descriptor {
	if d.Name == "" {
		d.Name = d.Type
	}
	if d.Port == "" {
		d.Port = transport.AutoPort
	}
	if d.BaudRate == 0 {
		d.BaudRate = DefaultBaudRate
	}
	if d.Timeout == 0 {
		d.Timeout = DefaultTimeout
	}
	if d.ResetPulse == 0 {
		d.ResetPulse = DefaultResetPulse
	}
	if d.Welcome == "" {
		d.Welcome = protocol.Welcome
	}
	if d.PWMMax == 0 {
		d.PWMMax = DefaultPWMMax
	}
	return d
}

// Validate checks the descriptor is usable.
func (d Descriptor) Validate() error {
	switch {
	case d.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidDescriptor)
	case d.LEDs < 0 || d.LEDs > protocol.MaxBitChannels:
		return fmt.Errorf("%w: %s: leds must be within 0..%d", ErrInvalidDescriptor, d.Type, protocol.MaxBitChannels)
	case d.Switches < 0 || d.Switches > protocol.MaxBitChannels:
		return fmt.Errorf("%w: %s: switches must be within 0..%d", ErrInvalidDescriptor, d.Type, protocol.MaxBitChannels)
	case d.PWMs < 0 || d.Analogs < 0:
		return fmt.Errorf("%w: %s: negative channel count", ErrInvalidDescriptor, d.Type)
	case d.PWMMax < 0:
		return fmt.Errorf("%w: %s: negative pwm_max", ErrInvalidDescriptor, d.Type)
	case d.BaudRate < 0 || d.Timeout < 0 || d.ResetPulse < 0:
		return fmt.Errorf("%w: %s: negative timing", ErrInvalidDescriptor, d.Type)
	}
	return nil
}

// Codec returns the frame codec for the channel layout.
func (d Descriptor) Codec() protocol.Codec {
	return protocol.Codec{LEDs: d.LEDs, PWMs: d.PWMs, Analogs: d.Analogs, Switches: d.Switches}
}
