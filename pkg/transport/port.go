// Package transport provides line oriented access to serial ports and
// discovery of candidate ports by USB identifiers.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// AutoPort selects the first port matching the USB identifiers.
const AutoPort = "auto"

var (
	// ErrNoMatchingDevice indicates discovery found no candidate port.
	ErrNoMatchingDevice = errors.New("no matching device")
	// ErrInvalidPortSelection indicates the named port isn't present.
	ErrInvalidPortSelection = errors.New("invalid port selection")
	// ErrClosed indicates the port has been closed.
	ErrClosed = errors.New("port closed")
)

// Port is the subset of a serial port used by the transport.
type Port interface {
	io.ReadWriteCloser
	// ResetInputBuffer discards pending received bytes.
	ResetInputBuffer() error
	// Drain waits until all written bytes are sent.
	Drain() error
	// SetDTR drives the DTR line.
	SetDTR(dtr bool) error
	// SetReadTimeout bounds a single Read. Read returns 0, nil on timeout.
	SetReadTimeout(t time.Duration) error
}

// Mode is the serial configuration to open a port with.
type Mode struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Opener opens a port by name.
type Opener interface {
	Open(name string, mode Mode) (Port, error)
}

// USBID identifies a USB device by vendor and product.
type USBID struct {
	Vendor  uint16 `yaml:"vendor" json:"vendor"`
	Product uint16 `yaml:"product" json:"product"`
}

// IsValid indicates both ids are configured.
func (id USBID) IsValid() bool {
	return id.Vendor != 0 && id.Product != 0
}

// String implements Stringer.
func (id USBID) String() string {
	return fmt.Sprintf("%04X:%04X", id.Vendor, id.Product)
}

// PortInfo describes an enumerated port.
type PortInfo struct {
	Name string
	USB  bool
	ID   USBID
}

// Enumerator lists available ports.
type Enumerator interface {
	Ports() ([]PortInfo, error)
}

// Driver bundles discovery and opening of ports.
type Driver interface {
	Enumerator
	Opener
}
