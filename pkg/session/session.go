// Package session drives one control board over a line transport.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/protocol"
	"github.com/robotalks/controlboard/pkg/registry"
	"github.com/robotalks/controlboard/pkg/transport"
)

var (
	// ErrTransport indicates the link failed, the connection is lost.
	ErrTransport = errors.New("transport error")
	// ErrTimeout indicates the board didn't answer in time.
	ErrTimeout = errors.New("timeout")
	// ErrDataCorruption indicates an answer failed to decode.
	ErrDataCorruption = errors.New("data corruption")
	// ErrHandshakeFailed indicates an unexpected welcome after reset.
	ErrHandshakeFailed = errors.New("handshake failed")
	// ErrNotConnected indicates the session isn't connected.
	ErrNotConnected = errors.New("not connected")

	ErrNoMatchingDevice     = transport.ErrNoMatchingDevice
	ErrInvalidPortSelection = transport.ErrInvalidPortSelection
)

// Session owns the transport and codec of one board.
type Session struct {
	desc   registry.Descriptor
	codec  protocol.Codec
	driver transport.Driver

	lock sync.Mutex
	line *transport.Line
	port string
}

// New creates a disconnected session.
func New(desc registry.Descriptor, driver transport.Driver) *Session {
	return &Session{desc: desc, codec: desc.Codec(), driver: driver}
}

// Descriptor returns the device descriptor.
func (s *Session) Descriptor() registry.Descriptor {
	return s.desc
}

// PortName returns the name of the connected port.
func (s *Session) PortName() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.port
}

// Connect resolves and opens the port.
func (s *Session) Connect() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.line != nil {
		return nil
	}
	name, err := transport.Resolve(s.driver, s.desc.Port, s.desc.USB)
	if err != nil {
		return err
	}
	port, err := s.driver.Open(name, transport.Mode{
		BaudRate:    s.desc.BaudRate,
		ReadTimeout: s.desc.Timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrTransport, name, err)
	}
	s.line, s.port = transport.NewLine(port, s.desc.Timeout), name
	glog.Infof("%s connected on %s", s.desc.Type, name)
	return nil
}

// IsConnected indicates the port is open.
func (s *Session) IsConnected() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.line != nil
}

// Disconnect closes the port. It's a no-op when not connected.
func (s *Session) Disconnect() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.line == nil {
		return nil
	}
	err := s.line.Close()
	s.line, s.port = nil, ""
	glog.V(2).Infof("%s disconnected", s.desc.Type)
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrTransport, err)
	}
	return nil
}

func (s *Session) connected() (*transport.Line, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.line == nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, ErrNotConnected)
	}
	return s.line, nil
}

// ResetAndHandshake resets the board and waits for its welcome.
func (s *Session) ResetAndHandshake() error {
	line, err := s.connected()
	if err != nil {
		return err
	}
	if err = line.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrTransport, err)
	}
	if err = line.PulseDTR(s.desc.ResetPulse); err != nil {
		return fmt.Errorf("%w: reset: %v", ErrTransport, err)
	}
	welcome, err := line.ReadLine()
	if err != nil {
		return fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
	if strings.TrimSpace(welcome) == "" {
		return fmt.Errorf("%w: no welcome after reset", ErrTimeout)
	}
	if welcome != s.desc.Welcome+protocol.LineEnding {
		return fmt.Errorf("%w: unexpected welcome %q", ErrHandshakeFailed, welcome)
	}
	glog.V(2).Infof("%s welcomed", s.desc.Type)
	return nil
}

// Exchange writes outputs and returns the inputs the board answers with.
func (s *Session) Exchange(leds []bool, pwms []int) (switches []bool, analogs []int, err error) {
	frame, err := s.codec.Encode(leds, pwms)
	if err != nil {
		return nil, nil, err
	}
	line, err := s.connected()
	if err != nil {
		return nil, nil, err
	}
	glog.V(4).Infof("%s > %s", s.desc.Type, frame)
	if err = line.WriteLine(frame); err != nil {
		return nil, nil, fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	answer, err := line.ReadLine()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
	glog.V(4).Infof("%s < %q", s.desc.Type, answer)
	if strings.TrimSpace(answer) == "" {
		return nil, nil, fmt.Errorf("%w: no answer", ErrTimeout)
	}
	if switches, analogs, err = s.codec.Decode(answer); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDataCorruption, err)
	}
	return switches, analogs, nil
}
