package transport

import (
	"bytes"
	"time"
)

// Line reads and writes CRLF terminated lines over a Port.
type Line struct {
	port    Port
	timeout time.Duration
	pending []byte
	buf     [256]byte
}

// NewLine wraps an opened port. timeout bounds ReadLine.
func NewLine(port Port, timeout time.Duration) *Line {
	return &Line{port: port, timeout: timeout}
}

// ReadLine reads until '\n' (included in the result) or timeout.
// On timeout whatever has been received is returned, possibly empty.
func (l *Line) ReadLine() (string, error) {
	deadline := time.Now().Add(l.timeout)
	for {
		if pos := bytes.IndexByte(l.pending, '\n'); pos >= 0 {
			line := string(l.pending[:pos+1])
			l.pending = append(l.pending[:0], l.pending[pos+1:]...)
			return line, nil
		}
		n, err := l.port.Read(l.buf[:])
		if err != nil {
			return "", err
		}
		l.pending = append(l.pending, l.buf[:n]...)
		if n == 0 || (l.timeout > 0 && time.Now().After(deadline)) {
			if bytes.IndexByte(l.pending, '\n') >= 0 {
				continue
			}
			line := string(l.pending)
			l.pending = l.pending[:0]
			return line, nil
		}
	}
}

// WriteLine writes s followed by CRLF and waits until it's sent.
func (l *Line) WriteLine(s string) error {
	data := make([]byte, 0, len(s)+2)
	data = append(append(data, s...), '\r', '\n')
	for len(data) > 0 {
		n, err := l.port.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return l.port.Drain()
}

// Flush discards everything received so far.
func (l *Line) Flush() error {
	l.pending = l.pending[:0]
	return l.port.ResetInputBuffer()
}

// PulseDTR asserts DTR for d then releases it.
func (l *Line) PulseDTR(d time.Duration) error {
	if err := l.port.SetDTR(true); err != nil {
		return err
	}
	time.Sleep(d)
	return l.port.SetDTR(false)
}

// Close closes the underlying port.
func (l *Line) Close() error {
	return l.port.Close()
}
