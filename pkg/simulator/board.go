// Package simulator emulates control board firmware in memory.
//
// A Board is a transport.Driver: while plugged it enumerates one port and
// opening it yields a transport.Port speaking the wire protocol, so the
// device session runs unchanged against it.
package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/protocol"
	"github.com/robotalks/controlboard/pkg/transport"
)

// ErrUnplugged is returned by I/O on a port whose board got unplugged.
var ErrUnplugged = errors.New("device unplugged")

// DefaultLatency is the time the board takes to answer a frame.
const DefaultLatency = 20 * time.Millisecond

// Board is a simulated control board.
type Board struct {
	name  string
	id    transport.USBID
	codec protocol.Codec

	lock     sync.Mutex
	ready    chan struct{}
	plugged  bool
	open     bool
	gen      int
	dtr      bool
	timeout  time.Duration
	latency  time.Duration
	welcome  string
	mute     bool
	corrupt  bool
	rx       []byte
	tx       []byte
	leds     []bool
	pwms     []int
	switches []bool
	analogs  []int
	frames   int
}

// New creates a plugged board enumerated as name.
func New(name string, id transport.USBID, codec protocol.Codec) *Board {
	return &Board{
		name:     name,
		id:       id,
		codec:    codec,
		ready:    make(chan struct{}, 1),
		plugged:  true,
		latency:  DefaultLatency,
		welcome:  protocol.Welcome,
		leds:     make([]bool, codec.LEDs),
		pwms:     make([]int, codec.PWMs),
		switches: make([]bool, codec.Switches),
		analogs:  make([]int, codec.Analogs),
	}
}

// Name returns the port name.
func (b *Board) Name() string {
	return b.name
}

// Ports implements transport.Enumerator.
func (b *Board) Ports() ([]transport.PortInfo, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.plugged {
		return nil, nil
	}
	return []transport.PortInfo{{Name: b.name, USB: b.id.IsValid(), ID: b.id}}, nil
}

// Open implements transport.Opener.
func (b *Board) Open(name string, mode transport.Mode) (transport.Port, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.plugged || name != b.name {
		return nil, fmt.Errorf("open %s: no such port", name)
	}
	if b.open {
		return nil, fmt.Errorf("open %s: port busy", name)
	}
	b.open, b.gen = true, b.gen+1
	b.timeout = mode.ReadTimeout
	b.rx, b.tx = nil, nil
	glog.V(4).Infof("sim %s opened at %d baud", name, mode.BaudRate)
	return &port{board: b, gen: b.gen}, nil
}

// SetPlugged simulates plugging or unplugging the USB cable.
func (b *Board) SetPlugged(plugged bool) {
	b.lock.Lock()
	b.plugged = plugged
	if !plugged {
		b.open = false
	}
	b.lock.Unlock()
	b.signal()
}

// Plugged indicates the board is plugged.
func (b *Board) Plugged() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.plugged
}

// SetWelcome overrides the line sent after a reset.
func (b *Board) SetWelcome(welcome string) {
	b.lock.Lock()
	b.welcome = welcome
	b.lock.Unlock()
}

// SetLatency sets the time the board takes to answer a frame.
func (b *Board) SetLatency(d time.Duration) {
	b.lock.Lock()
	b.latency = d
	b.lock.Unlock()
}

// SetMute stops the board from answering frames.
func (b *Board) SetMute(mute bool) {
	b.lock.Lock()
	b.mute = mute
	b.lock.Unlock()
}

// SetCorrupt makes the board damage every answer it sends.
func (b *Board) SetCorrupt(corrupt bool) {
	b.lock.Lock()
	b.corrupt = corrupt
	b.lock.Unlock()
}

// SetSwitch sets a switch input.
func (b *Board) SetSwitch(index int, on bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if index < 0 || index >= len(b.switches) {
		return fmt.Errorf("switch %d out of range 0..%d", index, len(b.switches)-1)
	}
	b.switches[index] = on
	return nil
}

// SetAnalog sets an analog input.
func (b *Board) SetAnalog(index, value int) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if index < 0 || index >= len(b.analogs) {
		return fmt.Errorf("analog %d out of range 0..%d", index, len(b.analogs)-1)
	}
	b.analogs[index] = value
	return nil
}

// Outputs returns the last LED and PWM values received from the host.
func (b *Board) Outputs() ([]bool, []int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]bool(nil), b.leds...), append([]int(nil), b.pwms...)
}

// Frames returns the number of valid frames received.
func (b *Board) Frames() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.frames
}

func (b *Board) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *Board) checkLocked(gen int) error {
	if !b.plugged {
		return ErrUnplugged
	}
	if !b.open || b.gen != gen {
		return transport.ErrClosed
	}
	return nil
}

// resetLocked reboots the firmware, which greets the host once up.
func (b *Board) resetLocked() {
	b.rx, b.tx = nil, nil
	b.leds = make([]bool, b.codec.LEDs)
	b.pwms = make([]int, b.codec.PWMs)
	b.tx = append(b.tx, b.welcome+protocol.LineEnding...)
}

// receiveLocked processes complete lines and returns the number of answers.
func (b *Board) receiveLocked(data []byte) (answers int) {
	b.rx = append(b.rx, data...)
	for {
		pos := bytes.IndexByte(b.rx, '\n')
		if pos < 0 {
			return
		}
		line := string(b.rx[:pos+1])
		b.rx = b.rx[pos+1:]
		if b.dtr || b.mute {
			continue
		}
		leds, pwms, err := b.codec.DecodeOutputs(line)
		if err != nil {
			glog.V(2).Infof("sim %s: drop frame: %v", b.name, err)
			continue
		}
		b.leds, b.pwms = leds, pwms
		b.frames++
		answer, err := b.codec.EncodeInputs(b.switches, b.analogs)
		if err != nil {
			glog.Errorf("sim %s: %v", b.name, err)
			continue
		}
		if b.corrupt {
			answer = corrupt(answer)
		}
		b.tx = append(b.tx, answer+protocol.LineEnding...)
		answers++
	}
}

// corrupt flips the first digit so the checksum no longer matches.
func corrupt(frame string) string {
	data := []byte(frame)
	for n, c := range data {
		if c >= '0' && c <= '9' {
			data[n] = '0' + (c-'0'+1)%10
			break
		}
	}
	return string(data)
}

type port struct {
	board *Board
	gen   int
}

func (p *port) Read(data []byte) (int, error) {
	b := p.board
	b.lock.Lock()
	timeout := b.timeout
	b.lock.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		b.lock.Lock()
		if err := b.checkLocked(p.gen); err != nil {
			b.lock.Unlock()
			return 0, err
		}
		if len(b.tx) > 0 {
			n := copy(data, b.tx)
			b.tx = b.tx[n:]
			b.lock.Unlock()
			return n, nil
		}
		b.lock.Unlock()
		select {
		case <-b.ready:
		case <-expired:
			return 0, nil
		}
	}
}

func (p *port) Write(data []byte) (int, error) {
	b := p.board
	b.lock.Lock()
	if err := b.checkLocked(p.gen); err != nil {
		b.lock.Unlock()
		return 0, err
	}
	answers := b.receiveLocked(data)
	latency := b.latency
	b.lock.Unlock()
	if answers > 0 {
		b.signal()
		time.Sleep(latency)
	}
	return len(data), nil
}

func (p *port) Close() error {
	b := p.board
	b.lock.Lock()
	if b.gen == p.gen {
		b.open = false
	}
	b.lock.Unlock()
	b.signal()
	return nil
}

func (p *port) ResetInputBuffer() error {
	b := p.board
	b.lock.Lock()
	defer b.lock.Unlock()
	if err := b.checkLocked(p.gen); err != nil {
		return err
	}
	b.tx = nil
	return nil
}

func (p *port) Drain() error {
	b := p.board
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.checkLocked(p.gen)
}

func (p *port) SetDTR(dtr bool) error {
	b := p.board
	b.lock.Lock()
	defer b.lock.Unlock()
	if err := b.checkLocked(p.gen); err != nil {
		return err
	}
	if b.dtr && !dtr {
		glog.V(2).Infof("sim %s: reset", b.name)
		b.resetLocked()
		b.signal()
	}
	b.dtr = dtr
	return nil
}

func (p *port) SetReadTimeout(t time.Duration) error {
	b := p.board
	b.lock.Lock()
	defer b.lock.Unlock()
	b.timeout = t
	return nil
}
