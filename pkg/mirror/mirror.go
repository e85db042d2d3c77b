// Package mirror mirrors the board state to a network table on MQTT.
//
// Inputs of the board are published under Switch and Analog, outputs are
// taken from LED and PWM which the remote peer publishes.
package mirror

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/board"
)

// DefaultTable is the name of the mirrored table.
const DefaultTable = "DriverStationControlBoard"

// Keys of the table.
const (
	KeySwitch = "Switch"
	KeyAnalog = "Analog"
	KeyLED    = "LED"
	KeyPWM    = "PWM"
)

// Table is a key/value table shared with remote peers.
type Table interface {
	Publish(key string, payload []byte) error
	Subscribe(key string, handler func(payload []byte))
	IsConnected() bool
}

// QueueTable is a Table on a Queue, key K maps to topic <Name>/<K>.
type QueueTable struct {
	Queue *Queue
	Name  string
}

// Publish implements Table.
func (t *QueueTable) Publish(key string, payload []byte) error {
	return t.Queue.Pub(t.Name+"/"+key, payload)
}

// Subscribe implements Table.
func (t *QueueTable) Subscribe(key string, handler func(payload []byte)) {
	t.Queue.Sub(t.Name+"/"+key, func(_ string, payload []byte) {
		handler(payload)
	})
}

// IsConnected implements Table.
func (t *QueueTable) IsConnected() bool {
	return t.Queue.IsConnected()
}

// Mirror synchronizes a board.Store with a Table.
type Mirror struct {
	table Table
	codec Codec

	lock    sync.Mutex
	store   *board.Store
	leds    []bool
	pwms    []int
	lastErr string
}

// New creates a Mirror and subscribes the output keys.
func New(table Table, codec Codec) *Mirror {
	m := &Mirror{table: table, codec: codec}
	table.Subscribe(KeyLED, m.receiveLEDs)
	table.Subscribe(KeyPWM, m.receivePWMs)
	return m
}

// Attach switches the mirrored store.
func (m *Mirror) Attach(store *board.Store) {
	m.lock.Lock()
	m.store, m.leds, m.pwms = store, nil, nil
	m.lock.Unlock()
}

// Connected indicates the table is connected.
func (m *Mirror) Connected() bool {
	return m.table.IsConnected()
}

func (m *Mirror) receiveLEDs(payload []byte) {
	vals, err := m.codec.DecodeBools(payload)
	if err != nil {
		glog.Warningf("bad %s payload: %v", KeyLED, err)
		return
	}
	m.lock.Lock()
	m.leds = vals
	m.lock.Unlock()
}

func (m *Mirror) receivePWMs(payload []byte) {
	vals, err := m.codec.DecodeNumbers(payload)
	if err != nil {
		glog.Warningf("bad %s payload: %v", KeyPWM, err)
		return
	}
	m.lock.Lock()
	m.pwms = vals
	m.lock.Unlock()
}

// Update publishes the inputs and applies the last outputs received.
func (m *Mirror) Update() error {
	m.lock.Lock()
	store, leds, pwms := m.store, m.leds, m.pwms
	m.lock.Unlock()
	if store == nil {
		return nil
	}
	if err := m.publishBools(KeySwitch, store.SwitchValues()); err != nil {
		return err
	}
	if err := m.publishNumbers(KeyAnalog, store.AnalogValues()); err != nil {
		return err
	}
	if leds != nil {
		m.applied(store.PutLEDValues(leds))
	}
	if pwms != nil {
		m.applied(store.PutPWMValues(pwms))
	}
	return nil
}

// applied logs a rejected remote value once until it changes.
func (m *Mirror) applied(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err == nil {
		m.lastErr = ""
		return
	}
	if msg := err.Error(); msg != m.lastErr {
		glog.Warningf("remote outputs rejected: %v", err)
		m.lastErr = msg
	}
}

// ResetTable resets the store and publishes all keys with zero values.
func (m *Mirror) ResetTable() error {
	m.lock.Lock()
	store := m.store
	m.lock.Unlock()
	if store == nil {
		return nil
	}
	store.ResetValues()
	leds, pwms := store.LEDValues(), store.PWMValues()
	m.lock.Lock()
	m.leds, m.pwms, m.lastErr = leds, pwms, ""
	m.lock.Unlock()

	if err := m.publishBools(KeySwitch, store.SwitchValues()); err != nil {
		return err
	}
	if err := m.publishBools(KeyLED, leds); err != nil {
		return err
	}
	if err := m.publishNumbers(KeyAnalog, store.AnalogValues()); err != nil {
		return err
	}
	return m.publishNumbers(KeyPWM, pwms)
}

func (m *Mirror) publishBools(key string, vals []bool) error {
	payload, err := m.codec.EncodeBools(vals)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err = m.table.Publish(key, payload); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (m *Mirror) publishNumbers(key string, vals []int) error {
	payload, err := m.codec.EncodeNumbers(vals)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err = m.table.Publish(key, payload); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
