package registry

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/controlboard/pkg/transport"
)

// Registry is an ordered table of device descriptors.
type Registry struct {
	types []string
	descs map[string]Descriptor
	lock  sync.RWMutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{descs: make(map[string]Descriptor)}
}

// Builtin creates a registry with all supported device types.
// The first one is the fallback type.
func Builtin() *Registry {
	r := New()
	for _, d := range builtinDescriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// SimulatorPort is the port name of the built-in simulators.
const SimulatorPort = "sim0"

var builtinDescriptors = []Descriptor{
	{
		Type: "ControlBoard_1v1", Name: "FRC Control Board - Version 1.1",
		LEDs: 16, PWMs: 11, Analogs: 16, Switches: 16,
		USB:     transport.USBID{Vendor: 0x0403, Product: 0x6001},
		Timeout: time.Second,
	},
	{
		Type: "ArduinoUno", Name: "Arduino Uno",
		LEDs: 4, PWMs: 1, Analogs: 6, Switches: 6,
		USB:     transport.USBID{Vendor: 0x2341, Product: 0x0043},
		Timeout: 2 * time.Second,
	},
	{
		Type: "ArduinoUnoCH340G", Name: "Arduino Uno Clone (w/ CH340G USB to Serial)",
		LEDs: 4, PWMs: 1, Analogs: 6, Switches: 6,
		USB:     transport.USBID{Vendor: 0x1a86, Product: 0x7523},
		Timeout: 2 * time.Second,
	},
	{
		Type: "ControlBoard_1v1_Simulator", Name: "Control Board v1.1 Simulator",
		LEDs: 16, PWMs: 11, Analogs: 16, Switches: 16,
		Port:      SimulatorPort,
		Simulated: true,
	},
	{
		Type: "ArduinoUno_Simulator", Name: "Arduino Uno Simulator",
		LEDs: 4, PWMs: 1, Analogs: 6, Switches: 6,
		Port:      SimulatorPort,
		Simulated: true,
	},
}

// Register adds or replaces a descriptor after applying defaults.
func (r *Registry) Register(d Descriptor) error {
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exist := r.descs[d.Type]; !exist {
		r.types = append(r.types, d.Type)
	}
	r.descs[d.Type] = d
	return nil
}

// Lookup finds the descriptor of a device type.
func (r *Registry) Lookup(typ string) (Descriptor, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	d, ok := r.descs[typ]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return d, nil
}

// Types lists device types in registration order.
func (r *Registry) Types() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]string(nil), r.types...)
}

// Descriptors lists descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	descs := make([]Descriptor, 0, len(r.types))
	for _, typ := range r.types {
		descs = append(descs, r.descs[typ])
	}
	return descs
}

// Fallback returns the first registered type.
func (r *Registry) Fallback() (Descriptor, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if len(r.types) == 0 {
		return Descriptor{}, fmt.Errorf("%w: registry is empty", ErrUnknownType)
	}
	return r.descs[r.types[0]], nil
}

type descriptorFile struct {
	Devices []Descriptor `yaml:"devices"`
}

// LoadYAML registers descriptors from a document like
//
//	devices:
//	  - type: MegaBoard
//	    leds: 8
//	    usb: {vendor: 0x2341, product: 0x0042}
func (r *Registry) LoadYAML(reader io.Reader) error {
	var file descriptorFile
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil && err != io.EOF {
		return fmt.Errorf("decode device descriptors: %w", err)
	}
	for _, d := range file.Devices {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile registers descriptors from a YAML file.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.LoadYAML(f)
}
