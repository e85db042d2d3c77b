// Package env provides the common configuration of control board binaries.
package env

import (
	"flag"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/mirror"
	"github.com/robotalks/controlboard/pkg/registry"
)

// Config provides common options of the console and the daemon.
type Config struct {
	// DeviceType selects the registered device type.
	DeviceType string
	// Port overrides the port of the descriptor, "auto" for discovery.
	Port string
	// DevicesFile is a YAML file with extra device descriptors.
	DevicesFile string
	// ReconnectDelay is the pause between reconnect attempts.
	ReconnectDelay time.Duration

	// MQTTBrokerURL specifies the MQTT broker to mirror the table to.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string
	// ClientID is the MQTT client id.
	ClientID string
	// Table is the name of the mirrored table.
	Table string
	// Payload is the payload codec, json or proto.
	Payload string

	// MonitorAddr is the listen address of the status monitor.
	MonitorAddr string
	// LoopInterval is the period of mirroring when no event happens.
	LoopInterval time.Duration
}

var defaultConfig = Config{
	DeviceType:     "ControlBoard_1v1",
	ReconnectDelay: time.Second,
	MQTTBrokerURL:  "mqtt://localhost:1883/",
	Table:          mirror.DefaultTable,
	Payload:        "json",
	MonitorAddr:    ":8754",
	LoopInterval:   100 * time.Millisecond,
}

func init() {
	if val := os.Getenv("CB_TYPE"); val != "" {
		defaultConfig.DeviceType = val
	}
	if val := os.Getenv("CB_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("CB_DEVICES"); val != "" {
		defaultConfig.DevicesFile = val
	}
	if val := os.Getenv("CB_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("CB_TABLE"); val != "" {
		defaultConfig.Table = val
	}
	if val := os.Getenv("CB_PAYLOAD"); val != "" {
		defaultConfig.Payload = val
	}
	if val := os.Getenv("CB_MONITOR_ADDR"); val != "" {
		defaultConfig.MonitorAddr = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceType, "type", defaultConfig.DeviceType, "Control board type")
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port, auto for discovery")
	flag.StringVar(&defaultConfig.DevicesFile, "devices", defaultConfig.DevicesFile, "YAML file of extra device types")
	flag.DurationVar(&defaultConfig.ReconnectDelay, "reconnect-delay", defaultConfig.ReconnectDelay, "Delay between reconnect attempts")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable mirroring")
	flag.StringVar(&defaultConfig.ClientID, "client-id", defaultConfig.ClientID, "MQTT client ID")
	flag.StringVar(&defaultConfig.Table, "table", defaultConfig.Table, "Mirrored table name")
	flag.StringVar(&defaultConfig.Payload, "payload", defaultConfig.Payload, "Payload codec: json or proto")
	flag.StringVar(&defaultConfig.MonitorAddr, "monitor", defaultConfig.MonitorAddr, "Status monitor listen address, empty to disable")
	flag.DurationVar(&defaultConfig.LoopInterval, "interval", defaultConfig.LoopInterval, "Mirroring interval")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MQTTClientID returns ClientID or one derived from the machine id.
func (c *Config) MQTTClientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	id, err := machineid.ProtectedID("controlboard")
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		hostname, _ := os.Hostname()
		return "cb:" + hostname
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return "cb:" + id
}

// Registry builds the device registry including DevicesFile.
func (c *Config) Registry() (*registry.Registry, error) {
	reg := registry.Builtin()
	if c.DevicesFile != "" {
		if err := reg.LoadFile(c.DevicesFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Descriptor applies the configured overrides to a descriptor.
func (c *Config) Descriptor(desc registry.Descriptor) registry.Descriptor {
	if c.Port != "" && !desc.Simulated {
		desc.Port = c.Port
	}
	return desc
}

// NewMirror creates the MQTT mirror. It returns nil when MQTTBrokerURL is
// empty. The returned Queue must be connected by the caller.
func (c *Config) NewMirror() (*mirror.Mirror, *mirror.Queue, error) {
	if c.MQTTBrokerURL == "" {
		return nil, nil, nil
	}
	codec, err := mirror.CodecByName(c.Payload)
	if err != nil {
		return nil, nil, err
	}
	q, err := mirror.NewQueueFromURL(c.MQTTBrokerURL, c.MQTTClientID())
	if err != nil {
		return nil, nil, err
	}
	return mirror.New(&mirror.QueueTable{Queue: q, Name: c.Table}, codec), q, nil
}

