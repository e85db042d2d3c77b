package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/controlboard/pkg/env"
	"github.com/robotalks/controlboard/pkg/mirror"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf := env.NewConfig()
	if conf.MQTTBrokerURL == "" {
		log.Fatalln("MQTT broker URL required")
	}
	codec, err := mirror.CodecByName(conf.Payload)
	if err != nil {
		log.Fatalln(err)
	}
	clientID := conf.ClientID
	if clientID == "" {
		hostname, _ := os.Hostname()
		clientID = "cbmon:" + hostname
	}
	q, err := mirror.NewQueueFromURL(conf.MQTTBrokerURL, clientID)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub(conf.Table+"/#", func(topic string, payload []byte) {
		var val interface{}
		var err error
		switch key := topic[strings.LastIndex(topic, "/")+1:]; key {
		case mirror.KeySwitch, mirror.KeyLED:
			val, err = codec.DecodeBools(payload)
		case mirror.KeyAnalog, mirror.KeyPWM:
			val, err = codec.DecodeNumbers(payload)
		default:
			log.Printf("%s: unknown key", topic)
			return
		}
		if err != nil {
			log.Printf("%s: bad payload: %v", topic, err)
			return
		}
		log.Printf("%s: %v", topic, val)
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
