package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/app"
	"github.com/robotalks/controlboard/pkg/console"
	"github.com/robotalks/controlboard/pkg/env"
	fx "github.com/robotalks/controlboard/pkg/framework"
	"github.com/robotalks/controlboard/pkg/mirror"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.NewConfig()
	reg, err := conf.Registry()
	if err != nil {
		glog.Exit(err)
	}
	m, q, err := conf.NewMirror()
	if err != nil {
		glog.Exit(err)
	}
	h := app.New(reg, app.Options{
		Mirror:         m,
		Descriptor:     conf.Descriptor,
		ReconnectDelay: conf.ReconnectDelay,
	})
	if err = h.InitOrFallback(conf.DeviceType); err != nil {
		glog.Exit(err)
	}

	con := console.New(h)
	if q != nil {
		con.MirrorURL = conf.MQTTBrokerURL
		q.OnConnect = func(*mirror.Queue) {
			if err := m.ResetTable(); err != nil {
				glog.Warningf("reset table: %v", err)
			}
		}
		q.Connect()
		defer q.Close()
	}

	loop := fx.NewLoop()
	loop.Interval = conf.LoopInterval
	loop.Add(h)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	if err = h.Start(); err != nil {
		glog.Exit(err)
	}
	defer h.Shutdown()
	con.Run(flag.Args()...)
}
