package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/controlboard/pkg/app"
	"github.com/robotalks/controlboard/pkg/env"
	fx "github.com/robotalks/controlboard/pkg/framework"
	"github.com/robotalks/controlboard/pkg/mirror"
	"github.com/robotalks/controlboard/pkg/monitor"
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

	loop := fx.NewLoop()
	loop.Interval = conf.LoopInterval
	loop.Add(h)

	runner := fx.NewRunner().HandleSignals()
	if q != nil {
		q.OnConnect = func(*mirror.Queue) {
			if err := m.ResetTable(); err != nil {
				glog.Warningf("reset table: %v", err)
			}
		}
		q.Connect()
		defer q.Close()
	}
	if conf.MonitorAddr != "" {
		mon := monitor.New(conf.MonitorAddr, func() interface{} { return h.Status() })
		h.AddNotifier(mon.Notify)
		runner.Go(fx.NamedRun("monitor", mon))
	}
	runner.Go(fx.NamedRun("loop", loop), fx.NamedRun("engine", h))
	if err = runner.Wait(); err != nil {
		glog.Error(err)
	}
}
