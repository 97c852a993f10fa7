// Copyright 2023 The OpenXRT Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// xmgmtd is the card management daemon. It owns one device instance per
// configured card, serves the management command protocol on a unix
// socket per card, polls the firewall hardware, and mirrors state over
// Prometheus metrics and the read-only status HTTP surface.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/hwmonitor"
	"github.com/openxrt/xmgmt/pkg/mgmtdev"
	"github.com/openxrt/xmgmt/pkg/mgmtdev/chardev"
	"github.com/openxrt/xmgmt/pkg/mgmtdev/sim"
	"github.com/openxrt/xmgmt/pkg/mgmtserver"
	"github.com/openxrt/xmgmt/pkg/triplog"
	"github.com/openxrt/xmgmt/pkg/webstatus"
)

type options struct {
	configPath  string
	socketDir   string
	metricsAddr string
	statusAddr  string
	journalPath string
	pollPeriod  time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.configPath, "config", "/etc/xmgmt/xmgmtd.conf", "card roster config file")
	flag.StringVar(&opts.socketDir, "socket-dir", "/var/run/xmgmt", "directory for the per-card protocol sockets")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", ":9890", "Prometheus metrics listen address, empty disables")
	flag.StringVar(&opts.statusAddr, "status-addr", ":8890", "status HTTP listen address, empty disables")
	flag.StringVar(&opts.journalPath, "journal", "", "SQLite trip journal path, empty disables the journal")
	flag.DurationVar(&opts.pollPeriod, "poll-period", hwmonitor.DefaultPollPeriod, "firewall poll period")
	klog.InitFlags(nil)
	flag.Parse()

	if err := run(opts); err != nil {
		klog.Exitf("%+v", err)
	}
}

func run(opts options) error {
	cards, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal *triplog.Journal

	if opts.journalPath != "" {
		if journal, err = triplog.Open(opts.journalPath); err != nil {
			return err
		}
		defer journal.Close()
	}

	if err := os.MkdirAll(opts.socketDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create socket dir %s", opts.socketDir)
	}

	feed := webstatus.NewFeed()
	status := webstatus.New(journal, feed)
	manager := mgmtserver.NewManager(opts.socketDir)

	g, ctx := errgroup.WithContext(ctx)

	monitors := make([]*hwmonitor.Monitor, 0, len(cards))

	for _, cfg := range cards {
		collab, source, err := buildCard(cfg)
		if err != nil {
			return err
		}

		dev := mgmtdev.NewDevice(cfg.Name, collab)

		srv, err := manager.Add(cfg.Name, mgmtdev.NewDispatcher(dev))
		if err != nil {
			return err
		}

		sink := hwmonitor.MultiSink{mgmtserver.NewMetricsSink(cfg.Name, dev.Ledger()), feed}
		if journal != nil {
			sink = append(sink, triplog.NewSink(journal))
		}

		monitor := hwmonitor.New(cfg.Name, source, dev.Ledger(), opts.pollPeriod)
		monitor.SetSink(sink)
		monitors = append(monitors, monitor)

		status.AddDevice(dev)

		klog.V(1).Infof("%s: configured with driver %s", cfg.Name, cfg.Driver)

		g.Go(srv.Serve)
		g.Go(monitor.Run)
	}

	httpServers := []*http.Server{}

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpServers = append(httpServers, serveHTTP(g, "metrics", opts.metricsAddr, mux))
	}

	if opts.statusAddr != "" {
		httpServers = append(httpServers, serveHTTP(g, "status", opts.statusAddr, status.Handler()))
	}

	g.Go(func() error {
		<-ctx.Done()

		klog.V(1).Info("shutting down")
		manager.StopAll()

		for _, m := range monitors {
			m.Stop()
		}

		for _, srv := range httpServers {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
		}

		return nil
	})

	return g.Wait()
}

// serveHTTP starts one HTTP listener under the group. Clean shutdown
// via Shutdown is not an error.
func serveHTTP(g *errgroup.Group, name, addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		klog.V(1).Infof("%s server listening on %s", name, addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "%s server failed", name)
		}

		return nil
	})

	return srv
}

// buildCard assembles the collaborator set and the firewall poll source
// for one roster entry.
func buildCard(cfg cardConfig) (mgmtdev.Collaborators, hwmonitor.FirewallSource, error) {
	switch cfg.Driver {
	case driverSim:
		model := sim.DefaultModel()

		if cfg.Model != "" {
			var err error
			if model, err = sim.LoadModel(cfg.Model); err != nil {
				return mgmtdev.Collaborators{}, nil, err
			}
		}

		card := sim.NewCard(model)

		info, err := overlaySensors(cfg, card)
		if err != nil {
			return mgmtdev.Collaborators{}, nil, err
		}

		return mgmtdev.Collaborators{Loader: card, Clocks: card, Reset: card, Info: info}, card, nil

	case driverChardev:
		dev, err := chardev.New(cfg.Device)
		if err != nil {
			return mgmtdev.Collaborators{}, nil, err
		}

		info, err := overlaySensors(cfg, dev)
		if err != nil {
			return mgmtdev.Collaborators{}, nil, err
		}

		return mgmtdev.Collaborators{Loader: dev, Clocks: dev, Reset: dev, Info: info}, dev, nil
	}

	// Unreachable after config validation.
	return mgmtdev.Collaborators{}, nil, errors.Errorf("card %s: unknown driver %q", cfg.Name, cfg.Driver)
}

// overlaySensors wraps the base info source with the configured sensor
// overlays. With none configured the base is returned untouched.
func overlaySensors(cfg cardConfig, base mgmtdev.InfoSource) (mgmtdev.InfoSource, error) {
	sensors := []hwmonitor.SensorSource{}

	if cfg.HwmonRoot != "" {
		sensors = append(sensors, &hwmonitor.HwmonSource{Root: cfg.HwmonRoot})
	}

	if cfg.TelemetryURL != "" {
		mapping, err := hwmonitor.LoadMetricMap(cfg.MetricMap)
		if err != nil {
			return nil, err
		}

		sensors = append(sensors, hwmonitor.NewTelemetryScraper(cfg.TelemetryURL, mapping))
	}

	if len(sensors) == 0 {
		return base, nil
	}

	return &hwmonitor.InfoOverlay{Card: cfg.Name, Base: base, Sensors: sensors}, nil
}
