// Copyright 2021 Intel Corporation. All Rights Reserved.
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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KimMachineGun/automemlimit/memlimit"

	tlog "github.com/numahem/tiermem/pkg/log"
	"github.com/numahem/tiermem/pkg/metrics"
	"github.com/numahem/tiermem/pkg/tiermem"
)

var (
	optConfig    string
	optDebug     bool
	optListen    string
	optDumpJSON  bool
)

func loadConfig(path string) (*tiermem.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	var config tiermem.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	return &config, nil
}

func run(cmd *cobra.Command, args []string) error {
	_, _ = memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9))

	base := tlog.NewStdLogger(optDebug)
	limited := tlog.RateLimit(base, tlog.Interval(time.Second))
	tiermem.SetLoggerFrom(limitedAdapter{limited})
	tiermem.SetLogDebug(optDebug)

	if optConfig == "" {
		return fmt.Errorf("missing --config")
	}
	config, err := loadConfig(optConfig)
	if err != nil {
		return err
	}

	manager, err := tiermem.NewManager(config)
	if err != nil {
		return fmt.Errorf("building manager: %w", err)
	}

	if optDumpJSON {
		fmt.Println(manager.GetConfigJson())
		return nil
	}

	metricsReg := metrics.NewRegistry()
	if err := metricsReg.RegisterCollector("tiermem", func() (prometheus.Collector, error) {
		return manager.Telemetry(), nil
	}); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	gatherer, err := metricsReg.Gatherer()
	if err != nil {
		return fmt.Errorf("building metric gatherer: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: optListen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			base.Error("metrics server: %s", err)
		}
	}()

	if err := manager.Start(); err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	manager.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	return nil
}

// limitedAdapter bridges pkg/log's leveled Logger (Debug/Info/Warn/Error)
// onto tiermem's printf-suffixed Logger interface (Debugf/Infof/...).
type limitedAdapter struct {
	l tlog.Logger
}

func (a limitedAdapter) Debugf(format string, v ...interface{}) { a.l.Debug(format, v...) }
func (a limitedAdapter) Infof(format string, v ...interface{})  { a.l.Info(format, v...) }
func (a limitedAdapter) Warnf(format string, v ...interface{})  { a.l.Warn(format, v...) }
func (a limitedAdapter) Errorf(format string, v ...interface{}) { a.l.Error(format, v...) }
func (a limitedAdapter) Panicf(format string, v ...interface{}) { panic(fmt.Sprintf(format, v...)) }
func (a limitedAdapter) Fatalf(format string, v ...interface{}) { a.l.Fatal(format, v...) }

func main() {
	root := &cobra.Command{
		Use:   "tiermemd",
		Short: "Two-tier (DRAM/REM) page placement and migration daemon",
		RunE:  run,
	}
	root.Flags().StringVar(&optConfig, "config", "", "path to the YAML configuration file")
	root.Flags().BoolVar(&optDebug, "debug", false, "enable debug logging")
	root.Flags().StringVar(&optListen, "listen", ":9412", "address to serve /metrics on")
	root.Flags().BoolVar(&optDumpJSON, "config-dump-json", false, "dump effective configuration as JSON and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
