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

package tiermem

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// migrationStats accumulates migration-worker outcomes for the periodic
// text summary and the Prometheus collector.
type migrationStats struct {
	promoted  uint64
	demoted   uint64
	failed    uint64
	exhausted uint64
}

// Telemetry is the periodic (once a second) stats emitter and the
// prometheus.Collector the daemon registers with its metrics endpoint.
// Grounded on pkg/memtier/stats.go for the text summary shape and
// pkg/cgroupstats/collector.go for the Collector implementation pattern.
type Telemetry struct {
	hot  *pageList
	cold *pageList
	free *pageList
	alloc *Allocator
	ingestor *Ingestor
	mig  *migrationStats

	descHotPages  *prometheus.Desc
	descColdPages *prometheus.Desc
	descFreePages *prometheus.Desc
	descDRAMUsed  *prometheus.Desc
	descDRAMSize  *prometheus.Desc
	descSamples   *prometheus.Desc
	descDrops     *prometheus.Desc
	descThrottles *prometheus.Desc
	descMigrated  *prometheus.Desc
	descFailed    *prometheus.Desc

	quit chan struct{}
}

func NewTelemetry(hot, cold, free *pageList, alloc *Allocator, ing *Ingestor) *Telemetry {
	return &Telemetry{
		hot:      hot,
		cold:     cold,
		free:     free,
		alloc:    alloc,
		ingestor: ing,
		mig:      &migrationStats{},

		descHotPages:  prometheus.NewDesc("tiermem_hot_pages", "Tier-pages currently in the hot cohort.", nil, nil),
		descColdPages: prometheus.NewDesc("tiermem_cold_pages", "Tier-pages currently in the cold cohort.", nil, nil),
		descFreePages: prometheus.NewDesc("tiermem_free_pages", "Recycled, unused tier-page descriptors.", nil, nil),
		descDRAMUsed:  prometheus.NewDesc("tiermem_dram_used_bytes", "Bytes of the DRAM tier currently occupied.", nil, nil),
		descDRAMSize:  prometheus.NewDesc("tiermem_dram_size_bytes", "Configured DRAM tier budget.", nil, nil),
		descSamples:   prometheus.NewDesc("tiermem_samples_total", "Hardware samples observed by the ingestor.", nil, nil),
		descDrops:     prometheus.NewDesc("tiermem_sample_drops_total", "Samples lost to ring-buffer overrun.", nil, nil),
		descThrottles: prometheus.NewDesc("tiermem_throttles_total", "PEBS throttle events observed.", nil, nil),
		descMigrated:  prometheus.NewDesc("tiermem_migrations_total", "Migrations completed, by outcome.", []string{"outcome"}, nil),
		descFailed:    prometheus.NewDesc("tiermem_migration_errors_total", "Migrations that returned an error.", nil, nil),
	}
}

// RecordMigration updates the migration outcome counters; called by the
// migrator after each migrate() attempt.
func (t *Telemetry) RecordMigration(err error) {
	switch {
	case err == nil:
		atomic.AddUint64(&t.mig.promoted, 1)
	case err == ErrDRAMExhausted:
		atomic.AddUint64(&t.mig.exhausted, 1)
	default:
		atomic.AddUint64(&t.mig.failed, 1)
	}
}

// RecordDemotion counts a cold page pushed out of DRAM to make room for
// a promotion.
func (t *Telemetry) RecordDemotion() {
	atomic.AddUint64(&t.mig.demoted, 1)
}

func (t *Telemetry) Describe(ch chan<- *prometheus.Desc) {
	ch <- t.descHotPages
	ch <- t.descColdPages
	ch <- t.descFreePages
	ch <- t.descDRAMUsed
	ch <- t.descDRAMSize
	ch <- t.descSamples
	ch <- t.descDrops
	ch <- t.descThrottles
	ch <- t.descMigrated
	ch <- t.descFailed
}

func (t *Telemetry) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(t.descHotPages, prometheus.GaugeValue, float64(t.hot.Len()))
	ch <- prometheus.MustNewConstMetric(t.descColdPages, prometheus.GaugeValue, float64(t.cold.Len()))
	ch <- prometheus.MustNewConstMetric(t.descFreePages, prometheus.GaugeValue, float64(t.free.Len()))
	ch <- prometheus.MustNewConstMetric(t.descDRAMUsed, prometheus.GaugeValue, float64(t.alloc.DRAMUsed()))
	ch <- prometheus.MustNewConstMetric(t.descDRAMSize, prometheus.GaugeValue, float64(t.alloc.DRAMSize()))

	stats := t.ingestor.Stats()
	ch <- prometheus.MustNewConstMetric(t.descSamples, prometheus.CounterValue, float64(stats.samples))
	ch <- prometheus.MustNewConstMetric(t.descDrops, prometheus.CounterValue, float64(stats.drops))
	ch <- prometheus.MustNewConstMetric(t.descThrottles, prometheus.CounterValue, float64(stats.throttles))

	ch <- prometheus.MustNewConstMetric(t.descMigrated, prometheus.CounterValue, float64(atomic.LoadUint64(&t.mig.promoted)), "promoted")
	ch <- prometheus.MustNewConstMetric(t.descMigrated, prometheus.CounterValue, float64(atomic.LoadUint64(&t.mig.demoted)), "demoted")
	ch <- prometheus.MustNewConstMetric(t.descMigrated, prometheus.CounterValue, float64(atomic.LoadUint64(&t.mig.exhausted)), "exhausted")
	ch <- prometheus.MustNewConstMetric(t.descFailed, prometheus.CounterValue, float64(atomic.LoadUint64(&t.mig.failed)))
}

// Summarize renders the same counters as a human-readable report, in the
// shape of pkg/memtier/stats.go's Summarize, for -config-dump-style
// debugging without a Prometheus scraper attached.
func (t *Telemetry) Summarize() string {
	stats := t.ingestor.Stats()
	lines := []string{
		fmt.Sprintf("cohorts: hot=%d cold=%d free=%d", t.hot.Len(), t.cold.Len(), t.free.Len()),
		fmt.Sprintf("dram: %s / %s", Bytes(t.alloc.DRAMUsed()).Humanized(), Bytes(t.alloc.DRAMSize()).Humanized()),
		fmt.Sprintf("samples: %d (drops %d, throttles %d, unthrottles %d)",
			stats.samples, stats.drops, stats.throttles, stats.unthrottles),
		fmt.Sprintf("migrations: promoted=%d demoted=%d exhausted=%d failed=%d",
			atomic.LoadUint64(&t.mig.promoted), atomic.LoadUint64(&t.mig.demoted),
			atomic.LoadUint64(&t.mig.exhausted), atomic.LoadUint64(&t.mig.failed)),
	}
	return strings.Join(lines, "\n")
}

// Run emits a log line with the current summary once a second until
// stopped, mirroring the teacher's periodic-routine idiom
// (pkg/memtier/routine_statactions.go).
func (t *Telemetry) Run() {
	t.quit = make(chan struct{})
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			log.Debugf("telemetry:\n%s", t.Summarize())
		case <-t.quit:
			return
		}
	}
}

func (t *Telemetry) Stop() {
	if t.quit != nil {
		close(t.quit)
	}
}
