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
	"encoding/binary"
	"os"
	"sync"
	"sync/atomic"
)

// pebsStats tracks per-event throttle bookkeeping used both to gate
// promotion and prediction (both are suspended while throttles outnumber
// unthrottles) and to report sampler health via telemetry.
type pebsStats struct {
	throttles   uint64
	unthrottles uint64
	samples     uint64
	drops       uint64
}

func (s *pebsStats) throttled() bool {
	return atomic.LoadUint64(&s.throttles) > atomic.LoadUint64(&s.unthrottles)
}

// Ingestor drains one perf ring per (cpu, event-kind) pair, classifying
// and predicting from the decoded samples, and appending raw/resolved
// records to trace files for offline analysis.
type Ingestor struct {
	ncpus      int
	table      *pageTable
	classifier *classifier
	predictor  *NeighborPredictor
	stats      *pebsStats

	rawTrace      *traceWriter
	resolvedTrace *traceWriter

	// prefetchSink receives pages the neighbor predictor expects to be
	// accessed soon, so they can be promoted ahead of an actual
	// hot-threshold crossing. Nil until SetPrefetchSink wires it.
	prefetchSink func(*Page)

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewIngestor builds an ingestor over ncpus CPUs, each contributing a
// DRAM-read and a REM-read ring.
func NewIngestor(ncpus int, table *pageTable, c *classifier, p *NeighborPredictor, rawTracePath, resolvedTracePath string) (*Ingestor, error) {
	ing := &Ingestor{
		ncpus:      ncpus,
		table:      table,
		classifier: c,
		predictor:  p,
		stats:      &pebsStats{},
		quit:       make(chan struct{}),
	}
	if rawTracePath != "" {
		tw, err := newTraceWriter(rawTracePath)
		if err != nil {
			return nil, err
		}
		ing.rawTrace = tw
	}
	if resolvedTracePath != "" {
		tw, err := newTraceWriter(resolvedTracePath)
		if err != nil {
			return nil, err
		}
		ing.resolvedTrace = tw
	}
	return ing, nil
}

// SetPrefetchSink installs the callback that receives predicted-neighbor
// pages for prefetch promotion. Called once from manager.go, wiring it to
// the migrator's RequestPrefetch.
func (ing *Ingestor) SetPrefetchSink(fn func(*Page)) {
	ing.prefetchSink = fn
}

// Start spawns one goroutine per (cpu, event) pair. Each goroutine opens
// a perf event bound to its cpu; the goroutines themselves are not pinned
// to any CPU.
func (ing *Ingestor) Start() {
	for cpu := 0; cpu < ing.ncpus; cpu++ {
		ing.wg.Add(2)
		go ing.runRing(cpu, TierDRAM, perfConfigDRAMRead)
		go ing.runRing(cpu, TierREM, perfConfigREMRead)
	}
}

func (ing *Ingestor) Stop() {
	close(ing.quit)
	ing.wg.Wait()
	if ing.rawTrace != nil {
		ing.rawTrace.Close()
	}
	if ing.resolvedTrace != nil {
		ing.resolvedTrace.Close()
	}
}

// runRing is the per-(cpu,event) poll loop, grounded on
// original_source/src/pebs.c's pebs_scan_thread: poll the ring, act on
// whatever record surfaces, and check for shutdown every 16 iterations
// so the check itself never dominates a tight empty-ring spin.
func (ing *Ingestor) runRing(cpu int, tier Tier, config uint64) {
	defer ing.wg.Done()

	fd, rr, err := ing.open(cpu, config)
	if err != nil {
		log.Errorf("ingestor: cpu %d tier %s: %s", cpu, tier, err)
		return
	}
	defer closeRing(fd)

	idle := 0
	var loops uint64
	for {
		loops++
		if loops&0xF == 0 {
			select {
			case <-ing.quit:
				return
			default:
			}
		}

		s, recType, ok, drop := rr.next()
		if drop > 0 {
			atomic.AddUint64(&ing.stats.drops, 1)
			log.Debugf("ingestor: cpu %d tier %s dropped %d bytes on ring wrap", cpu, tier, drop)
		}
		if !ok {
			idle++
			if idle >= IdlePollRecycleThreshold {
				ing.recycle(fd)
				idle = 0
			}
			continue
		}
		idle = 0

		switch recType {
		case perfRecordThrottle:
			atomic.AddUint64(&ing.stats.throttles, 1)
			continue
		case perfRecordUnthrottle:
			atomic.AddUint64(&ing.stats.unthrottles, 1)
			continue
		case perfRecordSample:
		default:
			continue
		}

		atomic.AddUint64(&ing.stats.samples, 1)
		s.cpu = cpu
		s.tier = tier
		ing.handle(s)
	}
}

// handle classifies and predicts from a decoded sample, and appends it
// to the trace files.
func (ing *Ingestor) handle(s sample) {
	ing.classifier.observeCycles(s.cyc)

	if ing.rawTrace != nil {
		ing.rawTrace.writeSample(s)
	}

	p, ok := ing.table.find(s.addr)
	if !ok {
		return
	}
	ing.classifier.touch(p)
	ing.predictor.Observe(p, s)

	if ing.prefetchSink != nil {
		for _, pred := range ing.predictor.PredictNeighbors(p) {
			ing.prefetchSink(pred)
		}
	}

	if ing.resolvedTrace != nil {
		ing.resolvedTrace.writeSample(s)
	}
}

const samplePeriod = 100 // events between samples, matches the prototype's SAMPLE_PERIOD

func (ing *Ingestor) open(cpu int, config uint64) (int, *ringReader, error) {
	fd, err := perfEventOpen(cpu, config, samplePeriod)
	if err != nil {
		return -1, nil, err
	}
	mapped, err := mmapRing(fd)
	if err != nil {
		closeRing(fd)
		return -1, nil, err
	}
	if err := perfReset(fd); err != nil {
		closeRing(fd)
		return -1, nil, err
	}
	if err := perfEnable(fd); err != nil {
		closeRing(fd)
		return -1, nil, err
	}
	return fd, newRingReader(mapped), nil
}

// recycle disables, resets and re-enables fd after a long idle spell, the
// health-cycling behavior original_source/src/pebs.c performs implicitly
// by restarting the whole sampler thread; here it is scoped to a single
// ring so siblings are not disturbed.
func (ing *Ingestor) recycle(fd int) {
	if err := perfDisable(fd); err != nil {
		log.Debugf("ingestor: recycle disable: %s", err)
	}
	if err := perfReset(fd); err != nil {
		log.Debugf("ingestor: recycle reset: %s", err)
	}
	if err := perfEnable(fd); err != nil {
		log.Debugf("ingestor: recycle enable: %s", err)
	}
}

func closeRing(fd int) {
	if fd >= 0 {
		_ = closeFD(fd)
	}
}

// Stats returns a point-in-time copy of the ingestor's throttle/sample
// counters for telemetry.
func (ing *Ingestor) Stats() pebsStats {
	return pebsStats{
		throttles:   atomic.LoadUint64(&ing.stats.throttles),
		unthrottles: atomic.LoadUint64(&ing.stats.unthrottles),
		samples:     atomic.LoadUint64(&ing.stats.samples),
		drops:       atomic.LoadUint64(&ing.stats.drops),
	}
}

// traceWriter appends fixed-size binary sample records to an
// append-only file, matching original_source/src/pebs.c's trace.bin
// format: a packed little-endian {cyc u64, va u64, ip u64, cpu u32,
// evt u8} tuple, 29 bytes per record.
type traceWriter struct {
	mu sync.Mutex
	f  *os.File
}

func newTraceWriter(path string) (*traceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &traceWriter{f: f}, nil
}

func (tw *traceWriter) writeSample(s sample) {
	var buf [29]byte
	binary.LittleEndian.PutUint64(buf[0:8], s.cyc)
	binary.LittleEndian.PutUint64(buf[8:16], s.addr)
	binary.LittleEndian.PutUint64(buf[16:24], s.ip)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(s.cpu))
	buf[28] = uint8(s.tier)

	tw.mu.Lock()
	defer tw.mu.Unlock()
	if _, err := tw.f.Write(buf[:]); err != nil {
		log.Errorf("tracewriter: %s", err)
	}
}

func (tw *traceWriter) Close() error {
	return tw.f.Close()
}
