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
	"sync"
	"time"
)

type migratorCmd int

const (
	migContinue migratorCmd = iota
	migQuit
	migPause
)

// MigratorConfig mirrors the teacher's bandwidth-throttled mover
// configuration, reused here to pace how aggressively the hot cohort is
// drained.
type MigratorConfig struct {
	IntervalMs int
	Rebind     func(p *Page, tier Tier) error
}

// Migrator is the dedicated migration thread: it dequeues hot pages,
// fences the allocator, makes room on DRAM by demoting cold pages if
// necessary, rebinds the page onto DRAM, and releases the fence. It is
// built as a channel-driven command loop in the shape of the teacher's
// Mover.taskHandler, but the work it does per task is the spec's
// fence/demote/promote sequence rather than a bandwidth-limited page
// copy.
type Migrator struct {
	mu     sync.Mutex
	config *MigratorConfig

	hot        *pageList
	cold       *pageList
	classifier *classifier
	alloc      *Allocator
	tel        *Telemetry

	// prefetch carries pages the neighbor predictor expects to be
	// accessed soon, so the migrator can promote them ahead of an actual
	// hot-threshold crossing. Bounded and non-blocking: a full queue
	// drops the request rather than stalling the ingestor.
	prefetch chan *Page

	cmd chan migratorCmd
}

func NewMigrator(hot, cold *pageList, c *classifier, alloc *Allocator, tel *Telemetry, config *MigratorConfig) *Migrator {
	return &Migrator{
		hot:        hot,
		cold:       cold,
		classifier: c,
		alloc:      alloc,
		tel:        tel,
		config:     config,
		prefetch:   make(chan *Page, BFSQueueMax),
	}
}

// RequestPrefetch enqueues a page the predictor expects to be accessed
// soon for promotion. Called from the ingestor's sample path; never
// blocks.
func (m *Migrator) RequestPrefetch(p *Page) {
	select {
	case m.prefetch <- p:
	default:
		log.Debugf("migrator: prefetch queue full, dropping %#x", p.Addr())
	}
}

func (m *Migrator) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		m.cmd = make(chan migratorCmd, 8)
		go m.run()
	}
}

func (m *Migrator) Stop() {
	m.mu.Lock()
	cmd := m.cmd
	m.mu.Unlock()
	if cmd != nil {
		cmd <- migQuit
	}
}

// Kick wakes the worker after a page is enqueued onto the hot cohort, so
// it does not wait out its idle poll interval.
func (m *Migrator) Kick() {
	m.mu.Lock()
	cmd := m.cmd
	m.mu.Unlock()
	if cmd != nil {
		select {
		case cmd <- migContinue:
		default:
		}
	}
}

func (m *Migrator) run() {
	log.Debugf("migrator: online")
	defer func() {
		m.mu.Lock()
		close(m.cmd)
		m.cmd = nil
		m.mu.Unlock()
		log.Debugf("migrator: offline")
	}()

	for {
		select {
		case cmd := <-m.cmd:
			if cmd == migQuit {
				return
			}
		case <-time.After(time.Duration(m.config.IntervalMs) * time.Millisecond):
		}
	busy:
		for {
			p := m.hot.dequeue()
			if p == nil {
				select {
				case p = <-m.prefetch:
				default:
					break busy
				}
			}
			err := m.migrate(p)
			if m.tel != nil {
				m.tel.RecordMigration(err)
			}
			if err != nil {
				log.Debugf("migrator: %#x: %s", p.Addr(), err)
			}
			select {
			case next := <-m.cmd:
				if next == migQuit {
					return
				}
			default:
				time.Sleep(time.Duration(m.config.IntervalMs) * time.Millisecond)
			}
		}
	}
}

// migrate moves p from REM to DRAM, demoting cold pages first if the
// DRAM budget has no free room. It always releases the allocator fence,
// including on the cold-exhaustion abort path, so dram_used is never
// left inconsistent with reality (I1).
func (m *Migrator) migrate(p *Page) error {
	if !p.TryMarkMigrating() {
		return ErrAlreadyMigrating
	}
	defer p.ClearMigrating()

	// A page already on DRAM needs no promotion; this is the common
	// case once the hot/prefetch sources start overlapping with pages
	// the migrator already promoted, and must be a no-op rather than
	// spending a demotion and double-counting dram_used (I1).
	if p.Tier() == TierDRAM {
		return nil
	}

	release := m.alloc.Fence()
	defer release()

	needed := p.Size()
	for m.alloc.DRAMUsed()+needed > m.alloc.dramSize {
		victim := m.cold.dequeue()
		if victim == nil {
			return ErrDRAMExhausted
		}
		if err := m.demoteToREM(victim); err != nil {
			return wrapf(err, "demoting %#x", victim.Addr())
		}
	}

	if m.config.Rebind != nil {
		if err := m.config.Rebind(p, TierDRAM); err != nil {
			return wrapf(err, "rebinding %#x to dram", p.Addr())
		}
	}
	p.setTier(TierDRAM)
	p.setMigrated(true)
	m.alloc.addDRAMUsed(needed)
	m.classifier.cold.remove(p) // defensive: p may already be off every list
	return nil
}

// demoteToREM rebinds a cold page out of DRAM, freeing its budget share.
// A successfully demoted page leaves the cold cohort for good (it is now
// IN_REM, and cold holds only IN_DRAM pages per I3); it re-enters a
// cohort only once the classifier or predictor act on a later sample. A
// failed rebind leaves the page IN_DRAM, so it is put back on cold.
func (m *Migrator) demoteToREM(p *Page) error {
	if p.Tier() != TierDRAM {
		return nil
	}
	if m.config.Rebind != nil {
		if err := m.config.Rebind(p, TierREM); err != nil {
			m.cold.enqueue(p)
			return err
		}
	}
	size := p.Size()
	p.setTier(TierREM)
	m.alloc.subDRAMUsed(size)
	if m.tel != nil {
		m.tel.RecordDemotion()
	}
	return nil
}
