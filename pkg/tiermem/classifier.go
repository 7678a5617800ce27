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

import "sync/atomic"

// classifier turns the raw sample stream into hot/cold cohort membership.
// Access counting and cooling never block the ingestor: a page whose
// mutex is contended is simply skipped for this sample, matching the
// ingestor's "never stall on a single page" requirement.
type classifier struct {
	hot  *pageList
	cold *pageList

	hotThreshold   uint32
	coolThreshold  uint64
	lastCoolCycle  uint64
	coolEpoch      uint64
	lastSeenCycles uint64

	// throttled reports backpressure from the ingestor. When it returns
	// true, both direct (touch) and predicted promotion decisions are
	// suspended, per the spec's backpressure contract.
	throttled func() bool
}

func newClassifier(hot, cold *pageList) *classifier {
	return &classifier{
		hot:           hot,
		cold:          cold,
		hotThreshold:  HotThreshold,
		coolThreshold: CycCoolThreshold,
	}
}

// observeCycles advances the global cooling epoch once enough CPU cycles
// have elapsed since the last advance. Called from the ingestor on every
// sample; cheap when no cooling is due.
func (c *classifier) observeCycles(cyc uint64) {
	last := atomic.LoadUint64(&c.lastSeenCycles)
	if cyc <= last {
		return
	}
	atomic.StoreUint64(&c.lastSeenCycles, cyc)
	if cyc-c.lastCoolCycle < c.coolThreshold {
		return
	}
	c.lastCoolCycle = cyc
	atomic.AddUint64(&c.coolEpoch, 1)
}

// touch registers a sample landing on p. It try-locks p so a contended
// page is skipped rather than stalling the caller.
func (c *classifier) touch(p *Page) {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	c.coolLocked(p)
	p.access++
	if p.access < c.hotThreshold {
		// make_cold: a DRAM page below the threshold is no longer hot and
		// becomes a demotion candidate on the cold cohort.
		if p.Tier() == TierDRAM && !p.IsFree() {
			p.setHot(false)
			if p.cohort != c.cold.id {
				moveBetween(c.hot, c.cold, p)
			}
		}
		return
	}
	if !p.IsHot() {
		if c.throttled != nil && c.throttled() {
			return
		}
		c.promoteLocked(p)
	}
}

// coolLocked right-shifts p's access counter once for every cooling epoch
// that has passed since it was last visited. Caller holds p.mu.
func (c *classifier) coolLocked(p *Page) {
	epoch := atomic.LoadUint64(&c.coolEpoch)
	if epoch <= p.coolEpoch {
		return
	}
	shifts := epoch - p.coolEpoch
	if shifts > 31 {
		shifts = 31
	}
	p.access >>= shifts
	p.coolEpoch = epoch
}

// promoteLocked moves p from the cold cohort to the hot cohort. Only a
// page currently IN_REM makes this move (make_hot's tier guard): a page
// already IN_DRAM is marked hot in place so the migrator leaves it alone,
// since the hot cohort holds only IN_REM pages (I3). Caller holds p.mu.
func (c *classifier) promoteLocked(p *Page) {
	p.setHot(true)
	if p.Tier() != TierREM {
		return
	}
	c.hot.mu.Lock()
	c.cold.mu.Lock()
	if p.cohort == c.cold.id {
		c.cold.removeLocked(p)
	}
	c.cold.mu.Unlock()
	p.prev = c.hot.last
	p.next = nil
	if c.hot.last != nil {
		c.hot.last.next = p
	} else {
		c.hot.first = p
	}
	c.hot.last = p
	p.cohort = c.hot.id
	c.hot.entries++
	c.hot.mu.Unlock()
}

// demote clears p's hot flag, resets its access counter and moves it out
// of the hot cohort onto cold.
func (c *classifier) demote(p *Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setHot(false)
	p.access = 0
	moveBetween(c.hot, c.cold, p)
}
