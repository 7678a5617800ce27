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
	"sync/atomic"
)

// cohort identifies which intrusive FIFO list a Page currently belongs to.
// A Page belongs to at most one cohort at a time (invariant I4).
type cohort int32

const (
	cohortNone cohort = iota
	cohortHot
	cohortCold
	cohortFree
)

// Page is the per-tier-page descriptor. Descriptors are never freed once
// allocated (invariant I5): a released page is recycled onto the free
// cohort and reinitialized on reuse, so any code holding a stale *Page
// pointer observes a retired page rather than freed memory.
type Page struct {
	mu sync.Mutex

	// va is the tier-page-aligned virtual address this descriptor tracks.
	va uint64

	// size is the number of bytes this descriptor actually covers. It is
	// TierPageSize except for the trailing descriptor of a range whose
	// length is not a multiple of TierPageSize, which covers only the
	// remaining bytes.
	size uint64

	tier    int32 // atomic Tier
	hot     int32 // atomic bool: classified hot (a DRAM page can be hot outside the hot cohort)
	free    int32 // atomic bool: resident in the free cohort
	present int32 // atomic bool: currently mapped to physical memory

	cohort cohort
	prev   *Page
	next   *Page

	// access is the hotness classifier's decaying access counter.
	access uint32
	// coolEpoch is the cooling epoch this page's counter was last
	// right-shifted at, so a page visited between two cool passes is not
	// decayed twice.
	coolEpoch uint64

	// migrating marks a page currently owned by the migration worker, so
	// the classifier and ingestor do not re-enqueue it.
	migrating int32

	// migrated marks a page that has been promoted to DRAM at least once.
	migrated int32 // atomic bool
}

// newPage builds a descriptor covering a full TierPageSize region. Use
// newPageSized for a descriptor covering fewer bytes (the allocator's
// trailing partial tier-page case).
func newPage(va uint64, tier Tier) *Page {
	return newPageSized(va, tier, TierPageSize)
}

func newPageSized(va uint64, tier Tier, size uint64) *Page {
	p := &Page{va: va}
	p.reinit(va, tier, size)
	return p
}

// reinit resets a recycled descriptor to represent a new virtual address.
// Only the allocator, which owns the free cohort, may call this.
func (p *Page) reinit(va uint64, tier Tier, size uint64) {
	p.va = va
	p.size = size
	atomic.StoreInt32(&p.tier, int32(tier))
	atomic.StoreInt32(&p.hot, 0)
	atomic.StoreInt32(&p.free, 0)
	atomic.StoreInt32(&p.present, 1)
	atomic.StoreInt32(&p.migrating, 0)
	atomic.StoreInt32(&p.migrated, 0)
	p.mu.Lock()
	p.cohort = cohortNone
	p.prev = nil
	p.next = nil
	p.access = 0
	p.coolEpoch = 0
	p.mu.Unlock()
}

func (p *Page) Addr() uint64 { return p.va }

// Size returns the number of bytes this descriptor covers.
func (p *Page) Size() uint64 { return p.size }

func (p *Page) Tier() Tier { return Tier(atomic.LoadInt32(&p.tier)) }

func (p *Page) setTier(t Tier) { atomic.StoreInt32(&p.tier, int32(t)) }

func (p *Page) IsHot() bool { return atomic.LoadInt32(&p.hot) != 0 }

func (p *Page) setHot(hot bool) {
	v := int32(0)
	if hot {
		v = 1
	}
	atomic.StoreInt32(&p.hot, v)
}

func (p *Page) IsFree() bool { return atomic.LoadInt32(&p.free) != 0 }

func (p *Page) setFree(free bool) {
	v := int32(0)
	if free {
		v = 1
	}
	atomic.StoreInt32(&p.free, v)
}

func (p *Page) IsMigrating() bool { return atomic.LoadInt32(&p.migrating) != 0 }

// TryMarkMigrating claims the page for the migration worker, returning
// false if it is already claimed.
func (p *Page) TryMarkMigrating() bool {
	return atomic.CompareAndSwapInt32(&p.migrating, 0, 1)
}

func (p *Page) ClearMigrating() {
	atomic.StoreInt32(&p.migrating, 0)
}

func (p *Page) IsMigrated() bool { return atomic.LoadInt32(&p.migrated) != 0 }

func (p *Page) setMigrated(migrated bool) {
	v := int32(0)
	if migrated {
		v = 1
	}
	atomic.StoreInt32(&p.migrated, v)
}

// arena is a growable, recycle-not-free pool of page descriptors, indexed
// by virtual address for O(1) reinitialization on reuse. Descriptors are
// allocated in blocks so the arena rarely needs to grow the containing
// slice header, which would move every live descriptor if it did not keep
// its descriptors behind stable pointers.
type arena struct {
	mu     sync.Mutex
	blocks [][]Page
	live   map[uint64]*Page
}

const arenaBlockSize = 4096

func newArena() *arena {
	return &arena{live: make(map[uint64]*Page)}
}

// allocate returns the live descriptor already registered for va, or a
// fresh one. Recycling free-cohort descriptors is done by the allocator.
func (a *arena) allocate(va uint64, tier Tier, size uint64) *Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.live[va]; ok {
		return p
	}
	last := len(a.blocks) - 1
	if last < 0 || len(a.blocks[last]) == cap(a.blocks[last]) {
		a.blocks = append(a.blocks, make([]Page, 0, arenaBlockSize))
		last++
	}
	a.blocks[last] = append(a.blocks[last], Page{})
	p := &a.blocks[last][len(a.blocks[last])-1]
	p.reinit(va, tier, size)
	a.live[va] = p
	return p
}

// recycle detaches the descriptor for va from the live index. The backing
// Page struct itself is never freed or reused for a different slot in the
// block slice: it only becomes eligible for reinit() under a new va once
// the allocator's free cohort hands it back out.
func (a *arena) recycle(va uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.live, va)
}

func (a *arena) find(va uint64) (*Page, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.live[va]
	return p, ok
}
