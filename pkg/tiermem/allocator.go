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

// Allocator is the gateway an mmap/munmap interposer calls into to place
// new tier-pages. It splits an incoming allocation across DRAM and REM
// according to the current DRAM budget, materializing a descriptor for
// every tier-page it hands out and recycling descriptors for released
// ones onto the free cohort instead of discarding them (I5).
type Allocator struct {
	mu sync.Mutex

	arena *arena
	table *pageTable
	cold  *pageList
	free  *pageList

	dramSize uint64
	dramUsed uint64

	// fenced is set by the migration worker while it holds the dram_used
	// budget locked for an in-flight migration, so a concurrent
	// allocation cannot race it past the budget.
	fenced int32

	shuttingDown int32
}

func NewAllocator(a *arena, t *pageTable, cold, free *pageList, dramSize uint64) *Allocator {
	return &Allocator{
		arena:    a,
		table:    t,
		cold:     cold,
		free:     free,
		dramSize: dramSize,
	}
}

func (al *Allocator) DRAMUsed() uint64 { return atomic.LoadUint64(&al.dramUsed) }
func (al *Allocator) DRAMSize() uint64 { return al.dramSize }

// addDRAMUsed atomically increases dram_used by n bytes. Kept atomic
// rather than relying on al.mu alone so a concurrent DRAMUsed() reader
// (telemetry, which does not take al.mu) never observes a torn write.
func (al *Allocator) addDRAMUsed(n uint64) {
	atomic.AddUint64(&al.dramUsed, n)
}

// subDRAMUsed atomically decreases dram_used by n bytes, clamping at zero.
func (al *Allocator) subDRAMUsed(n uint64) {
	for {
		cur := atomic.LoadUint64(&al.dramUsed)
		next := uint64(0)
		if cur > n {
			next = cur - n
		}
		if atomic.CompareAndSwapUint64(&al.dramUsed, cur, next) {
			return
		}
	}
}

// Fence blocks concurrent allocation while the migration worker adjusts
// dram_used for an in-flight migration. Release always runs, even on an
// error path, so the fence can never be left held (the redesigned
// behavior for the cold-exhaustion abort path, see Migrator.migrate).
func (al *Allocator) Fence() func() {
	al.mu.Lock()
	atomic.StoreInt32(&al.fenced, 1)
	return func() {
		atomic.StoreInt32(&al.fenced, 0)
		al.mu.Unlock()
	}
}

// Shutdown marks the gateway closed; subsequent Allocate calls fail
// fast instead of racing the lifecycle controller's teardown.
func (al *Allocator) Shutdown() {
	atomic.StoreInt32(&al.shuttingDown, 1)
}

// Allocate materializes tier-page descriptors covering [addr, addr+length)
// and places each on DRAM or REM depending on available DRAM budget: the
// whole range goes to DRAM if it fits, the whole range goes to REM if
// DRAM has no room at all, otherwise the range is split page-aligned
// with the DRAM-budget-filling prefix on DRAM and the remainder on REM.
// The final descriptor covers fewer than TierPageSize bytes when the
// range's length is not a multiple of the tier-page size, so dram_used
// tracks real bytes rather than a rounded-up page count.
func (al *Allocator) Allocate(addr, length uint64) ([]*Page, error) {
	if atomic.LoadInt32(&al.shuttingDown) != 0 {
		return nil, ErrShuttingDown
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	start := tierAlign(addr)
	end := addr + length
	numPages := (end - start + TierPageSize - 1) / TierPageSize

	available := al.dramSize - al.DRAMUsed()
	dramPages := available / TierPageSize
	if dramPages > numPages {
		dramPages = numPages
	}

	pages := make([]*Page, 0, numPages)
	var dramBytes uint64
	for i := uint64(0); i < numPages; i++ {
		va := start + i*TierPageSize
		pageEnd := va + TierPageSize
		if pageEnd > end {
			pageEnd = end
		}
		size := pageEnd - va

		tier := TierREM
		if i < dramPages {
			tier = TierDRAM
			dramBytes += size
		}
		p := al.materialize(va, tier, size)
		pages = append(pages, p)
	}
	al.addDRAMUsed(dramBytes)
	return pages, nil
}

// materialize recycles a free-cohort descriptor if one is available,
// otherwise allocates a fresh one from the arena, and registers it in
// the page table.
func (al *Allocator) materialize(va uint64, tier Tier, size uint64) *Page {
	if recycled := al.free.dequeue(); recycled != nil {
		al.arena.recycle(recycled.va)
		recycled.reinit(va, tier, size)
		return al.table.add(recycled)
	}
	p := al.arena.allocate(va, tier, size)
	return al.table.add(p)
}

// Release returns the tier-pages covering [addr, addr+length) to the
// free cohort. A page still resident in the hot cohort is removed from
// it first; a page on DRAM has its budget share given back, byte for
// byte against its own (possibly short, trailing) size.
func (al *Allocator) Release(addr, length uint64) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	start := tierAlign(addr)
	end := addr + length

	for va := start; va < end; va += TierPageSize {
		p, ok := al.table.find(va)
		if !ok {
			continue
		}
		if p.Tier() == TierDRAM {
			al.subDRAMUsed(p.Size())
		}
		al.cold.remove(p)
		p.setHot(false)
		p.setFree(true)
		al.table.remove(va)
		al.free.enqueue(p)
	}
	return nil
}
