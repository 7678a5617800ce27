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

import "sync"

// pageTable maps a sampled address to the tracked page descriptor that
// owns it. Samples arrive at base-page (4KiB) granularity but pages are
// tracked at tier-page (2MiB) granularity, so lookups first try the
// tier-aligned key and only fall back to the base-page-aligned key for
// pages that were added without tier alignment (e.g. by a caller
// tracking a sub-tier region directly).
type pageTable struct {
	mu    sync.RWMutex
	pages map[uint64]*Page
}

func newPageTable() *pageTable {
	return &pageTable{pages: make(map[uint64]*Page)}
}

func tierAlign(addr uint64) uint64 {
	return addr &^ (TierPageSize - 1)
}

func basePageAlign(addr uint64) uint64 {
	return addr &^ (BasePageSize - 1)
}

// find resolves addr to its tracked page, trying the tier-aligned key
// first and the base-page-aligned key second.
func (t *pageTable) find(addr uint64) (*Page, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.pages[tierAlign(addr)]; ok {
		return p, true
	}
	p, ok := t.pages[basePageAlign(addr)]
	return p, ok
}

// add registers p under its own address. Adding a page whose address is
// already tracked is a no-op: it logs and returns the existing
// descriptor, since re-adding would otherwise silently orphan the
// existing cohort membership of the first descriptor.
func (t *pageTable) add(p *Page) *Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.pages[p.va]; ok {
		log.Debugf("pagetable: %#x already tracked, ignoring duplicate add", p.va)
		return existing
	}
	t.pages[p.va] = p
	return p
}

func (t *pageTable) remove(addr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pages, tierAlign(addr))
}

func (t *pageTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pages)
}
