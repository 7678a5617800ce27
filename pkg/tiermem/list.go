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

// pageList is an intrusive, mutex-guarded FIFO of *Page. Pages carry their
// own prev/next pointers (see page.go), so enqueue/dequeue/remove never
// allocate.
type pageList struct {
	mu      sync.Mutex
	id      cohort
	first   *Page
	last    *Page
	entries int
}

func newPageList(id cohort) *pageList {
	return &pageList{id: id}
}

func (l *pageList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// enqueue appends p at the tail of the list and stamps its cohort. p must
// not already be a member of any list.
func (l *pageList) enqueue(p *Page) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.prev = l.last
	p.next = nil
	if l.last != nil {
		l.last.next = p
	} else {
		l.first = p
	}
	l.last = p
	p.cohort = l.id
	l.entries++
}

// dequeue removes and returns the head of the list, or nil if empty.
func (l *pageList) dequeue() *Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.first
	if p == nil {
		return nil
	}
	l.removeLocked(p)
	return p
}

// remove detaches p from the list if it is currently a member. It is a
// no-op if p belongs to a different list or no list at all.
func (l *pageList) remove(p *Page) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.cohort != l.id {
		return false
	}
	l.removeLocked(p)
	return true
}

func (l *pageList) removeLocked(p *Page) {
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		l.first = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else {
		l.last = p.prev
	}
	p.prev = nil
	p.next = nil
	p.cohort = cohortNone
	l.entries--
}

// moveBetween detaches p from src (if it is a member there) and enqueues
// it onto dst. The two steps take each list's lock in turn, so between
// them p is briefly in no cohort, which I4 (at most one cohort) allows.
// Caller must not hold either list's lock.
func moveBetween(src, dst *pageList, p *Page) {
	src.remove(p)
	dst.enqueue(p)
}
