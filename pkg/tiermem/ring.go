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

import "encoding/binary"

// perf_event_mmap_page field offsets this package reads. The full struct
// has many more fields (time_enabled/time_shift/aux_*) that the ingestor
// does not need.
const (
	ringDataOffOffset = 1040 // data_offset
	ringDataHeadOffset = 1024 // data_head
	ringDataTailOffset = 1032 // data_tail
)

const (
	perfRecordSample     = 9
	perfRecordThrottle   = 5
	perfRecordUnthrottle = 6
)

// sample is a decoded PEBS record: instruction pointer, faulting address
// and the TSC cycle count it was sampled at, plus which CPU/event kind it
// came from.
type sample struct {
	ip   uint64
	addr uint64
	cyc  uint64
	cpu  int
	tier Tier
}

// ringReader incrementally decodes records out of a single perf mmap
// ring buffer. It is lossy by construction: if the ingestor falls behind
// the kernel by more than the ring's size, data_tail is forced forward to
// one ring's length behind data_head and the dropped span is reported via
// the drop return in next, never blocking the kernel's producer side.
type ringReader struct {
	meta []byte // metadata page
	data []byte // ring data pages
	tail uint64
}

func newRingReader(mapped []byte) *ringReader {
	pageSize := len(mapped) / (perfPages + 1)
	return &ringReader{
		meta: mapped[:pageSize],
		data: mapped[pageSize:],
	}
}

func (r *ringReader) dataHead() uint64 {
	return binary.LittleEndian.Uint64(r.meta[ringDataHeadOffset:])
}

func (r *ringReader) storeTail(tail uint64) {
	r.tail = tail
	binary.LittleEndian.PutUint64(r.meta[ringDataTailOffset:], tail)
}

// next decodes the next record, if any. ok is false when the reader has
// caught up to the kernel's producer position. drop is the number of
// bytes silently skipped because the ring wrapped past them before this
// call.
func (r *ringReader) next() (s sample, recordType uint32, ok bool, drop uint64) {
	head := r.dataHead()
	if head == r.tail {
		return sample{}, 0, false, 0
	}

	size := uint64(len(r.data))
	if head-r.tail > size {
		drop = head - r.tail - size
		r.storeTail(head - size)
	}

	off := r.tail % size
	hdr := r.readHeader(off)
	if hdr.size < 8 || uint64(hdr.size) > size {
		// corrupt or short record: resync to head, dropping the rest of
		// this ring's backlog rather than looping forever on garbage.
		r.storeTail(head)
		return sample{}, 0, false, drop
	}

	body := r.readBytes(off+8, uint64(hdr.size)-8)
	r.storeTail(r.tail + uint64(hdr.size))

	if hdr.recType != perfRecordSample {
		return sample{}, hdr.recType, true, drop
	}
	// Record layout follows PERF_SAMPLE_* bit order: IP, TIME, ADDR.
	if len(body) < 24 {
		return sample{}, hdr.recType, true, drop
	}
	s.ip = binary.LittleEndian.Uint64(body[0:8])
	s.cyc = binary.LittleEndian.Uint64(body[8:16])
	s.addr = binary.LittleEndian.Uint64(body[16:24])
	return s, hdr.recType, true, drop
}

type recordHeader struct {
	recType uint32
	misc    uint16
	size    uint16
}

func (r *ringReader) readHeader(off uint64) recordHeader {
	b := r.readBytes(off, 8)
	return recordHeader{
		recType: binary.LittleEndian.Uint32(b[0:4]),
		misc:    binary.LittleEndian.Uint16(b[4:6]),
		size:    binary.LittleEndian.Uint16(b[6:8]),
	}
}

// readBytes copies n bytes starting at ring-relative offset off, handling
// wraparound at the end of the data region.
func (r *ringReader) readBytes(off, n uint64) []byte {
	size := uint64(len(r.data))
	off %= size
	out := make([]byte, n)
	if off+n <= size {
		copy(out, r.data[off:off+n])
		return out
	}
	first := size - off
	copy(out[:first], r.data[off:])
	copy(out[first:], r.data[:n-first])
	return out
}
