//go:build linux
// +build linux

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
	"unsafe"

	"golang.org/x/sys/unix"
)

// Raw perf event configs for the two sample kinds the ingestor cares
// about: a DRAM-tier load and a remote(REM)-tier load, identified by the
// vendor-specific raw event codes used by the tiering prototype this is
// grounded on (original_source/src/pebs.c).
const (
	perfConfigDRAMRead = 0x1d3
	perfConfigREMRead  = 0x4d3

	perfPages = 8 // ring buffer size in pages (power of two, +1 for the header page)
)

type perfEventAttr struct {
	Type               uint32
	Size               uint32
	Config             uint64
	SamplePeriod       uint64
	SampleType         uint64
	ReadFormat         uint64
	Bits               uint64
	WakeupEvents       uint32
	BPType             uint32
	Config1            uint64
	Config2            uint64
	BranchSampleType   uint64
	SampleRegsUser     uint64
	SampleStackUser    uint32
	ClockID            int32
	SampleRegsIntr     uint64
	AuxWatermark       uint32
	SampleMaxStack     uint16
	Reserved2          uint16
}

const (
	perfTypeRaw = 4

	perfSampleIP   = 1 << 0
	perfSampleTime = 1 << 2
	perfSampleAddr = 1 << 3

	perfBitDisabled   = 1 << 0
	perfBitExcludeKrn = 1 << 5
	perfBitPreciseIP1 = 1 << 15 // precise_ip == 1, bit offset within Bits
)

// perfEventOpen opens a raw PEBS-style sampling event on cpu, counting
// loads that resolve to config (DRAM or REM), sampled every samplePeriod
// occurrences with IP, TIME and ADDR recorded per sample.
func perfEventOpen(cpu int, config uint64, samplePeriod uint64) (int, error) {
	attr := perfEventAttr{
		Type:         perfTypeRaw,
		Config:       config,
		SamplePeriod: samplePeriod,
		SampleType:   perfSampleIP | perfSampleTime | perfSampleAddr,
		WakeupEvents: 1,
		Bits:         perfBitExcludeKrn | (1 << 15), // precise_ip=1
	}
	attr.Size = uint32(unsafe.Sizeof(attr))

	fd, _, errno := unix.Syscall6(unix.SYS_PERF_EVENT_OPEN,
		uintptr(unsafe.Pointer(&attr)),
		^uintptr(0), // pid == -1: any process
		uintptr(cpu),
		^uintptr(0), // group_fd == -1
		0, 0)
	if errno != 0 {
		return -1, fmt.Errorf("perf_event_open(cpu=%d, config=%#x): %w", cpu, config, unix.Errno(errno))
	}
	return int(fd), nil
}

func perfEnable(fd int) error {
	return ioctlNoArg(fd, unix.PERF_EVENT_IOC_ENABLE)
}

func perfDisable(fd int) error {
	return ioctlNoArg(fd, unix.PERF_EVENT_IOC_DISABLE)
}

func perfReset(fd int) error {
	return ioctlNoArg(fd, unix.PERF_EVENT_IOC_RESET)
}

func ioctlNoArg(fd int, req uint) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), 0)
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

// mmapRing maps the perf ring buffer for fd: one metadata page followed
// by perfPages data pages.
func mmapRing(fd int) ([]byte, error) {
	size := (perfPages + 1) * unix.Getpagesize()
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap perf ring: %w", err)
	}
	return data, nil
}
