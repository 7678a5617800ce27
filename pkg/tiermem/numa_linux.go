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
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// movePagesSyscall wraps move_pages(2):
//
//	long move_pages(int pid, unsigned long count, void **pages,
//	                 const int *nodes, int *status, int flags);
//
// Passing a nil nodes slice queries current placement instead of moving.
func movePagesSyscall(pid int, count uint, pages []uintptr, nodes []int, flags int) (uint, []int, error) {
	if count == 0 {
		return 0, []int{}, nil
	}

	cNodes := make([]int32, len(nodes))
	for i := range nodes {
		if nodes[i] < 0 || nodes[i] > 32767 {
			return 0, []int{}, fmt.Errorf("numa node id out of range: %d", nodes[i])
		}
		cNodes[i] = int32(nodes[i])
	}
	cStatus := make([]int32, len(pages))

	var nodesPtr unsafe.Pointer
	if nodes != nil {
		nodesPtr = unsafe.Pointer(&cNodes[0])
	}

	ret, _, errno := unix.Syscall6(unix.SYS_MOVE_PAGES,
		uintptr(pid), uintptr(count),
		uintptr(unsafe.Pointer(&pages[0])), uintptr(nodesPtr),
		uintptr(unsafe.Pointer(&cStatus[0])), uintptr(flags))

	var err error
	if errno != 0 {
		err = unix.Errno(errno)
	}

	status := make([]int, count)
	for i := uint(0); i < count; i++ {
		status[i] = int(cStatus[i])
	}
	return uint(ret), status, err
}

// mbindRebind wraps mbind(2) in MPOL_BIND mode to rebind the tier-page at
// addr onto node, mirroring the migration worker's "rebind via mbind"
// primitive. Unlike move_pages, mbind operates on the calling process's
// own address space only, which is sufficient here since the manager
// tiers its own pages (see the Allocation Gateway, not a foreign pid).
func mbindRebind(addr uintptr, length uintptr, node int) error {
	const (
		mpolBind        = 2
		mpolMFMove      = 1 << 1
		mpolMFMoveAll   = 1 << 2
		maxNumaNodeBits = 64
	)
	if node < 0 || node >= maxNumaNodeBits {
		return fmt.Errorf("numa node id out of range: %d", node)
	}
	nodemask := uint64(1) << uint(node)

	_, _, errno := unix.Syscall6(unix.SYS_MBIND,
		addr, length, uintptr(mpolBind),
		uintptr(unsafe.Pointer(&nodemask)), uintptr(maxNumaNodeBits+1),
		uintptr(mpolMFMove|mpolMFMoveAll))
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// currentNode returns the NUMA node addr is currently resident on, using
// move_pages with a nil nodes argument (a pure status query).
func currentNode(pid int, addr uintptr) (int, error) {
	_, status, err := movePagesSyscall(pid, 1, []uintptr{addr}, nil, 0)
	if err != nil {
		return -1, err
	}
	if len(status) == 0 {
		return -1, fmt.Errorf("move_pages returned no status for %#x", addr)
	}
	if status[0] < 0 {
		return -1, unix.Errno(-status[0])
	}
	return status[0], nil
}

// nodeMemTotalBytes reads a NUMA node's total installed memory from
// sysfs, used to size the DRAM budget from a DRAM_BUFFER leave-free
// setting rather than an absolute DRAM_SIZE.
func nodeMemTotalBytes(node int) (uint64, error) {
	path := fmt.Sprintf("/sys/devices/system/node/node%d/meminfo", node)
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		// Node N MemTotal:       16777216 kB
		if len(fields) < 4 || fields[2] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing MemTotal in %s: %w", path, err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemTotal not found in %s", path)
}
