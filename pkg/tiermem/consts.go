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

import "os"

// Tier identifies which memory node class a page currently lives on.
type Tier int

const (
	TierDRAM Tier = iota
	TierREM
)

func (t Tier) String() string {
	if t == TierDRAM {
		return "dram"
	}
	return "rem"
}

const (
	// BasePageSize is the assumed native MMU page size, used for the page
	// table's base-page-aligned lookup key. constPagesize/constUPagesize
	// below hold the page size queried from the OS at init.
	BasePageSize = 4096

	// TierPageSize is the granularity pages are tracked and migrated at.
	// 2MiB matches a transparent-hugepage-backed tiering unit.
	TierPageSize = 2 * 1024 * 1024

	// MaxNeighbors is the number of predicted neighbors tracked per sampled
	// page in the neighbor predictor's history.
	MaxNeighbors = 4

	// HistorySize is the length of the sliding sample-history ring the
	// predictor compares new samples against.
	HistorySize = 16

	// CycCoolThreshold is the cycle-counter delta after which the hotness
	// classifier advances its cooling epoch. A page's access counter is
	// right-shifted for the missed epochs the next time it is touched.
	CycCoolThreshold = 50_000_000

	// HotThreshold is the access-counter value at which a cold page is
	// promoted into the hot cohort.
	HotThreshold = 4

	// BFSQueueMax bounds the neighbor predictor's breadth-first lookahead
	// queue so a dense neighbor graph cannot make prediction unbounded.
	BFSQueueMax = 256

	// MaxPredDepth bounds how many hops the predictor will walk from a
	// sampled page before giving up on a prediction chain.
	MaxPredDepth = 4

	// IdlePollRecycleThreshold is the number of consecutive empty ring
	// polls after which a sampler goroutine recycles its perf_event fd.
	IdlePollRecycleThreshold = 1 << 16

	// move_pages / mbind syscall flags.
	// MPOL_MF_MOVE moves only pages exclusively mapped by this process.
	MPOL_MF_MOVE = 1 << 1

	// DRAMNode and REMNode are the fixed two-node NUMA layout this package
	// assumes: node 0 is the DRAM tier, node 1 is the REM tier.
	DRAMNode = 0
	REMNode  = 1
)

// Default neighbor-distance weights, taken from the tiering prototype this
// package's algorithm is grounded on: virtual address, sample timestamp and
// instruction pointer are weighted equally and must sum to 1.
const (
	DefaultWeightVA  = 1.0 / 3.0
	DefaultWeightCyc = 1.0 / 3.0
	DefaultWeightIP  = 1.0 / 3.0
)

// Asymmetric EMA decay constants for the predictor's bot_dist/avg_dist
// thresholds.
const (
	decBotDown = 0.01
	decBotUp   = 0.0001
	decAvgDist = 0.0001
)

var constPagesize int64 = int64(os.Getpagesize())
var constUPagesize uint64 = uint64(constPagesize)
