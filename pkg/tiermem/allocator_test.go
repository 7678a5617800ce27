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
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(dramSize uint64) *Allocator {
	a := newArena()
	table := newPageTable()
	cold := newPageList(cohortCold)
	free := newPageList(cohortFree)
	return NewAllocator(a, table, cold, free, dramSize)
}

func TestAllocateWholeRangeFitsInDRAM(t *testing.T) {
	al := newTestAllocator(4 * TierPageSize)

	pages, err := al.Allocate(0, 2*TierPageSize)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, p := range pages {
		require.Equal(t, TierDRAM, p.Tier())
	}
	require.EqualValues(t, 2*TierPageSize, al.DRAMUsed())
}

func TestAllocateSplitsAcrossBudget(t *testing.T) {
	al := newTestAllocator(1 * TierPageSize)

	pages, err := al.Allocate(0, 3*TierPageSize)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	require.Equal(t, TierDRAM, pages[0].Tier())
	require.Equal(t, TierREM, pages[1].Tier())
	require.Equal(t, TierREM, pages[2].Tier())
	require.EqualValues(t, TierPageSize, al.DRAMUsed())
}

func TestAllocateWholeRangeToREMWhenBudgetExhausted(t *testing.T) {
	al := newTestAllocator(0)

	pages, err := al.Allocate(0, TierPageSize)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, TierREM, pages[0].Tier())
	require.EqualValues(t, 0, al.DRAMUsed())
}

func TestReleaseGivesBackDRAMBudgetAndRecyclesDescriptor(t *testing.T) {
	al := newTestAllocator(2 * TierPageSize)

	_, err := al.Allocate(0, TierPageSize)
	require.NoError(t, err)
	require.EqualValues(t, TierPageSize, al.DRAMUsed())

	require.NoError(t, al.Release(0, TierPageSize))
	require.EqualValues(t, 0, al.DRAMUsed())
	require.Equal(t, 1, al.free.Len())

	_, ok := al.table.find(0)
	require.False(t, ok)
}

func TestAllocateAfterReleaseRecyclesFreedDescriptor(t *testing.T) {
	al := newTestAllocator(1 * TierPageSize)

	first, err := al.Allocate(0, TierPageSize)
	require.NoError(t, err)
	require.NoError(t, al.Release(0, TierPageSize))

	second, err := al.Allocate(TierPageSize, TierPageSize)
	require.NoError(t, err)
	require.Same(t, first[0], second[0])
	require.Equal(t, TierDRAM, second[0].Tier())
}

func TestAllocateFailsWhenShuttingDown(t *testing.T) {
	al := newTestAllocator(TierPageSize)
	al.Shutdown()

	_, err := al.Allocate(0, TierPageSize)
	require.ErrorIs(t, err, ErrShuttingDown)
}
