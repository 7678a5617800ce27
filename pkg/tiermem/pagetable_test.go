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

func TestPageTableTierAlignedLookup(t *testing.T) {
	pt := newPageTable()
	p := newPage(0x200000, TierDRAM) // 2MiB aligned
	pt.add(p)

	found, ok := pt.find(0x200000 + 0x123)
	require.True(t, ok)
	require.Same(t, p, found)
}

func TestPageTableBasePageAlignedFallback(t *testing.T) {
	pt := newPageTable()
	p := newPage(0x1000, TierDRAM) // base-page aligned, not tier-aligned
	pt.add(p)

	found, ok := pt.find(0x1000 + 0x123)
	require.True(t, ok)
	require.Same(t, p, found)
}

func TestPageTableDuplicateAddReturnsExisting(t *testing.T) {
	pt := newPageTable()
	first := newPage(0x400000, TierDRAM)
	second := newPage(0x400000, TierREM)

	got := pt.add(first)
	require.Same(t, first, got)
	got = pt.add(second)
	require.Same(t, first, got)
	require.Equal(t, 1, pt.len())
}

func TestPageTableRemove(t *testing.T) {
	pt := newPageTable()
	p := newPage(0x600000, TierDRAM)
	pt.add(p)
	pt.remove(0x600000)
	_, ok := pt.find(0x600000)
	require.False(t, ok)
}
