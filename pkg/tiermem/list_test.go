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

func TestPageListFIFOOrder(t *testing.T) {
	l := newPageList(cohortCold)
	a := newPage(0x1000, TierDRAM)
	b := newPage(0x2000, TierDRAM)
	c := newPage(0x3000, TierDRAM)

	l.enqueue(a)
	l.enqueue(b)
	l.enqueue(c)
	require.Equal(t, 3, l.Len())

	require.Same(t, a, l.dequeue())
	require.Same(t, b, l.dequeue())
	require.Same(t, c, l.dequeue())
	require.Nil(t, l.dequeue())
	require.Equal(t, 0, l.Len())
}

func TestPageListRemoveMiddle(t *testing.T) {
	l := newPageList(cohortHot)
	a := newPage(0x1000, TierDRAM)
	b := newPage(0x2000, TierDRAM)
	c := newPage(0x3000, TierDRAM)
	l.enqueue(a)
	l.enqueue(b)
	l.enqueue(c)

	require.True(t, l.remove(b))
	require.Equal(t, 2, l.Len())
	require.Same(t, a, l.dequeue())
	require.Same(t, c, l.dequeue())
}

func TestPageListRemoveWrongList(t *testing.T) {
	hot := newPageList(cohortHot)
	cold := newPageList(cohortCold)
	a := newPage(0x1000, TierDRAM)
	cold.enqueue(a)

	require.False(t, hot.remove(a))
	require.Equal(t, 1, cold.Len())
}

func TestMoveBetweenLists(t *testing.T) {
	hot := newPageList(cohortHot)
	cold := newPageList(cohortCold)
	a := newPage(0x1000, TierDRAM)
	cold.enqueue(a)

	moveBetween(cold, hot, a)
	require.Equal(t, 0, cold.Len())
	require.Equal(t, 1, hot.Len())
	require.Same(t, a, hot.dequeue())
}
