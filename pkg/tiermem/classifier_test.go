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

func TestClassifierPromotesAfterThreshold(t *testing.T) {
	hot := newPageList(cohortHot)
	cold := newPageList(cohortCold)
	c := newClassifier(hot, cold)
	c.hotThreshold = 3

	p := newPage(0x1000, TierREM)
	cold.enqueue(p)

	c.touch(p)
	c.touch(p)
	require.False(t, p.IsHot())
	require.Equal(t, 1, cold.Len())

	c.touch(p)
	require.True(t, p.IsHot())
	require.Equal(t, 0, cold.Len())
	require.Equal(t, 1, hot.Len())
}

func TestClassifierCoolingRightShiftsAccessCounter(t *testing.T) {
	hot := newPageList(cohortHot)
	cold := newPageList(cohortCold)
	c := newClassifier(hot, cold)
	c.hotThreshold = 1000 // never auto-promote in this test
	c.coolThreshold = 10

	p := newPage(0x1000, TierREM)
	cold.enqueue(p)

	c.touch(p)
	c.touch(p)
	c.touch(p)
	c.touch(p)
	require.EqualValues(t, 4, p.access)

	c.observeCycles(20) // advances cooling epoch once
	c.touch(p)
	require.EqualValues(t, 3, p.access) // 4>>1 + 1
}

func TestClassifierDemoteResetsCounterAndCohort(t *testing.T) {
	hot := newPageList(cohortHot)
	cold := newPageList(cohortCold)
	c := newClassifier(hot, cold)

	p := newPage(0x1000, TierDRAM)
	hot.enqueue(p)
	p.setHot(true)
	p.access = 7

	c.demote(p)
	require.False(t, p.IsHot())
	require.EqualValues(t, 0, p.access)
	require.Equal(t, 0, hot.Len())
	require.Equal(t, 1, cold.Len())
}
