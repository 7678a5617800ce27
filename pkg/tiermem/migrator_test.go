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

func newTestMigrator(dramSize uint64, rebind func(*Page, Tier) error) (*Migrator, *Allocator, *pageList, *pageList) {
	hot := newPageList(cohortHot)
	cold := newPageList(cohortCold)
	c := newClassifier(hot, cold)
	al := newTestAllocator(dramSize)
	m := NewMigrator(hot, cold, c, al, nil, &MigratorConfig{IntervalMs: 1, Rebind: rebind})
	return m, al, hot, cold
}

func TestMigratePromotesWhenBudgetAvailable(t *testing.T) {
	var rebound []Tier
	m, al, _, _ := newTestMigrator(TierPageSize, func(p *Page, tier Tier) error {
		rebound = append(rebound, tier)
		return nil
	})

	p := newPage(0x1000, TierREM)
	err := m.migrate(p)
	require.NoError(t, err)
	require.Equal(t, TierDRAM, p.Tier())
	require.EqualValues(t, TierPageSize, al.dramUsed)
	require.Equal(t, []Tier{TierDRAM}, rebound)
}

func TestMigrateDemotesColdVictimWhenBudgetFull(t *testing.T) {
	m, al, _, cold := newTestMigrator(TierPageSize, func(p *Page, tier Tier) error {
		return nil
	})
	al.dramUsed = TierPageSize

	victim := newPage(0x2000, TierDRAM)
	cold.enqueue(victim)

	p := newPage(0x1000, TierREM)
	err := m.migrate(p)
	require.NoError(t, err)
	require.Equal(t, TierDRAM, p.Tier())
	require.Equal(t, TierREM, victim.Tier())
	require.EqualValues(t, TierPageSize, al.dramUsed)
}

func TestMigrateReturnsExhaustedAndReleasesFenceWhenNoVictims(t *testing.T) {
	m, al, _, _ := newTestMigrator(TierPageSize, func(p *Page, tier Tier) error {
		return nil
	})
	al.dramUsed = TierPageSize

	p := newPage(0x1000, TierREM)
	err := m.migrate(p)
	require.ErrorIs(t, err, ErrDRAMExhausted)

	// The fence must be released even on the abort path: a subsequent
	// Fence() call must not deadlock.
	release := al.Fence()
	release()
}

func TestMigrateRejectsAlreadyMigratingPage(t *testing.T) {
	m, _, _, _ := newTestMigrator(TierPageSize, func(p *Page, tier Tier) error {
		return nil
	})

	p := newPage(0x1000, TierREM)
	require.True(t, p.TryMarkMigrating())

	err := m.migrate(p)
	require.ErrorIs(t, err, ErrAlreadyMigrating)
}
