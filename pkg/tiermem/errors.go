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

import "github.com/pkg/errors"

var (
	errNegativeWeight      = errors.New("distance weight must be nonnegative")
	errWeightsDontSumToOne = errors.New("distance weights must sum to 1")

	// ErrDRAMExhausted is returned by the migration worker when a
	// promotion cannot be satisfied even after demoting every eligible
	// cold page (invariant I1 would otherwise be violated). The
	// allocation gateway never returns it: overflow is placed on REM.
	ErrDRAMExhausted = errors.New("dram tier exhausted: no cold pages left to demote")

	// ErrAlreadyMigrating is returned when the migration worker is asked
	// to act on a page another in-flight migration already owns.
	ErrAlreadyMigrating = errors.New("page is already being migrated")

	// ErrNotTracked is returned when an operation names an address the
	// page table has no descriptor for.
	ErrNotTracked = errors.New("address is not a tracked page")

	// ErrShuttingDown is returned by Allocate once the lifecycle
	// controller has begun tearing the manager down. Release keeps
	// working during shutdown.
	ErrShuttingDown = errors.New("manager is shutting down")
)

// wrapf is a thin convenience around errors.Wrapf kept local so callers
// read naturally (tiermem.wrapf(...)) instead of importing pkg/errors
// themselves everywhere.
func wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
