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

import "fmt"

// Bytes is a byte count that knows how to print itself humanized. It backs
// the DRAM/REM budget fields in telemetry and config dumps.
type Bytes uint64

const (
	bKB = 1024
	bMB = bKB * 1024
	bGB = bMB * 1024
	bTB = bGB * 1024
)

func (b Bytes) KB() float64 { return float64(b) / bKB }
func (b Bytes) MB() float64 { return float64(b) / bMB }
func (b Bytes) GB() float64 { return float64(b) / bGB }
func (b Bytes) TB() float64 { return float64(b) / bTB }

// Humanized renders b with the largest unit that keeps the value >= 1.
func (b Bytes) Humanized() string {
	switch {
	case b >= bTB:
		return fmt.Sprintf("%.2fTB", b.TB())
	case b >= bGB:
		return fmt.Sprintf("%.2fGB", b.GB())
	case b >= bMB:
		return fmt.Sprintf("%.2fMB", b.MB())
	case b >= bKB:
		return fmt.Sprintf("%.2fKB", b.KB())
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

func (b Bytes) String() string {
	return b.Humanized()
}
