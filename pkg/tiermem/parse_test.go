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

func TestParseBytesUnits(t *testing.T) {
	n, err := ParseBytes("4096")
	require.NoError(t, err)
	require.EqualValues(t, 4096, n)

	n, err = ParseBytes("2G")
	require.NoError(t, err)
	require.EqualValues(t, 2*1024*1024*1024, n)

	n, err = ParseBytes("512M")
	require.NoError(t, err)
	require.EqualValues(t, 512*1024*1024, n)
}

func TestParseBytesRejectsEmpty(t *testing.T) {
	_, err := ParseBytes("")
	require.Error(t, err)
}

func TestMustParseBytesPanicsOnError(t *testing.T) {
	require.Panics(t, func() {
		MustParseBytes("not-a-size-!")
	})
}
