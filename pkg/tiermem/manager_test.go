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

func TestDRAMSizeBytesRejectsNeitherSizeNorBuffer(t *testing.T) {
	c := &Config{}
	_, err := c.dramSizeBytes()
	require.Error(t, err)
}

func TestDRAMSizeBytesRejectsBothSizeAndBuffer(t *testing.T) {
	c := &Config{DRAMSize: "2G", DRAMBuffer: "1G"}
	_, err := c.dramSizeBytes()
	require.Error(t, err)
}

func TestDRAMSizeBytesAcceptsDRAMSizeAlone(t *testing.T) {
	c := &Config{DRAMSize: "2G"}
	n, err := c.dramSizeBytes()
	require.NoError(t, err)
	require.EqualValues(t, 2*1024*1024*1024, n)
}
