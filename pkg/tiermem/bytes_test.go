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

func TestBytesHumanized(t *testing.T) {
	require.Equal(t, "512B", Bytes(512).Humanized())
	require.Equal(t, "1.00KB", Bytes(1024).Humanized())
	require.Equal(t, "2.00MB", Bytes(2*1024*1024).Humanized())
	require.Equal(t, "1.50GB", Bytes(1536*1024*1024).Humanized())
}

func TestBytesUnitConversions(t *testing.T) {
	b := Bytes(2 * 1024 * 1024 * 1024)
	require.Equal(t, 2.0, b.GB())
	require.Equal(t, 2048.0, b.MB())
}
