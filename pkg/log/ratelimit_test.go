// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package log

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *countingLogger) Debug(format string, args ...interface{}) { c.record(format, args...) }
func (c *countingLogger) Info(format string, args ...interface{})  { c.record(format, args...) }
func (c *countingLogger) Warn(format string, args ...interface{})  { c.record(format, args...) }
func (c *countingLogger) Error(format string, args ...interface{}) { c.record(format, args...) }
func (c *countingLogger) Fatal(format string, args ...interface{}) { c.record(format, args...) }

func (c *countingLogger) record(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func (c *countingLogger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func TestRateLimitBurstOne(t *testing.T) {
	inner := &countingLogger{}
	rl := RateLimit(inner, Rate{Limit: 0, Burst: 1})

	for i := 0; i < 10; i++ {
		rl.Warn("repeated message")
	}
	require.Equal(t, 1, inner.count())
}

func TestRateLimitDistinctMessagesIndependent(t *testing.T) {
	inner := &countingLogger{}
	rl := RateLimit(inner, Rate{Limit: 0, Burst: 1})

	rl.Warn("message a")
	rl.Warn("message b")
	require.Equal(t, 2, inner.count())
}

func TestRateLimitWindowEviction(t *testing.T) {
	inner := &countingLogger{}
	rl := RateLimit(inner, Rate{Limit: 0, Burst: 1, Window: MinimumWindow})

	for i := 0; i < MinimumWindow+1; i++ {
		rl.Warn(fmt.Sprintf("message %d", i))
	}
	// the first message's limiter was evicted, so repeating it is
	// allowed again even though it was already seen once.
	rl.Warn("message 0")
	require.Equal(t, MinimumWindow+2, inner.count())
}
