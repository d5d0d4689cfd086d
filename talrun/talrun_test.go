// Copyright 2024 The Talaria Authors
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

package talrun

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfowle/talaria-sub008/talconfig"
)

func TestWithCPUBoundRunsAllItems(t *testing.T) {
	cfg := talconfig.Default()
	cfg.Threads = 2
	rt := New(cfg)
	defer rt.Close()

	var n int64
	items := []int{1, 2, 3, 4, 5}
	err := WithCPUBound(context.Background(), rt, items, func(_ context.Context, item int) error {
		atomic.AddInt64(&n, int64(item))
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 15, n)
}

func TestWithCPUBoundPropagatesError(t *testing.T) {
	cfg := talconfig.Default()
	rt := New(cfg)
	defer rt.Close()

	err := WithCPUBound(context.Background(), rt, []int{1, 2, 3}, func(_ context.Context, item int) error {
		if item == 2 {
			return assert.AnError
		}
		return nil
	})
	assert.Error(t, err)
}

func TestLockOrderPanicsOnViolation(t *testing.T) {
	lo := NewLockOrder(true)
	lo.Acquire(RankOpenChunks)
	assert.Panics(t, func() { lo.Acquire(RankDictCache) })
}

func TestLockOrderAllowsDescendingRank(t *testing.T) {
	lo := NewLockOrder(true)
	lo.Acquire(RankDictCache)
	assert.NotPanics(t, func() { lo.Acquire(RankOpenChunks) })
	assert.NotPanics(t, func() { lo.Acquire(RankManifestBuilder) })
}

func TestLockOrderDisabledNeverPanics(t *testing.T) {
	lo := NewLockOrder(false)
	lo.Acquire(RankOpenChunks)
	assert.NotPanics(t, func() { lo.Acquire(RankDictCache) })
}
