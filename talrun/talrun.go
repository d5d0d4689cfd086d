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

// Package talrun builds the explicit runtime context object called for by
// Design Notes §9: the CPU work pool, logger and (optional) deadlock
// detector, all constructed once at process start and passed by reference
// into every component - never package-level globals.
package talrun

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bfowle/talaria-sub008/talconfig"
)

// Runtime is the process-wide context threaded through every component
// constructor. It owns exactly two pieces of truly global state: the
// thread-pool configuration and (indirectly, via WithCPUBound) access to
// the bounded CPU pool.
type Runtime struct {
	Config  talconfig.Config
	Log     *logrus.Logger
	cpuSema *semaphore.Weighted

	deadlock *deadlockDetector
}

// New builds a Runtime from cfg: sizes the CPU pool to cfg.Threads (0 =
// runtime.NumCPU()), configures the logger at cfg.LogLevel, and starts the
// deadlock detector if cfg.DeadlockDetection is set.
func New(cfg talconfig.Config) *Runtime {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	log := logrus.New()
	log.SetLevel(talconfig.ParseLogLevel(cfg.LogLevel))

	rt := &Runtime{
		Config:  cfg,
		Log:     log,
		cpuSema: semaphore.NewWeighted(int64(threads)),
	}
	if cfg.DeadlockDetection {
		rt.deadlock = newDeadlockDetector(time.Duration(cfg.DeadlockIntervalMS) * time.Millisecond)
		rt.deadlock.start()
	}
	return rt
}

// Entry returns a logrus.Entry tagged with the given component name, the
// field every log line in the core carries.
func (rt *Runtime) Entry(component string) *logrus.Entry {
	return rt.Log.WithField("component", component)
}

// WithCPUBound runs fn for each of the given items on the CPU pool,
// bounded to the configured thread count, using an errgroup for
// cancellation-propagating fan-out. Batch existence checks
// (seqstore.ExistsBatch) and verification (verify.Verify) are built on it.
func WithCPUBound[T any](ctx context.Context, rt *Runtime, items []T, fn func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		item := item
		if err := rt.cpuSema.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer rt.cpuSema.Release(1)
			return fn(gctx, item)
		})
	}
	return g.Wait()
}

// Close stops the deadlock detector, if running.
func (rt *Runtime) Close() {
	if rt.deadlock != nil {
		rt.deadlock.stop()
	}
}
