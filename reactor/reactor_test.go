/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reactor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerWheelFiresAfterDelay(t *testing.T) {
	w := NewTimerWheel()
	go w.Run()
	defer w.Stop()

	var fired int32
	w.Add(30*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, time.Millisecond)
}

func TestTimerWheelCancel(t *testing.T) {
	w := NewTimerWheel()
	go w.Run()
	defer w.Stop()

	var fired int32
	id := w.Add(30*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	w.Cancel(id)

	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&fired))
}

func TestReactorRunStopsOnCancel(t *testing.T) {
	r := New(2)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
}

func TestReactorWorkerWheelFiresTimer(t *testing.T) {
	r := New(2)
	w := r.Assign(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var fired int32
	w.Wheel().Add(30*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestReactorAssignIsStableRoundRobin(t *testing.T) {
	r := New(4)
	require.Same(t, r.Assign(0), r.Assign(4))
	require.Same(t, r.Assign(1), r.Assign(5))
}
