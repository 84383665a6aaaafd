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

package msgserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskQueuePushPop(t *testing.T) {
	q := NewTaskQueue(10, nil)
	done := make(chan struct{})
	require.True(t, q.Push(func() { close(done) }))

	task, ok := q.Pop()
	require.True(t, ok)
	task()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestTaskQueueRejectsAtCapacity(t *testing.T) {
	q := NewTaskQueue(2, nil)
	require.True(t, q.Push(func() {}))
	require.True(t, q.Push(func() {}))
	require.False(t, q.Push(func() {}))
	require.Equal(t, 2, q.Len())
}

func TestTaskQueueCloseWakesBlockedPop(t *testing.T) {
	q := NewTaskQueue(10, nil)
	done := make(chan struct{})
	go func() {
		_, ok := q.Pop()
		require.False(t, ok)
		close(done)
	}()

	require.Eventually(t, func() bool { return true }, 10*time.Millisecond, time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up after Close")
	}
}

func TestTaskQueueDefaultsMaxSize(t *testing.T) {
	q := NewTaskQueue(0, nil)
	require.Equal(t, DefaultMaxPendingCount, q.maxSize)
}
