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
	"sync"

	"github.com/meshrelay/rtprelay/stats"
)

// Task is one unit of routing work: a message ready to be delivered
// to one or more sessions. The router builds these; the server drains
// them on its own goroutine so routing never runs on a transport's
// read goroutine directly.
type Task func()

// TaskQueue is a bounded multi-producer single-consumer queue with a
// fixed backpressure cap: once MaxPending tasks are
// queued, Push rejects further work rather than growing unbounded,
// protecting the server from one overloaded session taking down
// everyone else's routing.
type TaskQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []Task
	maxSize int
	closed  bool
	stats   stats.Stats
}

// NewTaskQueue returns a TaskQueue that rejects pushes once it holds
// maxSize tasks. maxSize <= 0 falls back to DefaultMaxPendingCount.
func NewTaskQueue(maxSize int, st stats.Stats) *TaskQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxPendingCount
	}
	q := &TaskQueue{maxSize: maxSize, stats: st}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues t. It returns false without enqueuing if the queue is
// at capacity or closed -- the caller (the router) is expected to drop
// the message and count it as a backpressure event rather than block.
func (q *TaskQueue) Push(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.tasks) >= q.maxSize {
		return false
	}
	q.tasks = append(q.tasks, t)
	if q.stats != nil {
		q.stats.SetTaskQueueDepth(int64(len(q.tasks)))
	}
	q.cond.Signal()
	return true
}

// Pop blocks until a task is available or the queue is closed, in
// which case ok is false.
func (q *TaskQueue) Pop() (t Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.tasks) == 0 {
		return nil, false
	}
	t = q.tasks[0]
	q.tasks = q.tasks[1:]
	if q.stats != nil {
		q.stats.SetTaskQueueDepth(int64(len(q.tasks)))
	}
	return t, true
}

// Len returns the current queue depth.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close wakes every blocked Pop with ok=false and rejects further
// pushes.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
