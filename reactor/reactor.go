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

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Worker owns one shard of sessions' timer wheel. Sharding sessions
// across a fixed pool of workers is how the reactor bounds its OS
// thread usage regardless of session count: every session pinned to a
// worker shares that worker's wheel goroutine for its timer-paced
// sends, instead of each session owning one.
//
// Socket readiness itself is not multiplexed through the worker: each
// TCP/UDP/SSL transport already owns a dedicated read goroutine
// (net.Conn.Read blocks there directly), so there is no select-style
// fan-in for a worker to notify. A worker's only standing
// responsibility is running its TimerWheel for the lifetime of the
// reactor.
type Worker struct {
	id    int
	wheel *TimerWheel
}

func newWorker(id int) *Worker {
	return &Worker{
		id:    id,
		wheel: NewTimerWheel(),
	}
}

// Wheel returns the worker's timer wheel, for arming timers (such as
// timer-paced sends) local to this worker.
func (w *Worker) Wheel() *TimerWheel { return w.wheel }

func (w *Worker) run(ctx context.Context) error {
	go w.wheel.Run()
	defer w.wheel.Stop()

	<-ctx.Done()
	return nil
}

// Reactor is a fixed pool of Workers. Sessions are assigned to a
// worker at creation time (round robin) and stay there for their
// lifetime, so all of a session's callbacks run on one goroutine
// without locking against themselves.
type Reactor struct {
	workers []*Worker
	next    uint64
}

// New returns a Reactor with numWorkers workers. numWorkers is clamped
// to at least 1.
func New(numWorkers int) *Reactor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	r := &Reactor{workers: make([]*Worker, numWorkers)}
	for i := range r.workers {
		r.workers[i] = newWorker(i)
	}
	return r
}

// NumWorkers returns the size of the fixed pool.
func (r *Reactor) NumWorkers() int { return len(r.workers) }

// Assign returns the worker a new session with the given identifier
// should be pinned to.
func (r *Reactor) Assign(sessionSeq uint64) *Worker {
	return r.workers[sessionSeq%uint64(len(r.workers))]
}

// Run starts every worker and blocks until ctx is canceled or a worker
// returns an error, using errgroup to propagate the first failure and
// cancel the rest.
func (r *Reactor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		w := w
		g.Go(func() error {
			log.Debugf("reactor: worker %d starting", w.id)
			err := w.run(gctx)
			log.Debugf("reactor: worker %d stopped: %v", w.id, err)
			return err
		})
	}
	return g.Wait()
}
