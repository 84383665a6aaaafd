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

package handshake

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/meshrelay/rtprelay/wire"
)

// DefaultTimeout bounds how long a handshake attempt may take before
// it is abandoned with ReasonHandshakeTimeout, the watchdog the
// original connector armed around its four-step exchange.
const DefaultTimeout = 5 * time.Second

// Result carries the outcome of a completed handshake attempt to the
// caller's OnHandshakeOk/OnHandshakeError callbacks.
type Result struct {
	RemoteInfo *wire.SessionInfo
	Err        error
}

// Run executes fn (Initiate or Accept bound to rw/password/local)
// under a watchdog deadline, delivering the outcome through onOk/onErr
// instead of a blocking return, matching the reactor's callback-driven
// style for every other session transition.
func Run(ctx context.Context, conn net.Conn, timeout time.Duration, fn func(io.ReadWriter) (*wire.SessionInfo, error), onOk func(*wire.SessionInfo), onErr func(error)) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		onErr(NewSessionError(ReasonSockIO, err))
		return
	}

	type outcome struct {
		info *wire.SessionInfo
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		info, err := fn(conn)
		done <- outcome{info, err}
	}()

	select {
	case o := <-done:
		_ = conn.SetDeadline(time.Time{})
		if o.err != nil {
			onErr(o.err)
			return
		}
		onOk(o.info)
	case <-ctx.Done():
		_ = conn.Close()
		onErr(NewSessionError(ReasonHandshakeTimeout, ctx.Err()))
	case <-time.After(time.Until(deadline) + time.Millisecond):
		_ = conn.Close()
		onErr(NewSessionError(ReasonHandshakeTimeout, context.DeadlineExceeded))
	}
}
