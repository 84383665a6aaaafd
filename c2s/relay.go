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

package c2s

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/meshrelay/rtprelay/configline"
	"github.com/meshrelay/rtprelay/handshake"
	"github.com/meshrelay/rtprelay/msgserver"
	"github.com/meshrelay/rtprelay/reactor"
	"github.com/meshrelay/rtprelay/session"
	"github.com/meshrelay/rtprelay/stats"
	"github.com/meshrelay/rtprelay/transport"
	"github.com/meshrelay/rtprelay/wire"
)

// Identity is the C2S-port identity the relay claims on its uplink
// session: root (1-1), instId 65535.
var Identity = wire.RtpUser{ClassID: wire.RootClassID, UserID: wire.RootUserID, InstID: wire.C2SInstID}

// bootstrapIndex is the client_index the relay uses for its own login
// to the uplink, reserved since Relay's own correlation counter starts
// at 1.
const bootstrapIndex = 0

// localLink binds one downstream client connection to the subUser it
// has logged in as on the broker.
type localLink struct {
	session *session.Wrapper

	mu       sync.Mutex
	subUser  wire.RtpUser
	loggedIn bool
}

func (l *localLink) setSubUser(u wire.RtpUser) {
	l.mu.Lock()
	l.subUser = u
	l.loggedIn = true
	l.mu.Unlock()
}

func (l *localLink) identity() (wire.RtpUser, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subUser, l.loggedIn
}

// pendingLogin correlates a client_login forwarded upstream with the
// downstream connection and client_index waiting on its reply.
type pendingLogin struct {
	link      *localLink
	origIndex string
}

// Relay owns one uplink session to a message server, fanning out to
// many local client sessions, each carried as a subUser of Identity on
// the uplink link.
type Relay struct {
	static            StaticConfig
	dynamic           atomic.Pointer[DynamicConfig]
	transportPassword []byte

	st      stats.Stats
	reactor *reactor.Reactor
	queue   *msgserver.TaskQueue

	mu              sync.Mutex
	uplink          *session.Wrapper
	pending         map[uint64]*pendingLogin
	nextCorrelation uint64
	bySubUser       map[wire.RtpUser]*localLink
	nextLocalID     uint64
	bootstrapDone   chan error
}

// New returns a Relay configured from static/dynamic, authenticating
// to both its uplink and its downstream clients with transportPassword,
// the shared handshake secret.
func New(static StaticConfig, dynamic DynamicConfig, transportPassword []byte, st stats.Stats) *Relay {
	r := &Relay{
		static:            static,
		transportPassword: transportPassword,
		st:                st,
		reactor:           reactor.New(static.Workers),
		queue:             msgserver.NewTaskQueue(static.MaxPendingCount, st),
		pending:           make(map[uint64]*pendingLogin),
		bySubUser:         make(map[wire.RtpUser]*localLink),
	}
	r.dynamic.Store(&dynamic)
	return r
}

// ReloadDynamicConfig hot-swaps the relay's reloadable settings.
func (r *Relay) ReloadDynamicConfig(cfg DynamicConfig) { r.dynamic.Store(&cfg) }

func (r *Relay) dynamicConfig() DynamicConfig { return *r.dynamic.Load() }

func (r *Relay) sessionConfig() session.Config {
	cfg := r.dynamicConfig()
	return session.Config{
		RedlineBytes:      cfg.RedlineBytes,
		RedlineFrames:     cfg.RedlineFrames,
		StrictVideoStream: cfg.StrictVideoStream,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}
}

// Start runs the relay until ctx is canceled: it dials and logs into
// the uplink, then accepts downstream client connections on ln.
func (r *Relay) Start(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.reactor.Run(gctx) })
	g.Go(func() error { return r.runTaskWorkers(gctx) })
	g.Go(func() error { return r.connectUplink(gctx) })
	g.Go(func() error { return r.acceptLoop(gctx, ln) })
	<-gctx.Done()
	_ = ln.Close()
	r.queue.Close()
	return g.Wait()
}

func (r *Relay) runTaskWorkers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		r.queue.Close()
		close(done)
	}()
	for {
		task, ok := r.queue.Pop()
		if !ok {
			<-done
			return ctx.Err()
		}
		task()
	}
}

func (r *Relay) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("c2s: accept: %w", err)
			}
		}
		go r.handleLocalConn(conn)
	}
}

// transportHandlerFunc adapts two closures to transport.Handler,
// resolving the construction cycle between a Transport (which needs a
// Handler) and a session.Wrapper (which needs the already-built
// Transport), the same pattern session_test.go and msgserver.Server
// use.
type transportHandlerFunc struct {
	onRecv  func([]byte)
	onClose func(error)
}

func (h transportHandlerFunc) OnRecv(p []byte)   { h.onRecv(p) }
func (h transportHandlerFunc) OnClose(err error) { h.onClose(err) }

func (r *Relay) handleLocalConn(conn net.Conn) {
	local := &wire.SessionInfo{SessionType: wire.SessionTCPEx, LocalVersion: 1}
	remoteInfo, err := handshake.Accept(conn, r.transportPassword, local)
	if err != nil {
		log.Debugf("c2s: local handshake failed: %v", err)
		conn.Close()
		return
	}

	id := atomic.AddUint64(&r.nextLocalID, 1)
	worker := r.reactor.Assign(id)
	link := &localLink{}

	var w *session.Wrapper
	tr := transport.NewTCPTransport(conn, transportHandlerFunc{
		onRecv:  func(p []byte) { w.OnRecv(p) },
		onClose: func(err error) { w.OnClose(err) },
	})
	w = session.New(id, wire.SessionTCPEx, wire.MmTypeMsg, tr, &localObserver{relay: r, link: link}, r.st, worker.Wheel(), r.sessionConfig())
	link.session = w
	w.MarkHandshakeOK(remoteInfo)
}

// connectUplink dials the message server, completes the transport
// handshake and logs the relay in as Identity before returning.
func (r *Relay) connectUplink(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", r.static.UplinkAddr)
	if err != nil {
		return fmt.Errorf("c2s: dialing uplink %s: %w", r.static.UplinkAddr, err)
	}

	local := &wire.SessionInfo{SessionType: wire.SessionTCPEx, LocalVersion: 1}
	remoteInfo, err := handshake.Initiate(conn, r.transportPassword, local)
	if err != nil {
		conn.Close()
		return fmt.Errorf("c2s: uplink handshake: %w", err)
	}

	worker := r.reactor.Assign(0)
	var w *session.Wrapper
	tr := transport.NewTCPTransport(conn, transportHandlerFunc{
		onRecv:  func(p []byte) { w.OnRecv(p) },
		onClose: func(err error) { w.OnClose(err) },
	})
	w = session.New(0, wire.SessionTCPEx, wire.MmTypeMsg, tr, &uplinkObserver{relay: r}, r.st, worker.Wheel(), r.sessionConfig())
	w.MarkHandshakeOK(remoteInfo)

	r.mu.Lock()
	r.uplink = w
	r.mu.Unlock()

	if err := r.loginUplink(w); err != nil {
		w.Close()
		return err
	}
	<-ctx.Done()
	return nil
}

// loginUplink sends the relay's own client_login for Identity and
// blocks until the broker replies or the attempt times out.
func (r *Relay) loginUplink(w *session.Wrapper) error {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("c2s: generating uplink login nonce: %w", err)
	}
	mac := hmac.New(sha256.New, r.transportPassword)
	mac.Write(nonce)
	hash := mac.Sum(nil)

	done := make(chan error, 1)
	r.mu.Lock()
	r.bootstrapDone = done
	r.mu.Unlock()

	login := encodeControl([]configline.Config{
		{Name: "op", Value: "client_login"},
		{Name: "client_index", Value: strconv.FormatUint(bootstrapIndex, 10)},
		{Name: "client_id", Value: Identity.String()},
		{Name: "hash", Value: hex.EncodeToString(hash)},
		{Name: "nonce", Value: hex.EncodeToString(nonce)},
	})
	if !w.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: login}) {
		return fmt.Errorf("c2s: could not send uplink login")
	}

	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("c2s: uplink login timed out")
	}
}

// lookupBySubUser finds the local link currently logged in as u.
func (r *Relay) lookupBySubUser(u wire.RtpUser) (*localLink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.bySubUser[u]
	return l, ok
}

// dropAllLocalClients is used when the uplink dies: it closes the
// session of every downstream client that has completed its login and
// forgets all logins still waiting on a broker reply. The sessions of
// clients whose login is still pending are not closed here.
func (r *Relay) dropAllLocalClients() {
	r.mu.Lock()
	links := make([]*localLink, 0, len(r.bySubUser))
	for _, l := range r.bySubUser {
		links = append(links, l)
	}
	r.bySubUser = make(map[wire.RtpUser]*localLink)
	r.pending = make(map[uint64]*pendingLogin)
	r.mu.Unlock()

	for _, l := range links {
		l.session.Close()
	}
}

func encodeControl(cfgs []configline.Config) []byte {
	return wire.EncodeControlFrame(cfgs)
}
