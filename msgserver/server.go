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
	"context"
	"encoding/hex"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/meshrelay/rtprelay/configline"
	"github.com/meshrelay/rtprelay/handshake"
	"github.com/meshrelay/rtprelay/reactor"
	"github.com/meshrelay/rtprelay/session"
	"github.com/meshrelay/rtprelay/stats"
	"github.com/meshrelay/rtprelay/transport"
	"github.com/meshrelay/rtprelay/wire"
)

// CheckUserRequest carries the fields of a client_login control
// message the application needs to authenticate the connecting
// identity.
type CheckUserRequest struct {
	ClientID wire.RtpUser // as claimed; UserID==0 requests auto-assignment
	Hash     []byte
	Nonce    []byte
}

// CheckUserResponse is what the application hands back once it has
// authenticated a CheckUserRequest. A nonzero UserID/InstID overrides
// the claimed identity; a zero one leaves the claimed value as-is. When
// both the claimed and the response UserID are zero, the broker
// auto-assigns the userId.
type CheckUserResponse struct {
	UserID  uint64
	InstID  uint16
	AppData []byte
}

// CheckUserFunc authenticates a client_login request. Returning
// ok=false replies client_login_error, counts an "auth_fail" handshake
// failure and closes the session; the close reason the session reports
// is ReasonNone, not ReasonAuthFail.
type CheckUserFunc func(req CheckUserRequest) (resp CheckUserResponse, ok bool)

// RootMessageFunc receives a message addressed to the broker root
// itself (destination classId/userId == 1/1, excluding the C2S port,
// which routes to the C2S link instead). dsts is the subset of the
// original destination list that named the root; body is the message
// payload past the header. Messages with no handler registered are
// dropped.
type RootMessageFunc func(src wire.RtpUser, dsts []wire.RtpUser, body []byte)

// Server is the message server: it accepts TCP_EX/SSL_EX
// connections, authenticates each as an identity via a client_login
// control frame, and routes application messages between the
// identities currently connected.
type Server struct {
	static  StaticConfig
	dynamic atomic.Pointer[DynamicConfig]

	registry *Registry
	router   *Router
	queue    *TaskQueue
	stats    stats.Stats
	reactor  *reactor.Reactor

	onCheckUser   CheckUserFunc
	onRootMessage RootMessageFunc
	password      []byte

	nextSessionID uint64

	// serverClassCounter and clientClassCounter back the userId==0
	// auto-assignment counters: a separate wrap-around counter over
	// the same auto-assigned range for classId==1 (server-class)
	// identities and for everything else (client-class).
	serverClassCounter uint64
	clientClassCounter uint64

	mu       sync.Mutex
	listener net.Listener
}

// New returns a Server ready to Start once a listener is attached.
func New(static StaticConfig, dynamic DynamicConfig, password []byte, checkUser CheckUserFunc, st stats.Stats) *Server {
	s := &Server{
		static:      static,
		registry:    NewRegistry(),
		stats:       st,
		onCheckUser: checkUser,
		password:    password,
		reactor:     reactor.New(static.Workers),
	}
	s.router = NewRouter(s.registry)
	s.queue = NewTaskQueue(static.MaxPendingCount, st)
	s.dynamic.Store(&dynamic)
	return s
}

// SetRootMessageHandler installs the callback invoked for messages
// addressed to the broker root itself. Must be called before Start;
// nil (the default) silently drops root-addressed messages.
func (s *Server) SetRootMessageHandler(fn RootMessageFunc) {
	s.onRootMessage = fn
}

// autoUserIDRangeSize is the span of the broker's auto-assigned userId
// range, [AutoUserIDLow, AutoUserIDHigh].
const autoUserIDRangeSize = wire.AutoUserIDHigh - wire.AutoUserIDLow + 1

// nextAutoUserID allocates the next userId from the wrap-around
// counter for classID.
func (s *Server) nextAutoUserID(classID uint8) uint64 {
	counter := &s.clientClassCounter
	if classID == wire.RootClassID {
		counter = &s.serverClassCounter
	}
	v := atomic.AddUint64(counter, 1)
	return wire.AutoUserIDLow + (v-1)%autoUserIDRangeSize
}

// ReloadDynamicConfig atomically swaps in a new DynamicConfig, taking
// effect for every session created after the call (existing sessions
// keep whatever redlines they were built with -- the same
// take-effect-for-new-connections semantics ptp4u/server's config
// watcher uses).
func (s *Server) ReloadDynamicConfig(cfg DynamicConfig) {
	s.dynamic.Store(&cfg)
}

func (s *Server) dynamicConfig() DynamicConfig {
	return *s.dynamic.Load()
}

// Start accepts connections on ln until ctx is canceled, dispatching
// routing work onto the task queue drained by runTaskWorkers.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.reactor.Run(gctx) })
	g.Go(func() error { return s.runTaskWorkers(gctx) })
	g.Go(func() error { return s.acceptLoop(gctx, ln) })

	<-gctx.Done()
	_ = ln.Close()
	s.queue.Close()
	return g.Wait()
}

func (s *Server) runTaskWorkers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.queue.Close()
	}()
	go func() {
		for {
			t, ok := s.queue.Pop()
			if !ok {
				close(done)
				return
			}
			t()
		}
	}()
	<-done
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	id := atomic.AddUint64(&s.nextSessionID, 1)
	local := &wire.SessionInfo{SessionType: wire.SessionTCPEx, LocalVersion: 1}

	remoteInfo, err := handshake.Accept(conn, s.password, local)
	if err != nil {
		log.Warningf("msgserver: handshake failed from %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
		if s.stats != nil {
			var sessErr *handshake.SessionError
			reason := "unknown"
			if ok := asSessionError(err, &sessErr); ok {
				reason = sessErr.Reason.String()
			}
			s.stats.IncHandshakeFail(reason)
		}
		return
	}
	if s.stats != nil {
		s.stats.IncHandshakeOK()
	}

	worker := s.reactor.Assign(id)
	link := &pendingLink{server: s}
	cfg := s.sessionConfig()

	var w *session.Wrapper
	tr := transport.NewTCPTransport(conn, transportHandlerFunc{
		onRecv:  func(p []byte) { w.OnRecv(p) },
		onClose: func(err error) { w.OnClose(err) },
	})
	w = session.New(id, wire.SessionTCPEx, wire.MmTypeMsg, tr, link, s.stats, worker.Wheel(), cfg)
	link.wrapper = w
	w.MarkHandshakeOK(remoteInfo)
}

// transportHandlerFunc adapts a pair of closures to transport.Handler,
// used to close the construction cycle between a Transport (which
// needs a handler up front) and the Wrapper it feeds (which needs the
// Transport up front).
type transportHandlerFunc struct {
	onRecv  func([]byte)
	onClose func(error)
}

func (h transportHandlerFunc) OnRecv(p []byte)   { h.onRecv(p) }
func (h transportHandlerFunc) OnClose(err error) { h.onClose(err) }

func (s *Server) sessionConfig() session.Config {
	d := s.dynamicConfig()
	return session.Config{
		RedlineBytes:      d.RedlineBytes,
		RedlineFrames:     d.RedlineFrames,
		StrictVideoStream: d.StrictVideoStream,
		HeartbeatInterval: d.HeartbeatInterval,
	}
}

// pendingLink adapts the session.Observer callbacks to the server's
// login/logout/routing logic. It starts unregistered (no LinkCtx) and
// becomes a registered LinkCtx once a valid client_login frame arrives.
type pendingLink struct {
	server  *Server
	wrapper *session.Wrapper

	mu   sync.Mutex
	link *LinkCtx
}

func (p *pendingLink) OnHandshakeOK(s *session.Wrapper, info *wire.SessionInfo) {}

func (p *pendingLink) OnRecvPacket(s *session.Wrapper, pkt *wire.Packet) {
	cfgs, msgHdr, body, isControl, err := decodeMessage(pkt.Payload)
	if err != nil {
		log.Debugf("msgserver: malformed message from session %d: %v", s.ID(), err)
		return
	}

	if isControl {
		// Authentication and link-table mutations are heavy work and
		// run on the shared task queue, which also gives
		// client_logout floods the same MAX_PENDING_COUNT backpressure
		// cap as client_login.
		if !p.server.queue.Push(func() { p.handleControl(s, cfgs) }) {
			log.Warningf("msgserver: task queue full, closing session %d", s.ID())
			s.Close()
		}
		return
	}

	p.mu.Lock()
	link := p.link
	p.mu.Unlock()
	if link == nil {
		log.Debugf("msgserver: session %d sent a message before logging in", s.ID())
		return
	}
	p.server.dispatchRoute(link, msgHdr, body)
}

func (p *pendingLink) handleControl(s *session.Wrapper, cfgs []configline.Config) {
	op, _ := configline.Lookup(cfgs, "op")
	switch op {
	case "client_login":
		p.handleLogin(s, cfgs)
	case "client_logout":
		p.handleLogout(s, cfgs)
	default:
		log.Debugf("msgserver: unknown control op %q", op)
	}
}

// handleLogin implements the client_login half of the C2S port
// protocol: a claimed client_id is checked
// by the application's CheckUserFunc, userId==0 triggers broker
// auto-assignment, and the link is installed in the registry before
// the resolved identity is echoed back as client_login_ok
// (client_login_error on failure, with no registry change).
func (p *pendingLink) handleLogin(s *session.Wrapper, cfgs []configline.Config) {
	clientIndex, _ := configline.Lookup(cfgs, "client_index")
	clientIDStr, _ := configline.Lookup(cfgs, "client_id")
	hashHex, _ := configline.Lookup(cfgs, "hash")
	nonceHex, _ := configline.Lookup(cfgs, "nonce")

	claimed, err := wire.ParseRtpUser(clientIDStr)
	if err != nil {
		log.Debugf("msgserver: malformed client_id %q: %v", clientIDStr, err)
		s.Close()
		return
	}
	hash, _ := hex.DecodeString(hashHex)
	nonce, _ := hex.DecodeString(nonceHex)

	var resp CheckUserResponse
	ok := false
	if p.server.onCheckUser != nil {
		resp, ok = p.server.onCheckUser(CheckUserRequest{ClientID: claimed, Hash: hash, Nonce: nonce})
	}
	if !ok {
		p.sendControl(s, []configline.Config{
			{Name: "op", Value: "client_login_error"},
			{Name: "client_index", Value: clientIndex},
		})
		if p.server.stats != nil {
			p.server.stats.IncHandshakeFail("auth_fail")
		}
		s.Close()
		return
	}

	instID := claimed.InstID
	if instID == 0 {
		instID = 1
	}
	if resp.InstID != 0 {
		instID = resp.InstID
	}
	userID := claimed.UserID
	if resp.UserID != 0 {
		userID = resp.UserID
	}
	if userID == 0 {
		userID = p.server.nextAutoUserID(claimed.ClassID)
	}
	identity := wire.RtpUser{ClassID: claimed.ClassID, UserID: userID, InstID: instID}

	link := NewLinkCtx(s, identity)
	p.mu.Lock()
	p.link = link
	p.mu.Unlock()
	p.server.registry.Add(link)

	p.sendControl(s, []configline.Config{
		{Name: "op", Value: "client_login_ok"},
		{Name: "client_index", Value: clientIndex},
		{Name: "client_id", Value: identity.String()},
	})
}

// handleLogout implements client_logout: the identity is dropped from
// the registry and the removal is echoed back before the session
// closes, mirroring login's synchronization.
func (p *pendingLink) handleLogout(s *session.Wrapper, cfgs []configline.Config) {
	p.mu.Lock()
	link := p.link
	p.mu.Unlock()
	if link == nil {
		return
	}
	p.server.registry.Remove(link)
	p.sendControl(s, []configline.Config{{Name: "op", Value: "client_logout_ok"}})
	s.Close()
}

func (p *pendingLink) sendControl(s *session.Wrapper, cfgs []configline.Config) {
	s.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: encodeControl(cfgs)})
}

func (p *pendingLink) OnCloseSession(s *session.Wrapper, reason handshake.CloseReason, err error) {
	p.mu.Lock()
	link := p.link
	p.mu.Unlock()
	if link != nil {
		p.server.registry.Remove(link)
	}
}

// dispatchRoute pushes the actual routing work onto the task queue so
// it never runs on the session's own transport goroutine; a rejection
// here is the backpressure path.
func (s *Server) dispatchRoute(sender *LinkCtx, msg *wire.MessageHeader, body []byte) {
	ok := s.queue.Push(func() {
		deliveries, rootDsts, err := s.router.Route(sender, msg)
		if err != nil {
			log.Debugf("msgserver: routing error: %v", err)
			return
		}
		for _, d := range deliveries {
			out, err := encodeMessage(d.Msg, body)
			if err != nil {
				log.Debugf("msgserver: encoding delivery: %v", err)
				continue
			}
			d.Link.Session.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: out})
		}
		if len(rootDsts) > 0 {
			if s.onRootMessage != nil {
				s.onRootMessage(msg.SrcUser, rootDsts, body)
			} else {
				log.Debugf("msgserver: dropping message to root from %s, no handler installed", msg.SrcUser)
			}
		}
	})
	if !ok {
		log.Warningf("msgserver: task queue full, dropping message from %s", sender.BaseUser())
	}
}

func asSessionError(err error, target **handshake.SessionError) bool {
	return errors.As(err, target)
}
