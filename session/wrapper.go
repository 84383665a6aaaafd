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

package session

import (
	"sync"
	"time"

	"github.com/meshrelay/rtprelay/bucket"
	"github.com/meshrelay/rtprelay/handshake"
	"github.com/meshrelay/rtprelay/reactor"
	"github.com/meshrelay/rtprelay/reorder"
	"github.com/meshrelay/rtprelay/stats"
	"github.com/meshrelay/rtprelay/transport"
	"github.com/meshrelay/rtprelay/wire"
)

// Wrapper unifies every session variant behind one type: it owns the
// transport, the outbound bucket, the inbound reorder buffer and the
// input/output enable flags, and drives the Observer callbacks.
//
// Lock ordering: lockUpcall is always acquired before lock, never the
// reverse. lockUpcall serializes delivery of Observer callbacks (so an
// application never sees two callbacks for the same session
// interleaved); lock protects the bucket/reorder/state fields touched
// by both the transport's read goroutine and SendPacket callers. A
// method that needs to both call the Observer and touch state acquires
// lockUpcall first and takes lock only from inside that critical
// section, never the other way around.
type Wrapper struct {
	id          uint64
	sessionType wire.SessionType
	mmType      wire.MmType
	cfg         Config

	lockUpcall sync.Mutex
	lock       sync.Mutex

	transport transport.Transport
	bucket    bucket.Bucket
	reorder   *reorder.Buffer
	observer  Observer
	stats     stats.Stats
	wheel     *reactor.TimerWheel

	state         State
	inputEnabled  bool
	outputEnabled bool

	info wire.SessionInfo

	inPackets  uint64
	inBytes    uint64
	outPackets uint64
	outBytes   uint64
}

// New constructs a Wrapper around an already-established transport.
// The caller is responsible for running the handshake (for TCP_EX/
// SSL_EX) before or after construction and calling MarkHandshakeOK.
func New(id uint64, sessionType wire.SessionType, mmType wire.MmType, tr transport.Transport, observer Observer, st stats.Stats, wheel *reactor.TimerWheel, cfg Config) *Wrapper {
	rw := cfg.ReorderWindow
	if rw == 0 {
		switch mmType {
		case wire.MmTypeAudio:
			rw = reorder.AudioWindow
		case wire.MmTypeVideo:
			rw = reorder.VideoWindow
		default:
			rw = reorder.DefaultWindow
		}
	}

	b := bucket.New(mmType, sessionType)
	if cfg.RedlineBytes > 0 || cfg.RedlineFrames > 0 {
		b.SetRedline(cfg.RedlineBytes, cfg.RedlineFrames)
	}
	if vb, ok := b.(*bucket.VideoBucket); ok {
		vb.SetStrictVideoStream(cfg.StrictVideoStream)
	}

	initialState := StateOK
	if needsHandshake(sessionType) {
		initialState = StateConnecting
	}

	w := &Wrapper{
		id:            id,
		sessionType:   sessionType,
		mmType:        mmType,
		cfg:           cfg,
		transport:     tr,
		bucket:        b,
		reorder:       reorder.New(rw),
		observer:      observer,
		stats:         st,
		wheel:         wheel,
		state:         initialState,
		inputEnabled:  true,
		outputEnabled: true,
	}
	if st != nil {
		st.IncSessionsCreated()
	}
	if cfg.HeartbeatInterval > 0 {
		tr.StartHeartbeat(time.Duration(cfg.HeartbeatInterval) * time.Second)
	}
	return w
}

// ID returns the session's reactor-assigned identifier.
func (w *Wrapper) ID() uint64 { return w.id }

// State returns the current lifecycle state.
func (w *Wrapper) State() State {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.state
}

// MarkHandshakeOK transitions a TCP_EX/SSL_EX session from connecting
// to ok once its nonce exchange finishes, and delivers the
// OnHandshakeOK callback.
func (w *Wrapper) MarkHandshakeOK(info *wire.SessionInfo) {
	w.lockUpcall.Lock()
	defer w.lockUpcall.Unlock()

	w.lock.Lock()
	if w.state == StateClosed {
		w.lock.Unlock()
		return
	}
	w.state = StateOK
	w.info = *info
	w.lock.Unlock()

	w.observer.OnHandshakeOK(w, info)
}

// EnableInput and EnableOutput are the per-session backpressure
// switches that pause a slow peer without tearing the session down.
func (w *Wrapper) EnableInput(enabled bool) {
	w.lock.Lock()
	w.inputEnabled = enabled
	w.lock.Unlock()
	if enabled {
		w.transport.ResumeRecv()
	} else {
		w.transport.SuspendRecv()
	}
}

func (w *Wrapper) EnableOutput(enabled bool) {
	w.lock.Lock()
	w.outputEnabled = enabled
	w.lock.Unlock()
}

// SendPacket offers p to the outbound bucket and, if accepted, writes
// it to the transport immediately. It returns false if the bucket
// rejected the packet (redline reached) or output is disabled.
func (w *Wrapper) SendPacket(p *wire.Packet) bool {
	w.lock.Lock()
	if !w.outputEnabled || w.state != StateOK {
		w.lock.Unlock()
		return false
	}
	accepted := w.bucket.PushBackAddRef(p)
	w.lock.Unlock()

	if !accepted {
		if w.stats != nil {
			w.stats.IncBucketDrops(mmTypeLabel(p.MmType))
		}
		return false
	}
	w.flush()
	return true
}

// flush drains as many packets as the bucket and transport will take.
func (w *Wrapper) flush() {
	for {
		w.lock.Lock()
		front := w.bucket.GetFront()
		w.lock.Unlock()
		if front == nil {
			return
		}

		buf := front.Encode(nil)
		if err := w.transport.SendData(buf); err != nil {
			w.closeWithReason(handshake.ReasonSockIO, err)
			return
		}

		w.lock.Lock()
		w.bucket.PopFrontRelease(front)
		w.outPackets++
		w.outBytes += uint64(front.PayloadLen())
		w.lock.Unlock()

		if w.stats != nil {
			label := mmTypeLabel(front.MmType)
			w.stats.IncPacketsOut(label)
			w.stats.IncBytesOut(label, uint64(front.PayloadLen()))
		}
	}
}

// SendPacketByTimer arms a one-shot timer on the session's reactor
// worker to retry flushing the bucket after delay, used when a send
// briefly back-pressures (RequestOnSend's counterpart for paced
// retransmission rather than edge-triggered wakeup).
func (w *Wrapper) SendPacketByTimer(delay time.Duration) {
	if w.wheel == nil {
		return
	}
	w.wheel.Add(delay, w.flush)
}

// OnRecv implements transport.Handler: a full application frame (one
// RTP-like packet) has arrived.
func (w *Wrapper) OnRecv(payload []byte) {
	var p wire.Packet
	if err := wire.Decode(payload, &p); err != nil {
		w.closeWithReason(handshake.ReasonBadFrame, err)
		return
	}

	w.lock.Lock()
	inputEnabled := w.inputEnabled
	w.lock.Unlock()
	if !inputEnabled {
		return
	}

	deliver := []*wire.Packet{&p}
	if !w.sessionType.IsConnectionOriented() && p.MmType.IsMedia() {
		w.lock.Lock()
		deliver = w.reorder.Push(&p)
		w.lock.Unlock()
	}

	for _, pkt := range deliver {
		w.lock.Lock()
		w.inPackets++
		w.inBytes += uint64(pkt.PayloadLen())
		w.lock.Unlock()

		if w.stats != nil {
			label := mmTypeLabel(pkt.MmType)
			w.stats.IncPacketsIn(label)
			w.stats.IncBytesIn(label, uint64(pkt.PayloadLen()))
		}

		w.lockUpcall.Lock()
		w.observer.OnRecvPacket(w, pkt)
		w.lockUpcall.Unlock()
	}
}

// OnClose implements transport.Handler.
func (w *Wrapper) OnClose(err error) {
	w.closeWithReason(handshake.ReasonPeerDead, err)
}

func (w *Wrapper) closeWithReason(reason handshake.CloseReason, err error) {
	w.lockUpcall.Lock()
	defer w.lockUpcall.Unlock()

	w.lock.Lock()
	if w.state == StateClosed {
		w.lock.Unlock()
		return
	}
	w.state = StateClosed
	w.bucket.Reset()
	w.reorder.Reset()
	w.lock.Unlock()

	_ = w.transport.Close()
	if w.stats != nil {
		w.stats.IncSessionsClosed(reason.String())
	}
	w.observer.OnCloseSession(w, reason, err)
}

// Close tears the session down from the owner's side (not in response
// to a transport event), e.g. when the message server evicts an idle
// identity.
func (w *Wrapper) Close() {
	w.closeWithReason(handshake.ReasonNone, nil)
}

// Stats returns the accumulated input/output packet and byte counts
// for this session.
func (w *Wrapper) Stats() (inPackets, inBytes, outPackets, outBytes uint64) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.inPackets, w.inBytes, w.outPackets, w.outBytes
}

// needsHandshake reports whether sessionType establishes itself via
// the four-step nonce exchange before it is usable.
func needsHandshake(sessionType wire.SessionType) bool {
	switch sessionType {
	case wire.SessionTCPEx, wire.SessionSSLEx:
		return true
	default:
		return false
	}
}

func mmTypeLabel(t wire.MmType) string {
	switch t {
	case wire.MmTypeAudio:
		return "audio"
	case wire.MmTypeVideo:
		return "video"
	default:
		return "msg"
	}
}
