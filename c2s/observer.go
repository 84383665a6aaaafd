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
	"strconv"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/meshrelay/rtprelay/configline"
	"github.com/meshrelay/rtprelay/handshake"
	"github.com/meshrelay/rtprelay/session"
	"github.com/meshrelay/rtprelay/wire"
)

// localObserver is the session.Observer for one downstream client
// connection.
type localObserver struct {
	relay *Relay
	link  *localLink
}

func (o *localObserver) OnHandshakeOK(*session.Wrapper, *wire.SessionInfo) {}

func (o *localObserver) OnRecvPacket(s *session.Wrapper, p *wire.Packet) {
	cfgs, hdr, body, isControl, err := wire.DecodeMsgFrame(p.Payload)
	if err != nil {
		log.Debugf("c2s: malformed local frame from session %d: %v", s.ID(), err)
		return
	}
	if isControl {
		o.relay.handleLocalControl(o.link, cfgs)
		return
	}
	o.relay.handleLocalMessage(o.link, hdr, body)
}

func (o *localObserver) OnCloseSession(*session.Wrapper, handshake.CloseReason, error) {
	o.relay.handleLocalClose(o.link)
}

// uplinkObserver is the session.Observer for the relay's single
// uplink session to the message server.
type uplinkObserver struct {
	relay *Relay
}

func (o *uplinkObserver) OnHandshakeOK(*session.Wrapper, *wire.SessionInfo) {}

func (o *uplinkObserver) OnRecvPacket(s *session.Wrapper, p *wire.Packet) {
	cfgs, hdr, body, isControl, err := wire.DecodeMsgFrame(p.Payload)
	if err != nil {
		log.Debugf("c2s: malformed uplink frame: %v", err)
		return
	}
	if isControl {
		o.relay.handleUplinkControl(cfgs)
		return
	}
	o.relay.handleUplinkMessage(hdr, body)
}

func (o *uplinkObserver) OnCloseSession(_ *session.Wrapper, reason handshake.CloseReason, err error) {
	log.Warningf("c2s: uplink closed (%s): %v", reason, err)
	o.relay.mu.Lock()
	done := o.relay.bootstrapDone
	o.relay.bootstrapDone = nil
	o.relay.mu.Unlock()
	if done != nil {
		done <- &handshake.SessionError{Reason: reason, Cause: err}
	}
	o.relay.dropAllLocalClients()
}

// handleLocalControl dispatches a client_login/client_logout request
// arriving on a downstream session.
func (r *Relay) handleLocalControl(link *localLink, cfgs []configline.Config) {
	op, _ := configline.Lookup(cfgs, "op")
	switch op {
	case "client_login":
		r.handleLocalLogin(link, cfgs)
	case "client_logout":
		r.handleLocalLogout(link, cfgs)
	default:
		log.Debugf("c2s: unknown local control op %q", op)
	}
}

// handleLocalLogin forwards a downstream client_login upstream,
// recording the correlation needed to route the broker's reply back
// to this link under its original client_index.
func (r *Relay) handleLocalLogin(link *localLink, cfgs []configline.Config) {
	clientIndex, _ := configline.Lookup(cfgs, "client_index")
	clientID, _ := configline.Lookup(cfgs, "client_id")
	hash, _ := configline.Lookup(cfgs, "hash")
	nonce, _ := configline.Lookup(cfgs, "nonce")

	if _, err := wire.ParseRtpUser(clientID); err != nil {
		log.Debugf("c2s: malformed client_id %q: %v", clientID, err)
		link.session.Close()
		return
	}

	ok := r.queue.Push(func() {
		idx := atomic.AddUint64(&r.nextCorrelation, 1)
		r.mu.Lock()
		r.pending[idx] = &pendingLogin{link: link, origIndex: clientIndex}
		uplink := r.uplink
		r.mu.Unlock()

		if uplink == nil {
			r.replyLocalLoginError(link, clientIndex)
			return
		}
		login := encodeControl([]configline.Config{
			{Name: "op", Value: "client_login"},
			{Name: "client_index", Value: strconv.FormatUint(idx, 10)},
			{Name: "client_id", Value: clientID},
			{Name: "hash", Value: hash},
			{Name: "nonce", Value: nonce},
		})
		if !uplink.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: login}) {
			r.replyLocalLoginError(link, clientIndex)
		}
	})
	if !ok {
		log.Warningf("c2s: task queue full, rejecting local login")
		r.replyLocalLoginError(link, clientIndex)
	}
}

// handleLocalLogout removes link's subUser and notifies the broker,
// replying locally without waiting on the uplink's acknowledgement.
func (r *Relay) handleLocalLogout(link *localLink, _ []configline.Config) {
	subUser, loggedIn := link.identity()
	if !loggedIn {
		link.session.Close()
		return
	}

	r.mu.Lock()
	delete(r.bySubUser, subUser)
	uplink := r.uplink
	r.mu.Unlock()

	if uplink != nil {
		r.queue.Push(func() {
			logout := encodeControl([]configline.Config{
				{Name: "op", Value: "client_logout"},
				{Name: "client_id", Value: subUser.String()},
			})
			uplink.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: logout})
		})
	}

	reply := encodeControl([]configline.Config{{Name: "op", Value: "client_logout_ok"}})
	link.session.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: reply})
	link.session.Close()
}

// handleLocalMessage rewrites the message's source to link's
// authenticated subUser, preventing a client from spoofing another
// identity, and forwards it on the shared uplink.
func (r *Relay) handleLocalMessage(link *localLink, hdr *wire.MessageHeader, body []byte) {
	subUser, loggedIn := link.identity()
	if !loggedIn {
		log.Debugf("c2s: dropping message from session %d: not logged in", link.session.ID())
		return
	}

	ok := r.queue.Push(func() {
		r.mu.Lock()
		uplink := r.uplink
		r.mu.Unlock()
		if uplink == nil {
			return
		}
		out := &wire.MessageHeader{
			Charset:  hdr.Charset,
			PublicIP: hdr.PublicIP,
			Reserved: hdr.Reserved,
			SrcUser:  subUser,
			DstUsers: hdr.DstUsers,
		}
		payload, err := wire.EncodeMessageFrame(out, body)
		if err != nil {
			log.Debugf("c2s: encoding upstream message: %v", err)
			return
		}
		uplink.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: payload})
	})
	if !ok {
		log.Warningf("c2s: task queue full, dropping upstream message from %s", subUser)
	}
}

// handleLocalClose cleans up a downstream session's registrations and
// best-effort notifies the broker it logged out.
func (r *Relay) handleLocalClose(link *localLink) {
	subUser, loggedIn := link.identity()
	if !loggedIn {
		return
	}
	r.mu.Lock()
	delete(r.bySubUser, subUser)
	uplink := r.uplink
	r.mu.Unlock()

	if uplink != nil {
		r.queue.Push(func() {
			logout := encodeControl([]configline.Config{
				{Name: "op", Value: "client_logout"},
				{Name: "client_id", Value: subUser.String()},
			})
			uplink.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: logout})
		})
	}
}

func (r *Relay) replyLocalLoginError(link *localLink, clientIndex string) {
	reply := encodeControl([]configline.Config{
		{Name: "op", Value: "client_login_error"},
		{Name: "client_index", Value: clientIndex},
	})
	link.session.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: reply})
}

// handleUplinkControl dispatches a client_login_ok/client_login_error
// reply arriving on the uplink session, either completing the relay's
// own bootstrap login or a proxied downstream login.
func (r *Relay) handleUplinkControl(cfgs []configline.Config) {
	op, _ := configline.Lookup(cfgs, "op")
	indexStr, _ := configline.Lookup(cfgs, "client_index")
	idx, err := strconv.ParseUint(indexStr, 10, 64)
	if err != nil {
		log.Debugf("c2s: uplink reply with bad client_index %q", indexStr)
		return
	}

	if idx == bootstrapIndex {
		r.mu.Lock()
		done := r.bootstrapDone
		r.bootstrapDone = nil
		r.mu.Unlock()
		if done == nil {
			return
		}
		if op == "client_login_ok" {
			done <- nil
		} else {
			done <- &handshake.SessionError{Reason: handshake.ReasonAuthFail}
		}
		return
	}

	r.mu.Lock()
	pending, ok := r.pending[idx]
	if ok {
		delete(r.pending, idx)
	}
	r.mu.Unlock()
	if !ok {
		log.Debugf("c2s: uplink reply for unknown client_index %d", idx)
		return
	}

	switch op {
	case "client_login_ok":
		clientID, _ := configline.Lookup(cfgs, "client_id")
		assigned, err := wire.ParseRtpUser(clientID)
		if err != nil {
			log.Debugf("c2s: malformed assigned client_id %q: %v", clientID, err)
			r.replyLocalLoginError(pending.link, pending.origIndex)
			return
		}
		pending.link.setSubUser(assigned)
		r.mu.Lock()
		r.bySubUser[assigned] = pending.link
		r.mu.Unlock()

		reply := encodeControl([]configline.Config{
			{Name: "op", Value: "client_login_ok"},
			{Name: "client_index", Value: pending.origIndex},
			{Name: "client_id", Value: assigned.String()},
		})
		pending.link.session.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: reply})
	case "client_login_error":
		r.replyLocalLoginError(pending.link, pending.origIndex)
	default:
		log.Debugf("c2s: unexpected uplink control op %q", op)
	}
}

// handleUplinkMessage fans a broker message out to every local
// subUser named in its destination list.
func (r *Relay) handleUplinkMessage(hdr *wire.MessageHeader, body []byte) {
	for _, dst := range hdr.DstUsers {
		link, ok := r.lookupBySubUser(dst)
		if !ok {
			continue
		}
		out := &wire.MessageHeader{
			Charset:  hdr.Charset,
			PublicIP: hdr.PublicIP,
			Reserved: hdr.Reserved,
			SrcUser:  hdr.SrcUser,
			DstUsers: []wire.RtpUser{dst},
		}
		payload, err := wire.EncodeMessageFrame(out, body)
		if err != nil {
			log.Debugf("c2s: encoding downstream message: %v", err)
			continue
		}
		link.session.SendPacket(&wire.Packet{MmType: wire.MmTypeMsg, Payload: payload})
	}
}
