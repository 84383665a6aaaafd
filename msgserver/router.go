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
	"fmt"

	"github.com/meshrelay/rtprelay/wire"
)

// Router partitions a message's destination list across the sessions
// that serve them and batches the destinations bound to the same
// session into a single outbound MessageHeader.
type Router struct {
	registry *Registry
}

// NewRouter returns a Router backed by registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Delivery is one outbound send the router has resolved: msg carries
// only the subset of the original destinations reachable through
// link.
type Delivery struct {
	Link *LinkCtx
	Msg  *wire.MessageHeader
}

// Route resolves msg's destinations into a list of per-session
// deliveries, plus the destinations addressed to the root itself
// (root(s), excluding the C2S port) for the server's own observer to
// consume -- those are never fanned out to other sessions. sender is
// the link the message arrived on, used to:
//   - verify msg.SrcUser is actually owned by sender (anti-spoofing)
//   - exclude sender from direct/subUser delivery, so a message never
//     loops back to the session that sent it
func (rt *Router) Route(sender *LinkCtx, msg *wire.MessageHeader) (deliveries []Delivery, rootDsts []wire.RtpUser, err error) {
	if !sender.Owns(msg.SrcUser) {
		return nil, nil, fmt.Errorf("msgserver: session does not own claimed source user %s", msg.SrcUser)
	}

	batches := make(map[*LinkCtx][]wire.RtpUser)
	order := make([]*LinkCtx, 0, len(msg.DstUsers))

	addTo := func(link *LinkCtx, u wire.RtpUser) {
		if _, seen := batches[link]; !seen {
			order = append(order, link)
		}
		batches[link] = append(batches[link], u)
	}

	for _, dst := range msg.DstUsers {
		switch {
		case dst.IsC2SPort():
			if link, ok := rt.registry.C2SLink(); ok && link != sender {
				addTo(link, dst)
			}
		case dst.IsRoot():
			rootDsts = append(rootDsts, dst)
		default:
			if link, ok := rt.registry.Lookup(dst); ok && link != sender {
				addTo(link, dst)
			}
		}
	}

	deliveries = make([]Delivery, 0, len(order))
	for _, link := range order {
		deliveries = append(deliveries, Delivery{
			Link: link,
			Msg: &wire.MessageHeader{
				Charset:  msg.Charset,
				PublicIP: msg.PublicIP,
				Reserved: msg.Reserved,
				SrcUser:  msg.SrcUser,
				DstUsers: batches[link],
			},
		})
	}
	return deliveries, rootDsts, nil
}
