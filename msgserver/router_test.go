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

	"github.com/stretchr/testify/require"

	"github.com/meshrelay/rtprelay/wire"
)

func user(class uint8, id uint64, inst uint16) wire.RtpUser {
	return wire.RtpUser{ClassID: class, UserID: id, InstID: inst}
}

func root(inst uint16) wire.RtpUser {
	return wire.RtpUser{ClassID: wire.RootClassID, UserID: wire.RootUserID, InstID: inst}
}

func TestRouterDirectDelivery(t *testing.T) {
	reg := NewRegistry()
	rt := NewRouter(reg)

	alice := NewLinkCtx(nil, user(2, 100, 1))
	bob := NewLinkCtx(nil, user(2, 200, 1))
	reg.Add(alice)
	reg.Add(bob)

	msg := &wire.MessageHeader{SrcUser: alice.BaseUser(), DstUsers: []wire.RtpUser{bob.BaseUser()}}
	deliveries, rootDsts, err := rt.Route(alice, msg)
	require.NoError(t, err)
	require.Empty(t, rootDsts)
	require.Len(t, deliveries, 1)
	require.Equal(t, bob, deliveries[0].Link)
	require.Equal(t, []wire.RtpUser{bob.BaseUser()}, deliveries[0].Msg.DstUsers)
}

func TestRouterRejectsSpoofedSource(t *testing.T) {
	reg := NewRegistry()
	rt := NewRouter(reg)

	alice := NewLinkCtx(nil, user(2, 100, 1))
	bob := NewLinkCtx(nil, user(2, 200, 1))
	reg.Add(alice)
	reg.Add(bob)

	msg := &wire.MessageHeader{SrcUser: bob.BaseUser(), DstUsers: []wire.RtpUser{bob.BaseUser()}}
	_, _, err := rt.Route(alice, msg)
	require.Error(t, err)
}

func TestRouterRootAddressedMessageIsNotBroadcast(t *testing.T) {
	reg := NewRegistry()
	rt := NewRouter(reg)

	alice := NewLinkCtx(nil, user(2, 100, 1))
	bob := NewLinkCtx(nil, user(2, 200, 1))
	carol := NewLinkCtx(nil, user(2, 300, 1))
	reg.Add(alice)
	reg.Add(bob)
	reg.Add(carol)

	msg := &wire.MessageHeader{SrcUser: alice.BaseUser(), DstUsers: []wire.RtpUser{root(0)}}
	deliveries, rootDsts, err := rt.Route(alice, msg)
	require.NoError(t, err)
	require.Empty(t, deliveries)
	require.Equal(t, []wire.RtpUser{root(0)}, rootDsts)
}

func TestRouterC2SPortRouting(t *testing.T) {
	reg := NewRegistry()
	rt := NewRouter(reg)

	alice := NewLinkCtx(nil, user(2, 100, 1))
	relay := NewLinkCtx(nil, root(wire.C2SInstID))
	reg.Add(alice)
	reg.Add(relay)

	msg := &wire.MessageHeader{SrcUser: alice.BaseUser(), DstUsers: []wire.RtpUser{root(wire.C2SInstID)}}
	deliveries, rootDsts, err := rt.Route(alice, msg)
	require.NoError(t, err)
	require.Empty(t, rootDsts)
	require.Len(t, deliveries, 1)
	require.Equal(t, relay, deliveries[0].Link)
}

func TestRouterC2SPortNotConfusedWithRootBroadcast(t *testing.T) {
	reg := NewRegistry()
	rt := NewRouter(reg)

	alice := NewLinkCtx(nil, user(2, 100, 1))
	bob := NewLinkCtx(nil, user(2, 200, 1))
	relay := NewLinkCtx(nil, root(wire.C2SInstID))
	reg.Add(alice)
	reg.Add(bob)
	reg.Add(relay)

	msg := &wire.MessageHeader{SrcUser: alice.BaseUser(), DstUsers: []wire.RtpUser{root(wire.C2SInstID)}}
	deliveries, rootDsts, err := rt.Route(alice, msg)
	require.NoError(t, err)
	require.Empty(t, rootDsts)
	require.Len(t, deliveries, 1)
	require.Equal(t, relay, deliveries[0].Link)
}

func TestRouterBatchesSameLinkDestinations(t *testing.T) {
	reg := NewRegistry()
	rt := NewRouter(reg)

	alice := NewLinkCtx(nil, user(2, 100, 1))
	bob := NewLinkCtx(nil, user(2, 200, 1))
	reg.Add(alice)
	reg.Add(bob)
	reg.AddSubUser(bob, user(2, 200, 2))

	msg := &wire.MessageHeader{
		SrcUser:  alice.BaseUser(),
		DstUsers: []wire.RtpUser{bob.BaseUser(), user(2, 200, 2)},
	}
	deliveries, rootDsts, err := rt.Route(alice, msg)
	require.NoError(t, err)
	require.Empty(t, rootDsts)
	require.Len(t, deliveries, 1)
	require.Len(t, deliveries[0].Msg.DstUsers, 2)
}

func TestRouterUnknownDestinationIsSilentlyDropped(t *testing.T) {
	reg := NewRegistry()
	rt := NewRouter(reg)

	alice := NewLinkCtx(nil, user(2, 100, 1))
	reg.Add(alice)

	msg := &wire.MessageHeader{SrcUser: alice.BaseUser(), DstUsers: []wire.RtpUser{user(2, 999, 1)}}
	deliveries, rootDsts, err := rt.Route(alice, msg)
	require.NoError(t, err)
	require.Empty(t, deliveries)
	require.Empty(t, rootDsts)
}
