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

func TestRegistryAddLookupRemove(t *testing.T) {
	reg := NewRegistry()
	link := NewLinkCtx(nil, user(2, 1, 1))
	reg.Add(link)

	found, ok := reg.Lookup(user(2, 1, 1))
	require.True(t, ok)
	require.Same(t, link, found)

	reg.Remove(link)
	_, ok = reg.Lookup(user(2, 1, 1))
	require.False(t, ok)
}

func TestRegistrySubUserLookup(t *testing.T) {
	reg := NewRegistry()
	link := NewLinkCtx(nil, user(2, 1, 1))
	reg.Add(link)
	reg.AddSubUser(link, user(2, 1, 2))

	found, ok := reg.Lookup(user(2, 1, 2))
	require.True(t, ok)
	require.Same(t, link, found)

	reg.RemoveSubUser(link, user(2, 1, 2))
	_, ok = reg.Lookup(user(2, 1, 2))
	require.False(t, ok)
}

func TestRegistryC2SLinkTracksC2SPortIdentity(t *testing.T) {
	reg := NewRegistry()
	relay := NewLinkCtx(nil, root(wire.C2SInstID))
	reg.Add(relay)

	found, ok := reg.C2SLink()
	require.True(t, ok)
	require.Same(t, relay, found)

	reg.Remove(relay)
	_, ok = reg.C2SLink()
	require.False(t, ok)
}

func TestRegistryAllExcludesRemoved(t *testing.T) {
	reg := NewRegistry()
	a := NewLinkCtx(nil, user(2, 1, 1))
	b := NewLinkCtx(nil, user(2, 2, 1))
	reg.Add(a)
	reg.Add(b)
	reg.Remove(a)

	all := reg.All()
	require.Len(t, all, 1)
	require.Same(t, b, all[0])
}
