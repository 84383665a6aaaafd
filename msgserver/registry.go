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

	"github.com/meshrelay/rtprelay/wire"
)

// Registry maps identities to the LinkCtx currently serving them. One
// Registry is shared by every worker of a Server.
type Registry struct {
	mu       sync.RWMutex
	byBase   map[wire.RtpUser]*LinkCtx
	bySub    map[wire.RtpUser]*LinkCtx
	c2sLink  *LinkCtx
	allLinks map[*LinkCtx]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byBase:   make(map[wire.RtpUser]*LinkCtx),
		bySub:    make(map[wire.RtpUser]*LinkCtx),
		allLinks: make(map[*LinkCtx]bool),
	}
}

// Add registers link under its base user.
func (r *Registry) Add(link *LinkCtx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byBase[link.BaseUser()] = link
	r.allLinks[link] = true
	if link.BaseUser().IsC2SPort() {
		r.c2sLink = link
	}
}

// Remove unregisters link and every subUser it had claimed.
func (r *Registry) Remove(link *LinkCtx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byBase, link.BaseUser())
	delete(r.allLinks, link)
	if r.c2sLink == link {
		r.c2sLink = nil
	}
	for u, l := range r.bySub {
		if l == link {
			delete(r.bySub, u)
		}
	}
}

// AddSubUser records that link additionally speaks for u.
func (r *Registry) AddSubUser(link *LinkCtx, u wire.RtpUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link.AddSubUser(u)
	r.bySub[u] = link
}

// RemoveSubUser forgets that link speaks for u.
func (r *Registry) RemoveSubUser(link *LinkCtx, u wire.RtpUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link.RemoveSubUser(u)
	delete(r.bySub, u)
}

// Lookup finds the LinkCtx currently serving identity u, checking base
// users first, then registered subUsers.
func (r *Registry) Lookup(u wire.RtpUser) (*LinkCtx, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.byBase[u]; ok {
		return l, true
	}
	if l, ok := r.bySub[u]; ok {
		return l, true
	}
	return nil, false
}

// C2SLink returns the link currently holding the C2S relay's uplink
// identity, if one is connected.
func (r *Registry) C2SLink() (*LinkCtx, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.c2sLink, r.c2sLink != nil
}

// All returns every currently registered link.
func (r *Registry) All() []*LinkCtx {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LinkCtx, 0, len(r.allLinks))
	for l := range r.allLinks {
		out = append(out, l)
	}
	return out
}
