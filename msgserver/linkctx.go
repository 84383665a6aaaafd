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

	"github.com/meshrelay/rtprelay/session"
	"github.com/meshrelay/rtprelay/wire"
)

// LinkCtx binds one connected session to the set of identities it
// currently speaks for: its base user (learned from the session's
// SessionInfo/login) plus zero or more subUsers it has registered on
// top of that base.
type LinkCtx struct {
	Session *session.Wrapper

	mu       sync.RWMutex
	baseUser wire.RtpUser
	subUsers map[wire.RtpUser]bool
}

// NewLinkCtx returns a LinkCtx for sess speaking for baseUser.
func NewLinkCtx(sess *session.Wrapper, baseUser wire.RtpUser) *LinkCtx {
	return &LinkCtx{Session: sess, baseUser: baseUser, subUsers: make(map[wire.RtpUser]bool)}
}

// BaseUser returns the identity this link authenticated as.
func (l *LinkCtx) BaseUser() wire.RtpUser {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseUser
}

// AddSubUser registers an additional identity this link now speaks
// for, e.g. a multi-instance client logging in a second instId.
func (l *LinkCtx) AddSubUser(u wire.RtpUser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subUsers[u] = true
}

// RemoveSubUser drops a previously registered identity.
func (l *LinkCtx) RemoveSubUser(u wire.RtpUser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subUsers, u)
}

// Owns reports whether u is this link's base user or one of its
// registered subUsers.
func (l *LinkCtx) Owns(u wire.RtpUser) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.baseUser.Equal(u) {
		return true
	}
	return l.subUsers[u]
}

// Identities returns every identity this link currently owns: its
// base user followed by its subUsers in no particular order.
func (l *LinkCtx) Identities() []wire.RtpUser {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]wire.RtpUser, 0, len(l.subUsers)+1)
	out = append(out, l.baseUser)
	for u := range l.subUsers {
		out = append(out, u)
	}
	return out
}
