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
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshrelay/rtprelay/handshake"
	"github.com/meshrelay/rtprelay/transport"
	"github.com/meshrelay/rtprelay/wire"
)

type fakeObserver struct {
	mu       sync.Mutex
	recv     []*wire.Packet
	closed   bool
	closeErr error
	reason   handshake.CloseReason
	hsOK     bool
}

func (o *fakeObserver) OnHandshakeOK(s *Wrapper, info *wire.SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hsOK = true
}

func (o *fakeObserver) OnRecvPacket(s *Wrapper, p *wire.Packet) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recv = append(o.recv, p)
}

func (o *fakeObserver) OnCloseSession(s *Wrapper, reason handshake.CloseReason, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.reason = reason
	o.closeErr = err
}

func (o *fakeObserver) snapshot() (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.recv), o.closed
}

func newTestWrapperPair(t *testing.T) (*Wrapper, *Wrapper, *fakeObserver, *fakeObserver) {
	clientConn, serverConn := net.Pipe()
	clientObs := &fakeObserver{}
	serverObs := &fakeObserver{}

	var clientW, serverW *Wrapper
	clientT := transport.NewTCPTransport(clientConn, handlerFunc{
		onRecv:  func(p []byte) { clientW.OnRecv(p) },
		onClose: func(err error) { clientW.OnClose(err) },
	})
	serverT := transport.NewTCPTransport(serverConn, handlerFunc{
		onRecv:  func(p []byte) { serverW.OnRecv(p) },
		onClose: func(err error) { serverW.OnClose(err) },
	})

	clientW = New(1, wire.SessionTCP, wire.MmTypeVideo, clientT, clientObs, nil, nil, Config{})
	serverW = New(2, wire.SessionTCP, wire.MmTypeVideo, serverT, serverObs, nil, nil, Config{})

	return clientW, serverW, clientObs, serverObs
}

type handlerFunc struct {
	onRecv  func([]byte)
	onClose func(error)
}

func (h handlerFunc) OnRecv(p []byte)  { h.onRecv(p) }
func (h handlerFunc) OnClose(err error) { h.onClose(err) }

func TestWrapperSendAndReceivePacket(t *testing.T) {
	clientW, _, _, serverObs := newTestWrapperPair(t)
	defer clientW.Close()

	p := &wire.Packet{MmType: wire.MmTypeVideo, Sequence: 1, Marker: true, Payload: []byte("hi")}
	require.True(t, clientW.SendPacket(p))

	require.Eventually(t, func() bool {
		n, _ := serverObs.snapshot()
		return n == 1
	}, time.Second, time.Millisecond)
}

func TestWrapperCloseIsIdempotentAndNotifiesObserverOnce(t *testing.T) {
	clientW, _, clientObs, _ := newTestWrapperPair(t)
	clientW.Close()
	clientW.Close()

	_, closed := clientObs.snapshot()
	require.True(t, closed)
	require.Equal(t, handshake.ReasonNone, clientObs.reason)
}

func TestWrapperRejectsSendAfterClose(t *testing.T) {
	clientW, _, _, _ := newTestWrapperPair(t)
	clientW.Close()
	require.False(t, clientW.SendPacket(&wire.Packet{Payload: []byte("x")}))
}

func TestReservePortPairBindsAdjacentPorts(t *testing.T) {
	pp, err := ReservePortPair(net.ParseIP("127.0.0.1"))
	require.NoError(t, err)
	defer pp.Release()
	require.Equal(t, pp.EvenPort()+1, pp.OddPort())
	require.Equal(t, 0, pp.EvenPort()%2)
}
