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
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshrelay/rtprelay/configline"
	"github.com/meshrelay/rtprelay/handshake"
	"github.com/meshrelay/rtprelay/msgserver"
	"github.com/meshrelay/rtprelay/stats"
	"github.com/meshrelay/rtprelay/wire"
)

func writeFramed(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	_, err := conn.Write(hdr[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func readFramed(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var hdr [2]byte
	_, err := readFull(conn, hdr[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint16(hdr[:])
	buf := make([]byte, n)
	_, err = readFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readPacketPayload(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	frame := readFramed(t, conn)
	var p wire.Packet
	require.NoError(t, wire.Decode(frame, &p))
	return p.Payload
}

// startBroker runs a real msgserver.Server on an ephemeral port and
// returns its address, accepting every login.
func startBroker(t *testing.T, password []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	static := msgserver.DefaultStaticConfig()
	static.Workers = 1
	static.MaxPendingCount = 100
	srv := msgserver.New(static, msgserver.DefaultDynamicConfig(), password,
		func(req msgserver.CheckUserRequest) (msgserver.CheckUserResponse, bool) {
			return msgserver.CheckUserResponse{}, true
		}, stats.New())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx, ln)
	t.Cleanup(cancel)
	return ln.Addr().String()
}

// startRelay runs a Relay pointed at brokerAddr and returns its listen
// address once its uplink login has had time to complete.
func startRelay(t *testing.T, brokerAddr string, password []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	static := DefaultStaticConfig()
	static.Workers = 1
	static.MaxPendingCount = 100
	static.UplinkAddr = brokerAddr
	relay := New(static, DefaultDynamicConfig(), password, stats.New())

	ctx, cancel := context.WithCancel(context.Background())
	go relay.Start(ctx, ln)
	t.Cleanup(cancel)

	// Give the relay's uplink dial/handshake/login a moment to settle
	// before tests start dialing downstream clients against it.
	time.Sleep(200 * time.Millisecond)
	return ln.Addr().String()
}

func dialAndLogin(t *testing.T, addr string, password []byte, clientID string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	local := &wire.SessionInfo{SessionType: wire.SessionTCPEx, LocalVersion: 1}
	_, err = handshake.Initiate(conn, password, local)
	require.NoError(t, err)

	login := wire.EncodeControlFrame([]configline.Config{
		{Name: "op", Value: "client_login"},
		{Name: "client_index", Value: "1"},
		{Name: "client_id", Value: clientID},
		{Name: "hash", Value: ""},
		{Name: "nonce", Value: ""},
	})
	writeFramed(t, conn, (&wire.Packet{MmType: wire.MmTypeMsg, Payload: login}).Encode(nil))

	reply := readPacketPayload(t, conn)
	cfgs, err := configline.BufToConfigs(reply[1:])
	require.NoError(t, err)
	op, _ := configline.Lookup(cfgs, "op")
	require.Equal(t, "client_login_ok", op)

	return conn
}

func TestRelayLocalClientLogsInThroughUplink(t *testing.T) {
	password := []byte("secret")
	brokerAddr := startBroker(t, password)
	relayAddr := startRelay(t, brokerAddr, password)

	conn := dialAndLogin(t, relayAddr, password, "2-100-1")
	defer conn.Close()
}

func TestRelayRoutesMessageFromLocalClientToDirectBrokerClient(t *testing.T) {
	password := []byte("secret")
	brokerAddr := startBroker(t, password)
	relayAddr := startRelay(t, brokerAddr, password)

	// bob connects straight to the broker.
	bobConn := dialAndLogin(t, brokerAddr, password, "2-200-1")
	defer bobConn.Close()

	// alice connects through the relay.
	aliceConn := dialAndLogin(t, relayAddr, password, "2-100-1")
	defer aliceConn.Close()

	hdr := &wire.MessageHeader{
		SrcUser:  wire.RtpUser{ClassID: 2, UserID: 100, InstID: 1},
		DstUsers: []wire.RtpUser{{ClassID: 2, UserID: 200, InstID: 1}},
	}
	payload, err := wire.EncodeMessageFrame(hdr, []byte("hello bob"))
	require.NoError(t, err)
	writeFramed(t, aliceConn, (&wire.Packet{MmType: wire.MmTypeMsg, Payload: payload}).Encode(nil))

	bobConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	received := readPacketPayload(t, bobConn)
	_, gotHdr, gotBody, isControl, err := wire.DecodeMsgFrame(received)
	require.NoError(t, err)
	require.False(t, isControl)
	require.Equal(t, "hello bob", string(gotBody))
	require.Equal(t, hdr.SrcUser, gotHdr.SrcUser)
}

func TestRelayRoutesMessageFromDirectBrokerClientToLocalClient(t *testing.T) {
	password := []byte("secret")
	brokerAddr := startBroker(t, password)
	relayAddr := startRelay(t, brokerAddr, password)

	aliceConn := dialAndLogin(t, relayAddr, password, "2-100-1")
	defer aliceConn.Close()
	bobConn := dialAndLogin(t, brokerAddr, password, "2-200-1")
	defer bobConn.Close()

	hdr := &wire.MessageHeader{
		SrcUser:  wire.RtpUser{ClassID: 2, UserID: 200, InstID: 1},
		DstUsers: []wire.RtpUser{{ClassID: 2, UserID: 100, InstID: 1}},
	}
	payload, err := wire.EncodeMessageFrame(hdr, []byte("hello alice"))
	require.NoError(t, err)
	writeFramed(t, bobConn, (&wire.Packet{MmType: wire.MmTypeMsg, Payload: payload}).Encode(nil))

	aliceConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	received := readPacketPayload(t, aliceConn)
	_, gotHdr, gotBody, isControl, err := wire.DecodeMsgFrame(received)
	require.NoError(t, err)
	require.False(t, isControl)
	require.Equal(t, "hello alice", string(gotBody))
	require.Equal(t, hdr.SrcUser, gotHdr.SrcUser)
}

func TestRelayRejectsSpoofedSourceOnUpstreamMessage(t *testing.T) {
	password := []byte("secret")
	brokerAddr := startBroker(t, password)
	relayAddr := startRelay(t, brokerAddr, password)

	bobConn := dialAndLogin(t, brokerAddr, password, "2-200-1")
	defer bobConn.Close()
	aliceConn := dialAndLogin(t, relayAddr, password, "2-100-1")
	defer aliceConn.Close()

	// alice claims to be someone else; the relay must rewrite srcUser
	// back to alice's own subUser before forwarding upstream, so the
	// broker's anti-spoof check never sees the forged source.
	hdr := &wire.MessageHeader{
		SrcUser:  wire.RtpUser{ClassID: 2, UserID: 999, InstID: 1},
		DstUsers: []wire.RtpUser{{ClassID: 2, UserID: 200, InstID: 1}},
	}
	payload, err := wire.EncodeMessageFrame(hdr, []byte("spoofed"))
	require.NoError(t, err)
	writeFramed(t, aliceConn, (&wire.Packet{MmType: wire.MmTypeMsg, Payload: payload}).Encode(nil))

	bobConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	received := readPacketPayload(t, bobConn)
	_, gotHdr, _, _, err := wire.DecodeMsgFrame(received)
	require.NoError(t, err)
	require.Equal(t, wire.RtpUser{ClassID: 2, UserID: 100, InstID: 1}, gotHdr.SrcUser)
}
