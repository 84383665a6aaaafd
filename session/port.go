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
	"fmt"
	"net"
)

// MaxPortReservationAttempts bounds the even/odd port pairing retry
// loop.
const MaxPortReservationAttempts = 100

// PortPair is a reserved adjacent even/odd UDP port pair: even carries
// media, odd is held open (never read from) purely to keep the OS from
// handing the adjacent port to an unrelated listener, the same
// RTP/RTCP-style pairing convention the original TCP server neighbors
// used for its dummy reservation.
type PortPair struct {
	evenConn *net.UDPConn
	oddConn  *net.UDPConn
}

// EvenPort returns the reserved media port.
func (p *PortPair) EvenPort() int { return p.evenConn.LocalAddr().(*net.UDPAddr).Port }

// OddPort returns the reserved (unused) pairing port.
func (p *PortPair) OddPort() int { return p.oddConn.LocalAddr().(*net.UDPAddr).Port }

// EvenConn returns the UDP socket bound to the even port, ready for
// the caller to wrap in a transport.
func (p *PortPair) EvenConn() *net.UDPConn { return p.evenConn }

// Release closes both reserved sockets.
func (p *PortPair) Release() {
	if p.evenConn != nil {
		_ = p.evenConn.Close()
	}
	if p.oddConn != nil {
		_ = p.oddConn.Close()
	}
}

// ReservePortPair binds an even UDP port and its following odd port on
// ip, retrying up to MaxPortReservationAttempts times when the kernel
// hands back an odd starting port or the paired port is already taken.
// A half-successful attempt (even bound, odd refused) releases the
// even port before retrying, so failed attempts never leak sockets.
func ReservePortPair(ip net.IP) (*PortPair, error) {
	var lastErr error
	for attempt := 0; attempt < MaxPortReservationAttempts; attempt++ {
		evenConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: 0})
		if err != nil {
			lastErr = err
			continue
		}
		evenPort := evenConn.LocalAddr().(*net.UDPAddr).Port
		if evenPort%2 != 0 {
			// The kernel gave us an odd port; release it and retry
			// with a fresh kernel-chosen port.
			evenConn.Close()
			continue
		}

		oddConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: evenPort + 1})
		if err != nil {
			evenConn.Close()
			lastErr = err
			continue
		}

		return &PortPair{evenConn: evenConn, oddConn: oddConn}, nil
	}
	return nil, fmt.Errorf("session: could not reserve an even/odd port pair after %d attempts: %w", MaxPortReservationAttempts, lastErr)
}
