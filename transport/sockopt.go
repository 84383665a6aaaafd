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

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// EnableDSCP marks outgoing packets on fd with the given DSCP value,
// setting IP_TOS or IPV6_TCLASS depending on whether localAddr is v4
// or v6. Media traffic is marked so routers between client and relay
// can prioritize it over best-effort traffic.
func EnableDSCP(fd int, localAddr net.IP, dscp int) error {
	if localAddr.To4() == nil {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, dscp<<2)
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, dscp<<2)
}

// EnableReusePort sets SO_REUSEPORT on fd so multiple worker
// goroutines can each bind their own listening socket to the same
// port, letting the kernel load-balance accepted connections across
// them instead of funneling everything through one accept loop.
func EnableReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
