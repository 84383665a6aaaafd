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

package wire

import (
	"fmt"

	"github.com/meshrelay/rtprelay/configline"
)

// Every packet carried on a msg-type session starts
// with one of these frame kind tags, the convention both the message
// server and the C2S relay speak so a control request and a routed
// message can share the same MmTypeMsg channel.
const (
	FrameKindControl byte = 0
	FrameKindMessage byte = 1
)

// DecodeMsgFrame splits a received msg-type payload into either a
// control frame (cfgs) or a routed message (hdr, body).
func DecodeMsgFrame(payload []byte) (cfgs []configline.Config, hdr *MessageHeader, body []byte, isControl bool, err error) {
	if len(payload) < 1 {
		return nil, nil, nil, false, fmt.Errorf("wire: empty msg frame")
	}
	switch payload[0] {
	case FrameKindControl:
		cfgs, err = configline.BufToConfigs(payload[1:])
		if err != nil {
			return nil, nil, nil, false, err
		}
		return cfgs, nil, nil, true, nil
	case FrameKindMessage:
		var h MessageHeader
		n, err := h.Unmarshal(payload[1:])
		if err != nil {
			return nil, nil, nil, false, err
		}
		return nil, &h, payload[1+n:], false, nil
	default:
		return nil, nil, nil, false, fmt.Errorf("wire: unknown msg frame kind %d", payload[0])
	}
}

// EncodeMessageFrame renders hdr and body into a FrameKindMessage
// payload, ready for Wrapper.SendPacket.
func EncodeMessageFrame(hdr *MessageHeader, body []byte) ([]byte, error) {
	out := make([]byte, 0, 1+hdr.Size()+len(body))
	out = append(out, FrameKindMessage)
	out, err := hdr.Marshal(out)
	if err != nil {
		return nil, err
	}
	out = append(out, body...)
	return out, nil
}

// EncodeControlFrame renders cfgs into a FrameKindControl payload.
func EncodeControlFrame(cfgs []configline.Config) []byte {
	out := []byte{FrameKindControl}
	return append(out, configline.ConfigsToString(cfgs)...)
}
