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
	"github.com/meshrelay/rtprelay/configline"
	"github.com/meshrelay/rtprelay/wire"
)

// decodeMessage, encodeMessage and encodeControl are thin aliases over
// wire's msg-frame codec, which the C2S relay shares -- both sides of
// a C2S link speak the same frame-kind-tagged convention.
func decodeMessage(payload []byte) ([]configline.Config, *wire.MessageHeader, []byte, bool, error) {
	return wire.DecodeMsgFrame(payload)
}

func encodeMessage(hdr *wire.MessageHeader, body []byte) ([]byte, error) {
	return wire.EncodeMessageFrame(hdr, body)
}

func encodeControl(cfgs []configline.Config) []byte {
	return wire.EncodeControlFrame(cfgs)
}
