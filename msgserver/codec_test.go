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

	"github.com/meshrelay/rtprelay/configline"
	"github.com/meshrelay/rtprelay/wire"
)

func TestDecodeControlFrame(t *testing.T) {
	payload := encodeControl([]configline.Config{
		{Name: "op", Value: "client_login"},
		{Name: "user", Value: "2-100-1"},
	})

	cfgs, hdr, body, isControl, err := decodeMessage(payload)
	require.NoError(t, err)
	require.True(t, isControl)
	require.Nil(t, hdr)
	require.Nil(t, body)

	op, ok := configline.Lookup(cfgs, "op")
	require.True(t, ok)
	require.Equal(t, "client_login", op)
}

func TestEncodeDecodeMessageFrameRoundTrip(t *testing.T) {
	hdr := &wire.MessageHeader{
		SrcUser:  user(2, 100, 1),
		DstUsers: []wire.RtpUser{user(2, 200, 1)},
	}
	body := []byte("hello")

	payload, err := encodeMessage(hdr, body)
	require.NoError(t, err)

	cfgs, decodedHdr, decodedBody, isControl, err := decodeMessage(payload)
	require.NoError(t, err)
	require.False(t, isControl)
	require.Nil(t, cfgs)
	require.Equal(t, hdr.SrcUser, decodedHdr.SrcUser)
	require.Equal(t, hdr.DstUsers, decodedHdr.DstUsers)
	require.Equal(t, body, decodedBody)
}

func TestDecodeMessageRejectsEmptyPayload(t *testing.T) {
	_, _, _, _, err := decodeMessage(nil)
	require.Error(t, err)
}

func TestDecodeMessageRejectsUnknownFrameKind(t *testing.T) {
	_, _, _, _, err := decodeMessage([]byte{0xff})
	require.Error(t, err)
}
