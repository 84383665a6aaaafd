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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecvPoolAppendPeekFlush(t *testing.T) {
	var p RecvPool
	p.Append([]byte("hello"))
	p.Append([]byte("world"))
	require.Equal(t, 10, p.DataSize())
	require.Equal(t, []byte("hellowor"), p.Peek(8))

	p.Flush(5)
	require.Equal(t, 5, p.DataSize())
	require.Equal(t, []byte("world"), p.Peek(10))
}

func TestRecvPoolCompactsAfterHeavyConsumption(t *testing.T) {
	var p RecvPool
	big := make([]byte, 1<<17)
	p.Append(big)
	p.Flush(1 << 16)
	p.Append([]byte("tail"))
	require.Equal(t, len(big)-(1<<16)+4, p.DataSize())
}

func TestRecvPoolResetClears(t *testing.T) {
	var p RecvPool
	p.Append([]byte("data"))
	p.Reset()
	require.Equal(t, 0, p.DataSize())
}
