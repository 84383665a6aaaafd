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

package configline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufToConfigsBasic(t *testing.T) {
	buf := []byte(`"rtp_port""3478"
"msg_port""3479"
`)
	cfgs, err := BufToConfigs(buf)
	require.NoError(t, err)
	require.Equal(t, []Config{
		{Name: "rtp_port", Value: "3478"},
		{Name: "msg_port", Value: "3479"},
	}, cfgs)
}

func TestBufToConfigsSkipsCommentsAndBlankLines(t *testing.T) {
	buf := []byte("# a comment\n\n; also a comment\n// and this\n\"k\"\"v\"\n")
	cfgs, err := BufToConfigs(buf)
	require.NoError(t, err)
	require.Equal(t, []Config{{Name: "k", Value: "v"}}, cfgs)
}

func TestBufToConfigsStripsBOM(t *testing.T) {
	buf := append([]byte("﻿"), []byte(`"a""b"`)...)
	cfgs, err := BufToConfigs(buf)
	require.NoError(t, err)
	require.Equal(t, []Config{{Name: "a", Value: "b"}}, cfgs)
}

func TestBufToConfigsEscapedQuotes(t *testing.T) {
	buf := []byte(`"name""va""""lue"` + "\n")
	cfgs, err := BufToConfigs(buf)
	require.NoError(t, err)
	require.Equal(t, `va""lue`, cfgs[0].Value)
}

func TestBufToConfigsRejectsMalformedLine(t *testing.T) {
	_, err := BufToConfigs([]byte(`"no_closing_quote`))
	require.Error(t, err)

	_, err = BufToConfigs([]byte(`"name" "value"` + "\n"))
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	cfgs := []Config{
		{Name: "a", Value: "1"},
		{Name: "quoted", Value: `has "quotes" inside`},
		{Name: "a", Value: "2"},
	}
	s := ConfigsToString(cfgs)
	got, err := BufToConfigs([]byte(s))
	require.NoError(t, err)
	require.Equal(t, cfgs, got)
}

func TestLookupReturnsLastOccurrence(t *testing.T) {
	cfgs := []Config{{Name: "a", Value: "1"}, {Name: "a", Value: "2"}}
	v, ok := Lookup(cfgs, "a")
	require.True(t, ok)
	require.Equal(t, "2", v)

	_, ok = Lookup(cfgs, "missing")
	require.False(t, ok)
}

func TestLookupAllPreservesOrder(t *testing.T) {
	cfgs := []Config{
		{Name: "list", Value: "x"},
		{Name: "other", Value: "y"},
		{Name: "list", Value: "z"},
	}
	require.Equal(t, []string{"x", "z"}, LookupAll(cfgs, "list"))
}
