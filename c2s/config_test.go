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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDynamicConfigWriteReadRoundTrip(t *testing.T) {
	cfg := DefaultDynamicConfig()
	cfg.StrictVideoStream = true
	cfg.AllowedSubnets = []string{"10.0.0.0/8"}

	path := filepath.Join(t.TempDir(), "dynamic.yaml")
	require.NoError(t, cfg.Write(path))

	got, err := ReadDynamicConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestReadDynamicConfigMissingFile(t *testing.T) {
	_, err := ReadDynamicConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefaultStaticConfig(t *testing.T) {
	cfg := DefaultStaticConfig()
	require.Equal(t, DefaultMaxPendingCount, cfg.MaxPendingCount)
	require.Greater(t, cfg.Workers, 0)
	require.NotEmpty(t, cfg.UplinkAddr)
}
