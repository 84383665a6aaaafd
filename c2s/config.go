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

// Package c2s implements the client-to-server relay: it owns one
// uplink session to a message server and fans that link out to many
// downstream clients, each carried as a subUser of the relay's own
// C2S-port identity.
package c2s

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultMaxPendingCount is the task queue backpressure threshold,
// matching msgserver's own cap.
const DefaultMaxPendingCount = 5000

// StaticConfig holds the process-startup settings for a relay,
// following the same static/dynamic split as msgserver.StaticConfig.
type StaticConfig struct {
	ListenAddr      string
	UplinkAddr      string
	Workers         int
	MaxPendingCount int
	TLSCertPath     string
	TLSKeyPath      string
}

// DefaultStaticConfig returns the StaticConfig a bare cmd/c2srelay
// invocation should start from before flags are parsed.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		ListenAddr:      ":9901",
		UplinkAddr:      "127.0.0.1:9900",
		Workers:         4,
		MaxPendingCount: DefaultMaxPendingCount,
	}
}

// DynamicConfig holds the hot-reloadable half of a relay's
// configuration, mirroring msgserver.DynamicConfig.
type DynamicConfig struct {
	RedlineBytes      uint32   `yaml:"redline_bytes"`
	RedlineFrames     uint32   `yaml:"redline_frames"`
	HeartbeatInterval int      `yaml:"heartbeat_interval_sec"`
	StrictVideoStream bool     `yaml:"strict_video_stream"`
	AllowedSubnets    []string `yaml:"allowed_subnets"`
}

// DefaultDynamicConfig returns the DynamicConfig used before any file
// is successfully loaded.
func DefaultDynamicConfig() DynamicConfig {
	return DynamicConfig{
		RedlineBytes:      1024 * 1024,
		RedlineFrames:     10,
		HeartbeatInterval: 30,
	}
}

// ReadDynamicConfig reads and parses a DynamicConfig from path.
func ReadDynamicConfig(path string) (DynamicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DynamicConfig{}, fmt.Errorf("c2s: reading dynamic config: %w", err)
	}
	var cfg DynamicConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DynamicConfig{}, fmt.Errorf("c2s: parsing dynamic config: %w", err)
	}
	return cfg, nil
}

// Write serializes cfg back to path.
func (c DynamicConfig) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("c2s: marshaling dynamic config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
