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

// Package msgserver implements the identity-routing message server:
// it accepts TCP_EX/SSL_EX sessions from clients, learns
// which (classId,userId,instId) identities each session speaks for,
// and relays messages between them.
package msgserver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// StaticConfig holds the process-startup settings that require a
// restart to change, populated from command-line flags by cmd/msgserver.
type StaticConfig struct {
	ListenAddr      string
	Workers         int
	MaxPendingCount int
	TLSCertPath     string
	TLSKeyPath      string
}

// DefaultMaxPendingCount is the task queue backpressure threshold.
const DefaultMaxPendingCount = 5000

// DefaultStaticConfig returns the StaticConfig a bare cmd/msgserver
// invocation should start from before flags are parsed.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		ListenAddr:      ":9900",
		Workers:         4,
		MaxPendingCount: DefaultMaxPendingCount,
	}
}

// DynamicConfig holds the settings a running server can reload without
// restarting: bucket redlines, heartbeat cadence and a list of allowed
// subnets. AllowedSubnets is read and written with the rest of the
// file, but no connection is filtered by it. This mirrors ptp4u/server.DynamicConfig's
// read-yaml/write-yaml/hot-swap pattern exactly, just with different
// fields.
type DynamicConfig struct {
	RedlineBytes      uint32   `yaml:"redline_bytes"`
	RedlineFrames     uint32   `yaml:"redline_frames"`
	HeartbeatInterval int      `yaml:"heartbeat_interval_sec"`
	StrictVideoStream bool     `yaml:"strict_video_stream"`
	AllowedSubnets    []string `yaml:"allowed_subnets"`
}

// DefaultDynamicConfig returns the DynamicConfig used when no file is
// supplied or reload fails before the first successful read.
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
		return DynamicConfig{}, fmt.Errorf("msgserver: reading dynamic config: %w", err)
	}
	var cfg DynamicConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DynamicConfig{}, fmt.Errorf("msgserver: parsing dynamic config: %w", err)
	}
	return cfg, nil
}

// Write serializes cfg back to path, used by tooling that edits
// redlines or subnet ACLs programmatically.
func (c DynamicConfig) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("msgserver: marshaling dynamic config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
