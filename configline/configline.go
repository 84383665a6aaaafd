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

// Package configline parses the line-oriented "name""value" config
// format. No off-the-shelf library models this particular
// quoted-pair-per-line grammar, so this package is hand
// rolled against the standard library, unlike the YAML-backed dynamic
// config which reuses gopkg.in/yaml.v2 (see msgserver.DynamicConfig).
package configline

import (
	"fmt"
	"strings"
)

// Config is one parsed "name""value" line.
type Config struct {
	Name  string
	Value string
}

// BufToConfigs parses buf into a sequence of Config entries. Lines may
// be separated by '\n' or "\r\n". A leading UTF-8 BOM on the buffer is
// tolerated and stripped. A line whose first non-whitespace rune is
// '#', ';' or "//" is a comment and produces no entry. Blank lines are
// skipped. Repeated names are preserved in order (list semantics): the
// caller decides whether later occurrences override or accumulate.
func BufToConfigs(buf []byte) ([]Config, error) {
	s := strings.TrimPrefix(string(buf), "﻿")
	lines := strings.Split(s, "\n")

	var out []Config
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		cfg, err := parseLine(trimmed)
		if err != nil {
			return nil, fmt.Errorf("configline: line %d: %w", i+1, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// parseLine parses a single `"name""value"` line. Both name and value
// must be double-quoted; a double quote inside either is escaped as
// two consecutive double quotes, matching the original config_file.cpp
// grammar.
func parseLine(line string) (Config, error) {
	name, rest, err := readQuoted(line)
	if err != nil {
		return Config{}, fmt.Errorf("name: %w", err)
	}
	value, rest, err := readQuoted(rest)
	if err != nil {
		return Config{}, fmt.Errorf("value: %w", err)
	}
	if strings.TrimSpace(rest) != "" {
		return Config{}, fmt.Errorf("trailing characters after value: %q", rest)
	}
	return Config{Name: name, Value: value}, nil
}

// readQuoted reads one `"..."` token from the front of s, unescaping
// doubled quotes, and returns the token plus the remainder of s.
func readQuoted(s string) (token string, remainder string, err error) {
	if len(s) == 0 || s[0] != '"' {
		return "", s, fmt.Errorf("expected opening quote, got %q", s)
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		if s[i] == '"' {
			if i+1 < len(s) && s[i+1] == '"' {
				b.WriteByte('"')
				i += 2
				continue
			}
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(s[i])
		i++
	}
	return "", s, fmt.Errorf("unterminated quoted token")
}

// ConfigsToString renders configs back to the "name""value" line
// format, one entry per line, escaping embedded quotes. Applying
// BufToConfigs to the result reproduces configs exactly (the round
// trip law the format is designed around).
func ConfigsToString(configs []Config) string {
	var b strings.Builder
	for _, c := range configs {
		b.WriteString(quote(c.Name))
		b.WriteString(quote(c.Value))
		b.WriteByte('\n')
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Lookup returns the value of the last entry named name, matching the
// original format's override-by-last-occurrence convention for
// scalar settings.
func Lookup(configs []Config, name string) (string, bool) {
	val, ok := "", false
	for _, c := range configs {
		if c.Name == name {
			val, ok = c.Value, true
		}
	}
	return val, ok
}

// LookupAll returns the values of every entry named name, in file
// order, for settings that repeat to form a list.
func LookupAll(configs []Config, name string) []string {
	var out []string
	for _, c := range configs {
		if c.Name == name {
			out = append(out, c.Value)
		}
	}
	return out
}
