// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ProfileFormat selects the profile parser.
type ProfileFormat string

const (
	ProfileFormatYAML  ProfileFormat = "yaml"
	ProfileFormatJSONC ProfileFormat = "jsonc"
)

// FormatFromPath picks the parser from a file extension: .json and .jsonc
// are JSONC, everything else is YAML.
func FormatFromPath(path string) ProfileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return ProfileFormatJSONC
	default:
		return ProfileFormatYAML
	}
}

// ParseProfile decodes a profile. Unknown keys are errors in both formats
// so a misspelt field never silently widens a sandbox.
func ParseProfile(data []byte, format ProfileFormat) (*Profile, error) {
	var profile Profile
	switch format {
	case ProfileFormatJSONC:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&profile); err != nil {
			return nil, fmt.Errorf("parsing profile: %w", err)
		}
	case ProfileFormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&profile); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing profile: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown profile format %q", format)
	}
	return &profile, nil
}

// LoadProfile reads and parses a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	profile, err := ParseProfile(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return profile, nil
}
