// Copyright 2024 The reposit Authors
// This file is part of the reposit library.
//
// The reposit library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The reposit library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the reposit library. If not, see <http://www.gnu.org/licenses/>.

package repository

import (
	"os"

	"github.com/naoina/toml"
)

const (
	defaultBytesPerSec = 40 * 1024 * 1024 // 40 MiB/s
	defaultLegacyCutoff = 6               // versions below this use the legacy codec
	defaultMinVersion   = 1
	defaultCodecVersion = 7
)

// Config is the full set of a repository's tunables, loadable from TOML.
type Config struct {
	Name       string `toml:"name"`
	BasePath   string `toml:"base_path"`
	Compress   bool   `toml:"compress"`
	ChunkSize  int64  `toml:"chunk_size"` // 0 disables chunking

	MaxSnapshotBytesPerSec int `toml:"max_snapshot_bytes_per_sec"`
	MaxRestoreBytesPerSec  int `toml:"max_restore_bytes_per_sec"`

	ReadOnly bool `toml:"readonly"`

	// LegacyCutoff and the codec version bounds are policy inputs the
	// spec leaves to the caller; these are this repository's defaults.
	LegacyCutoff   uint32 `toml:"legacy_cutoff"`
	MinVersion     uint32 `toml:"min_version"`
	CurrentVersion uint32 `toml:"current_version"`
}

// DefaultConfig returns a Config with the documented defaults applied:
// 40 MiB/s for both rate limits, compression off, read-write.
func DefaultConfig() *Config {
	return &Config{
		MaxSnapshotBytesPerSec: defaultBytesPerSec,
		MaxRestoreBytesPerSec:  defaultBytesPerSec,
		LegacyCutoff:           defaultLegacyCutoff,
		MinVersion:             defaultMinVersion,
		CurrentVersion:         defaultCodecVersion,
	}
}

// LoadConfig reads and decodes a TOML configuration file, starting from
// DefaultConfig so an omitted field keeps its documented default rather
// than zeroing out.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
