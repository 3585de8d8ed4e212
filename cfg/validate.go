// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import "fmt"

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be atleast 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidDeviceConfig(c *DeviceConfig) error {
	if c.Path == "" {
		return fmt.Errorf("device path must be set")
	}
	if c.BlockSize <= 0 || c.BlockSize%512 != 0 {
		return fmt.Errorf("block-size must be a positive multiple of 512, got %d", c.BlockSize)
	}
	return nil
}

func isValidAtomConfig(c *AtomConfig) error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("atom-max-size must be positive")
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("atom-min-size must be between 0 and atom-max-size")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("atom-max-age must be positive")
	}
	if c.MaxFlushers <= 0 {
		return fmt.Errorf("atom-max-flushers must be positive")
	}
	return nil
}

func isValidFlushConfig(c *FlushConfig) error {
	if c.ScanMaxNodes <= 0 {
		return fmt.Errorf("scan-maxnodes must be positive")
	}
	if c.RelocateThreshold <= 0 {
		return fmt.Errorf("relocate-threshold must be positive")
	}
	if c.WrittenThreshold < 0 {
		return fmt.Errorf("written-threshold must not be negative")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidDeviceConfig(&config.Device); err != nil {
		return fmt.Errorf("error parsing device config: %w", err)
	}
	if err := isValidAtomConfig(&config.Atom); err != nil {
		return fmt.Errorf("error parsing atom config: %w", err)
	}
	if config.Tree.CbkCacheSlots < 0 {
		return fmt.Errorf("error parsing tree config: cbk-cache-slots must not be negative")
	}
	if err := isValidFlushConfig(&config.Flush); err != nil {
		return fmt.Errorf("error parsing flush config: %w", err)
	}
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}
	return nil
}
