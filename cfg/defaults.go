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

// GetDefaultLoggingConfig returns the logging defaults used before a mount
// option or config file is parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Format:   "text",
		Severity: InfoLogSeverity,
		LogRotate: LogRotateLoggingConfig{
			BackupFileCount: 10,
			Compress:        false,
			MaxFileSizeMb:   512,
		},
	}
}

// GetDefaultConfig returns a Config with every field at its documented
// default, suitable for a `mount` invocation that overrides only what it
// needs to via flags or a config file.
func GetDefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			BlockSize: DefaultBlockSize,
		},
		Atom: AtomConfig{
			MaxSize:     DefaultAtomMaxSize,
			MaxAge:      DefaultAtomMaxAge,
			MinSize:     DefaultAtomMinSize,
			MaxFlushers: DefaultAtomMaxFlushers,
		},
		Tree: TreeConfig{
			CbkCacheSlots: DefaultCbkCacheSlots,
		},
		Flush: FlushConfig{
			ScanMaxNodes:      DefaultScanMaxNodes,
			RelocateThreshold: DefaultRelocateThreshold,
			RelocateDistance:  DefaultRelocateDistance,
			WrittenThreshold:  DefaultWrittenThreshold,
		},
		Logging: GetDefaultLoggingConfig(),
	}
}
