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

import "time"

// Default mount-option values (spec.md §6 Configurable Parameters).
const (
	DefaultBlockSize = 4096

	DefaultAtomMaxSize     = 65536
	DefaultAtomMaxAge      = 30 * time.Second
	DefaultAtomMinSize     = 256
	DefaultAtomMaxFlushers = 4

	DefaultCbkCacheSlots = 4096

	DefaultScanMaxNodes      = 8192
	DefaultRelocateThreshold = 32
	DefaultRelocateDistance  = uint64(64)
	DefaultWrittenThreshold  = 16
)
