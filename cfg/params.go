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

import (
	"github.com/reiser4/reiser4fs/flush"
	"github.com/reiser4/reiser4fs/txn"
)

// ToTxnParams converts the atom mount options into txn.Params.
func (c AtomConfig) ToTxnParams() txn.Params {
	return txn.Params{
		AtomMaxSize:     c.MaxSize,
		AtomMaxAge:      c.MaxAge,
		AtomMinSize:     c.MinSize,
		AtomMaxFlushers: c.MaxFlushers,
	}
}

// ToFlushParams converts the flush mount options into flush.Params.
func (c FlushConfig) ToFlushParams() flush.Params {
	return flush.Params{
		ScanMaxNodes:      c.ScanMaxNodes,
		RelocateThreshold: c.RelocateThreshold,
		RelocateDistance:  c.RelocateDistance,
		WrittenThreshold:  c.WrittenThreshold,
	}
}
