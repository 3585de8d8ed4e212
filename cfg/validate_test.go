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
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	c := GetDefaultConfig()
	c.Device.Path = "/dev/loop0"
	return c
}

func TestValidateConfig_Valid(t *testing.T) {
	c := validConfig()
	assert.NoError(t, ValidateConfig(&c))
}

func TestValidateConfig_MissingDevicePath(t *testing.T) {
	c := validConfig()
	c.Device.Path = ""
	assert.Error(t, ValidateConfig(&c))
}

func TestValidateConfig_BadBlockSize(t *testing.T) {
	c := validConfig()
	c.Device.BlockSize = 100
	assert.Error(t, ValidateConfig(&c))
}

func TestValidateConfig_AtomMinSizeExceedsMaxSize(t *testing.T) {
	c := validConfig()
	c.Atom.MinSize = c.Atom.MaxSize + 1
	assert.Error(t, ValidateConfig(&c))
}

func TestValidateConfig_NonPositiveAtomMaxAge(t *testing.T) {
	c := validConfig()
	c.Atom.MaxAge = 0
	assert.Error(t, ValidateConfig(&c))
}

func TestValidateConfig_NonPositiveScanMaxNodes(t *testing.T) {
	c := validConfig()
	c.Flush.ScanMaxNodes = 0
	assert.Error(t, ValidateConfig(&c))
}

func TestValidateConfig_BadLogRotate(t *testing.T) {
	c := validConfig()
	c.Logging.LogRotate.MaxFileSizeMb = 0
	assert.Error(t, ValidateConfig(&c))
}
