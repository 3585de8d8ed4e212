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

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlags_DefaultsRoundTrip(t *testing.T) {
	viper.Reset()
	flagSet := pflag.NewFlagSet("reiser4fs", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))
	require.NoError(t, flagSet.Parse([]string{"--device=/dev/loop0", "--atom-max-size=128"}))

	assert.Equal(t, "/dev/loop0", viper.GetString("device.path"))
	assert.Equal(t, 128, viper.GetInt("atom.max-size"))
	assert.Equal(t, DefaultBlockSize, viper.GetInt("device.block-size"))
}

func TestToLoggerConfig(t *testing.T) {
	lc := GetDefaultLoggingConfig()
	out := lc.ToLoggerConfig()
	assert.Equal(t, string(InfoLogSeverity), out.Severity)
	assert.Equal(t, lc.LogRotate.MaxFileSizeMb, out.LogRotateConfig.MaxFileSizeMB)
}

func TestToTxnAndFlushParams(t *testing.T) {
	c := GetDefaultConfig()
	txnParams := c.Atom.ToTxnParams()
	assert.Equal(t, c.Atom.MaxSize, txnParams.AtomMaxSize)
	assert.Equal(t, c.Atom.MaxAge, txnParams.AtomMaxAge)

	flushParams := c.Flush.ToFlushParams()
	assert.Equal(t, c.Flush.RelocateThreshold, flushParams.RelocateThreshold)
	assert.Equal(t, c.Flush.RelocateDistance, flushParams.RelocateDistance)
}
