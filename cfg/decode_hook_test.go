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
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHook_LogSeverity(t *testing.T) {
	var out struct {
		Severity LogSeverity `mapstructure:"severity"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	require.NoError(t, dec.Decode(map[string]any{"severity": "warning"}))
	assert.Equal(t, WarningLogSeverity, out.Severity)
}

func TestDecodeHook_RejectsUnknownSeverity(t *testing.T) {
	var out struct {
		Severity LogSeverity `mapstructure:"severity"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	assert.Error(t, dec.Decode(map[string]any{"severity": "CHATTY"}))
}

func TestDecodeHook_Duration(t *testing.T) {
	var out struct {
		MaxAge time.Duration `mapstructure:"max-age"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	require.NoError(t, dec.Decode(map[string]any{"max-age": "45s"}))
	assert.Equal(t, 45*time.Second, out.MaxAge)
}
