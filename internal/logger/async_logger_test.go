// Copyright 2025 Google LLC
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

package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func setupTest(t *testing.T) (string, func()) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "async-logger-test-*")
	require.NoError(t, err)

	cleanup := func() {
		os.RemoveAll(tempDir)
	}

	return tempDir, cleanup
}

// captureStderr captures everything written to os.Stderr during f.
func captureStderr(f func()) string {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		os.Stderr = oldStderr
	}()

	f()
	w.Close()

	var stderrBuf bytes.Buffer
	io.Copy(&stderrBuf, r)
	r.Close()
	return stderrBuf.String()
}

func TestAsyncLogger_WriteAndClose(t *testing.T) {
	tempDir, cleanup := setupTest(t)
	defer cleanup()
	logPath := filepath.Join(tempDir, "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	asyncLogger := NewAsyncLogger(lj, 10)

	fmt.Fprintln(asyncLogger, "message 1")
	fmt.Fprintln(asyncLogger, "message 2")
	fmt.Fprintln(asyncLogger, "message 3")
	err := asyncLogger.Close()

	require.NoError(t, err)
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	expected := "message 1\nmessage 2\nmessage 3\n"
	assert.Equal(t, expected, string(content))
}

// blockingWriter never drains, so the channel behind AsyncLogger fills up
// and Write starts hitting its drop path deterministically.
type blockingWriter struct {
	block chan struct{}
}

func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.block
	return len(p), nil
}

func TestAsyncLogger_DropsMessageWhenBufferFull(t *testing.T) {
	bw := &blockingWriter{block: make(chan struct{})}
	asyncLogger := NewAsyncLogger(bw, 1)

	output := captureStderr(func() {
		for i := 0; i < 50; i++ {
			fmt.Fprintf(asyncLogger, "message %d\n", i)
		}
		close(bw.block)
		require.NoError(t, asyncLogger.Close())
	})

	assert.Contains(t, output, "asynclogger: log buffer is full, dropping message.")
}

func TestAsyncLogger_CloseIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	asyncLogger := NewAsyncLogger(&buf, 4)
	fmt.Fprintln(asyncLogger, "hello")
	require.NoError(t, asyncLogger.Close())
	require.NoError(t, asyncLogger.Close())
}
