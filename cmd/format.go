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

package cmd

import (
	"fmt"
	"os"

	"github.com/reiser4/reiser4fs/blockdev"
	"github.com/reiser4/reiser4fs/vfs"
	"github.com/spf13/cobra"
)

var formatSizeBytes int64

var formatCmd = &cobra.Command{
	Use:   "format <device-path>",
	Short: "Initialize a new reiser4fs volume on a backing file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := preRunErrors(); err != nil {
			return err
		}
		if formatSizeBytes <= 0 {
			return fmt.Errorf("--size must be positive")
		}
		return runFormat(args[0], formatSizeBytes)
	},
}

func init() {
	formatCmd.Flags().Int64Var(&formatSizeBytes, "size", 0, "Total size in bytes of the new volume (required)")
}

func runFormat(path string, sizeBytes int64) error {
	blockSize := MountConfig.Device.BlockSize
	nrBlocks := uint64(sizeBytes) / uint64(blockSize)
	if nrBlocks < 16 {
		return fmt.Errorf("volume too small: need at least 16 blocks of %d bytes", blockSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create backing file: %w", err)
	}
	if err := f.Truncate(sizeBytes); err != nil {
		f.Close()
		return fmt.Errorf("truncate backing file: %w", err)
	}
	f.Close()

	dev, err := blockdev.OpenFileDevice(path, blockSize, nrBlocks)
	if err != nil {
		return fmt.Errorf("open backing file as device: %w", err)
	}

	_, err = vfs.Format(dev, nrBlocks, 0,
		MountConfig.Atom.ToTxnParams(),
		MountConfig.Flush.ToFlushParams(),
		MountConfig.Tree.CbkCacheSlots)
	if closeErr := dev.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	fmt.Printf("formatted %s: %d blocks of %d bytes (%d bytes total)\n", path, nrBlocks, blockSize, sizeBytes)
	return nil
}
