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

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/blockdev"
	"github.com/reiser4/reiser4fs/wander"
	"github.com/spf13/cobra"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck <device-path>",
	Short: "Replay a volume's wandering log and report what recovery found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := preRunErrors(); err != nil {
			return err
		}
		return runFsck(args[0])
	},
}

// journalHeaderAddr/journalFooterAddr duplicate vfs's unexported reserved
// addresses: fsck opens the device directly, without going through
// vfs.Open, since its whole point is to inspect what recovery would do
// rather than build a mountable Store around it.
const (
	journalHeaderAddr block.Addr = 0
	journalFooterAddr block.Addr = 1
)

func runFsck(path string) error {
	blockSize := MountConfig.Device.BlockSize
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat device: %w", err)
	}
	nrBlocks := uint64(info.Size()) / uint64(blockSize)

	dev, err := blockdev.OpenFileDevice(path, blockSize, nrBlocks)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	sb, err := wander.Recover(dev, journalHeaderAddr, journalFooterAddr)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	fmt.Printf("%s: recovery complete\n", path)
	fmt.Printf("  free blocks:   %d\n", sb.FreeBlocks)
	fmt.Printf("  file count:    %d\n", sb.NrFiles)
	fmt.Printf("  next object id: %d\n", sb.NextOID)
	return nil
}
