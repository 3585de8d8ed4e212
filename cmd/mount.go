// Copyright 2024 Google LLC
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
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/kardianos/osext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/reiser4/reiser4fs/blockdev"
	"github.com/reiser4/reiser4fs/cfg"
	"github.com/reiser4/reiser4fs/daemon"
	"github.com/reiser4/reiser4fs/internal/logger"
	"github.com/reiser4/reiser4fs/metrics"
	"github.com/reiser4/reiser4fs/vfs"
)

var mountForeground bool

var mountCmd = &cobra.Command{
	Use:   "mount <device-path> <mount-point>",
	Short: "Mount an existing reiser4fs volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := preRunErrors(); err != nil {
			return err
		}
		if !mountForeground {
			return runDaemonized(args[0], args[1])
		}
		return runMount(args[0], args[1])
	},
}

func init() {
	mountCmd.Flags().BoolVar(&mountForeground, "foreground", false,
		"Run the mount in this process instead of forking a background daemon")
}

// runDaemonized re-execs the current binary with --foreground and waits for
// it to report a successful mount, the way the teacher's legacy_main.go
// backgrounds gcsfuse by default: the parent process never calls fuse.Mount
// itself, it only launches the child and relays the child's outcome.
func runDaemonized(devicePath, mountPoint string) error {
	path, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("osext.Executable: %w", err)
	}

	args := append([]string{"mount", "--foreground"}, os.Args[2:]...)

	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
	}
	if home, err := os.UserHomeDir(); err == nil {
		env = append(env, fmt.Sprintf("HOME=%s", home))
	}

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	fmt.Printf("mounted %s at %s\n", devicePath, mountPoint)
	return nil
}

// currentUserIDs returns the mounting process's uid/gid, the way
// perms.MyUserAndGroup does in the teacher's ambient stack, reimplemented
// directly against os/user since that package's own home moved with it.
func currentUserIDs() (uint32, uint32, error) {
	u, err := user.Current()
	if err != nil {
		return 0, 0, fmt.Errorf("user.Current: %w", err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing gid %q: %w", u.Gid, err)
	}
	return uint32(uid), uint32(gid), nil
}

func runMount(devicePath, mountPoint string) error {
	if err := logger.InitLogFile(MountConfig.Logging.ToLoggerConfig()); err != nil {
		return fmt.Errorf("init log file: %w", err)
	}

	blockSize := MountConfig.Device.BlockSize
	info, err := os.Stat(devicePath)
	if err != nil {
		return fmt.Errorf("stat device: %w", err)
	}
	nrBlocks := uint64(info.Size()) / uint64(blockSize)

	dev, err := blockdev.OpenFileDevice(devicePath, blockSize, nrBlocks)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}

	store, err := vfs.Open(dev, nrBlocks, 0,
		MountConfig.Atom.ToTxnParams(),
		MountConfig.Flush.ToFlushParams(),
		MountConfig.Tree.CbkCacheSlots)
	if err != nil {
		return fmt.Errorf("open volume: %w", err)
	}
	store.Metrics = metrics.NewHandle(prometheus.NewRegistry())

	uid, gid, err := currentUserIDs()
	if err != nil {
		return err
	}

	fs := vfs.NewFileSystem(store, uid, gid)
	server := vfs.NewServer(fs)

	mountCfg := &fuse.MountConfig{
		FSName:     "reiser4fs",
		Subtype:    "reiser4fs",
		VolumeName: "reiser4fs",
	}
	if MountConfig.Logging.Severity == cfg.TraceLogSeverity {
		mountCfg.DebugLogger = log.New(os.Stderr, "fuse_debug: ", 0)
	}

	sessionID := uuid.New().String()
	logger.Infof("mounting %s at %s (session %s)\n", devicePath, mountPoint, sessionID)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)

	// Tell whatever parent process daemonize.Run spawned us from how the
	// mount went; if we were invoked with --foreground directly (no
	// daemonize parent waiting), this has nobody to signal and errors
	// harmlessly, so it's logged rather than treated as fatal.
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		logger.Tracef("daemonize.SignalOutcome: %v\n", sigErr)
	}
	if err != nil {
		return fmt.Errorf("fuse.Mount: %w", err)
	}

	bg := daemon.New(store.Mgr, MountConfig.Atom.MaxAge/4, MountConfig.Atom.MaxFlushers)
	bg.OnForce(func(atomID uint64, err error) {
		if err != nil {
			logger.Errorf("background commit of atom %d failed: %v\n", atomID, err)
			return
		}
		logger.Tracef("background commit of atom %d done\n", atomID)
	})
	ctx, cancel := context.WithCancel(context.Background())
	go bg.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("received shutdown signal, unmounting %s\n", mountPoint)
		fuse.Unmount(mountPoint)
	}()

	err = mfs.Join(context.Background())
	cancel()
	bg.Stop()

	if closeErr := dev.Close(); err == nil {
		err = closeErr
	}
	return err
}
