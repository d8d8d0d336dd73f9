package bridge

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

const peerBinaryName = "lumen-encoder"

// launcher starts the peer encoder process and tracks it so shutdown can
// wait for a clean exit. Spawn failures are reported, never retried.
type launcher struct {
	cmd *exec.Cmd
}

// start locates the peer executable beside the current one, passes the
// negotiated geometry and codec as positional arguments and detaches it.
func (l *launcher) start(width, height uint32, codec string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("bridge: resolve own executable: %w", err)
	}
	name := peerBinaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	path := filepath.Join(filepath.Dir(self), name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("bridge: encoder executable not found at %s: %w", path, err)
	}

	cmd := exec.Command(path,
		strconv.FormatUint(uint64(width), 10),
		strconv.FormatUint(uint64(height), 10),
		codec,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("bridge: start encoder process: %w", err)
	}
	l.cmd = cmd
	logger.Debugf("encoder process started pid=%d", cmd.Process.Pid)
	return nil
}

func (l *launcher) started() bool {
	return l != nil && l.cmd != nil
}

// waitExit blocks up to the timeout for the peer to terminate. A peer that
// outlives the timeout is abandoned, not killed; local resources are
// released regardless.
func (l *launcher) waitExit(timeout time.Duration) {
	if !l.started() {
		return
	}
	done := make(chan error, 1)
	go func() { done <- l.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Debugf("encoder process exited: %v", err)
		}
	case <-time.After(timeout):
		logger.Warnf("encoder process did not exit within %s", timeout)
		l.cmd.Process.Release()
	}
	l.cmd = nil
}
