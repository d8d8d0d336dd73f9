//go:build !windows

package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// On POSIX hosts the region is a file under /dev/shm (tmpfs) mapped
// MAP_SHARED, and each named signal is a FIFO: a one byte write sets the
// signal, a deadline read waits for it.

func newTransport(channel string, owner bool) (*Transport, error) {
	regionPath := filepath.Join(shmDir(), channel)
	frameName, packetName, readyName := signalNames(channel)

	t := &Transport{}
	ok := false
	defer func() {
		if !ok {
			t.Close()
		}
	}()

	flags := os.O_RDWR
	if owner {
		flags |= os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(regionPath, flags, 0o600)
	if err != nil {
		if owner && os.IsExist(err) {
			return nil, ErrRegionExists
		}
		if !owner && os.IsNotExist(err) {
			return nil, ErrRegionMissing
		}
		return nil, fmt.Errorf("bridge: open shared region: %w", err)
	}
	if owner {
		if err := f.Truncate(RegionSize); err != nil {
			f.Close()
			os.Remove(regionPath)
			return nil, fmt.Errorf("bridge: size shared region: %w", err)
		}
	} else if info, err := f.Stat(); err != nil || info.Size() < RegionSize {
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("bridge: stat shared region: %w", err)
		}
		return nil, fmt.Errorf("bridge: shared region truncated (%d bytes)", info.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	f.Close()
	if err != nil {
		if owner {
			os.Remove(regionPath)
		}
		return nil, fmt.Errorf("bridge: map shared region: %w", err)
	}
	t.region = region{data: data}
	t.releaseRegion = func() error {
		err := unix.Munmap(data)
		if owner {
			os.Remove(regionPath)
		}
		return err
	}

	if t.frameReady, err = openFIFO(frameName, owner); err != nil {
		return nil, err
	}
	if t.packetReady, err = openFIFO(packetName, owner); err != nil {
		return nil, err
	}
	if t.ready, err = openFIFO(readyName, owner); err != nil {
		return nil, err
	}
	ok = true
	return t, nil
}

// Unlink removes any named resources a crashed owner may have left behind.
func Unlink(channel string) {
	os.Remove(filepath.Join(shmDir(), channel))
	frameName, packetName, readyName := signalNames(channel)
	for _, name := range []string{frameName, packetName, readyName} {
		os.Remove(filepath.Join(shmDir(), name))
	}
}

type fifoSignal struct {
	file  *os.File
	path  string
	owner bool
}

func openFIFO(name string, owner bool) (*fifoSignal, error) {
	path := filepath.Join(shmDir(), name)
	if owner {
		if err := unix.Mkfifo(path, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("bridge: create signal %s: %w", name, err)
		}
	} else if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRegionMissing
		}
		return nil, fmt.Errorf("bridge: open signal %s: %w", name, err)
	}
	// O_RDWR keeps the FIFO open without blocking on the peer and lets the
	// same handle both set and (on the consuming side) await the signal.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("bridge: open signal %s: %w", name, err)
	}
	return &fifoSignal{file: f, path: path, owner: owner}, nil
}

func (s *fifoSignal) Set() error {
	_, err := s.file.Write([]byte{1})
	return err
}

func (s *fifoSignal) Wait(timeout time.Duration) (bool, error) {
	if timeout > 0 {
		if err := s.file.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return false, err
		}
	} else if err := s.file.SetReadDeadline(time.Time{}); err != nil {
		return false, err
	}
	// Reading a small chunk drains back-to-back sets so they behave like a
	// single wake, matching auto-reset event semantics closely enough for a
	// single-slot mailbox.
	var buf [16]byte
	n, err := s.file.Read(buf[:])
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func (s *fifoSignal) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if s.owner {
		os.Remove(s.path)
	}
	return err
}

func shmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}
