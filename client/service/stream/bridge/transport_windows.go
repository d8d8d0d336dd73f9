//go:build windows

package bridge

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// On Windows the region is a named pagefile-backed file mapping and each
// signal is a named auto-reset event, so handles disappear with the owning
// processes and never go stale on disk.

func newTransport(channel string, owner bool) (*Transport, error) {
	regionName, err := windows.UTF16PtrFromString(channel)
	if err != nil {
		return nil, fmt.Errorf("bridge: region name: %w", err)
	}

	t := &Transport{}
	ok := false
	defer func() {
		if !ok {
			t.Close()
		}
	}()

	var mapping windows.Handle
	if owner {
		if existing, err := windows.OpenFileMapping(windows.FILE_MAP_READ, false, regionName); err == nil {
			windows.CloseHandle(existing)
			return nil, ErrRegionExists
		}
		mapping, err = windows.CreateFileMapping(
			windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(RegionSize), regionName)
		if err != nil {
			return nil, fmt.Errorf("bridge: create shared region: %w", err)
		}
	} else {
		mapping, err = windows.OpenFileMapping(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, false, regionName)
		if err != nil {
			return nil, ErrRegionMissing
		}
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, 0)
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, fmt.Errorf("bridge: map shared region: %w", err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), RegionSize)
	t.region = region{data: data}
	t.releaseRegion = func() error {
		err := windows.UnmapViewOfFile(addr)
		windows.CloseHandle(mapping)
		return err
	}

	frameName, packetName, readyName := signalNames(channel)
	if t.frameReady, err = openEvent(frameName, owner); err != nil {
		return nil, err
	}
	if t.packetReady, err = openEvent(packetName, owner); err != nil {
		return nil, err
	}
	if t.ready, err = openEvent(readyName, owner); err != nil {
		return nil, err
	}
	ok = true
	return t, nil
}

// Unlink is a no-op on Windows: named kernel objects vanish with the last
// handle, so there is nothing stale to remove.
func Unlink(channel string) {}

type eventSignal struct {
	handle windows.Handle
}

func openEvent(name string, owner bool) (*eventSignal, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("bridge: signal name %s: %w", name, err)
	}
	var handle windows.Handle
	if owner {
		// Auto-reset, initially unset.
		handle, err = windows.CreateEvent(nil, 0, 0, namePtr)
	} else {
		handle, err = windows.OpenEvent(windows.EVENT_MODIFY_STATE|windows.SYNCHRONIZE, false, namePtr)
	}
	if err != nil {
		if !owner {
			return nil, ErrRegionMissing
		}
		return nil, fmt.Errorf("bridge: create signal %s: %w", name, err)
	}
	return &eventSignal{handle: handle}, nil
}

func (s *eventSignal) Set() error {
	return windows.SetEvent(s.handle)
}

func (s *eventSignal) Wait(timeout time.Duration) (bool, error) {
	ms := uint32(windows.INFINITE)
	if timeout > 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	event, err := windows.WaitForSingleObject(s.handle, ms)
	switch event {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case uint32(windows.WAIT_TIMEOUT):
		return false, nil
	default:
		return false, fmt.Errorf("bridge: wait failed: %w", err)
	}
}

func (s *eventSignal) Close() error {
	if s == nil || s.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(s.handle)
	s.handle = 0
	return err
}
