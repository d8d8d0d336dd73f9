package stream

import "testing"

func TestManagerOpenLookupClose(t *testing.T) {
	t.Setenv("LUMEN_BRIDGE", "0")
	codec := &fakeCodec{}
	swapSeams(t, &fakeBridge{}, codec)

	manager := NewManager(testSettings())
	pipeline, err := manager.Open("primary", 640, 480, &captureSink{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if manager.Lookup("primary") != pipeline {
		t.Fatalf("lookup did not return the opened pipeline")
	}
	if manager.Lookup("absent") != nil {
		t.Fatalf("lookup invented a pipeline")
	}
	manager.Close("primary")
	if manager.Lookup("primary") != nil {
		t.Fatalf("closed stream still registered")
	}
	if pipeline.State() != StateClosed {
		t.Fatalf("close did not shut the pipeline down")
	}
}

func TestManagerOpenReplacesExisting(t *testing.T) {
	t.Setenv("LUMEN_BRIDGE", "0")
	swapSeams(t, &fakeBridge{}, &fakeCodec{})

	manager := NewManager(testSettings())
	first, err := manager.Open("primary", 640, 480, &captureSink{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := manager.Open("primary", 1280, 720, &captureSink{}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if first.State() != StateClosed {
		t.Fatalf("replaced pipeline not shut down")
	}
	if manager.Lookup("primary") != second {
		t.Fatalf("registry does not hold the replacement")
	}
	manager.CloseAll()
	if second.State() != StateClosed {
		t.Fatalf("CloseAll left a pipeline open")
	}
}

func TestManagerOpenRejectsEmptyID(t *testing.T) {
	manager := NewManager(testSettings())
	if _, err := manager.Open("", 640, 480, &captureSink{}, nil); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestManagerDescribe(t *testing.T) {
	t.Setenv("LUMEN_BRIDGE", "0")
	swapSeams(t, &fakeBridge{}, &fakeCodec{})

	manager := NewManager(testSettings())
	if manager.Describe("absent") != nil {
		t.Fatalf("describe of unknown stream should be nil")
	}
	pipeline, err := manager.Open("primary", 640, 480, &captureSink{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer manager.CloseAll()

	surface := &fakeSurface{width: 640, height: 480, pitch: 640 * 4, format: 0}
	for i := 0; i < 3; i++ {
		if err := pipeline.SubmitFrame(surface, uint64(i), uint64(i), i == 0); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	info := manager.Describe("primary")
	if info["state"] != StateFallbackActive.String() {
		t.Fatalf("state = %v", info["state"])
	}
	if info["frames"] != uint64(3) || info["packets"] != uint64(3) || info["keyframes"] != uint64(1) {
		t.Fatalf("counters wrong: %+v", info)
	}
}
