package encoder

import "testing"

func TestCapabilitiesListsBothPaths(t *testing.T) {
	caps := Capabilities("hevc")
	if len(caps) != 2 {
		t.Fatalf("got %d capabilities, want 2", len(caps))
	}
	if caps[0].Name != "encoder-bridge" || !caps[0].OutOfProcess {
		t.Fatalf("bridge capability malformed: %+v", caps[0])
	}
	if caps[0].Disabled == BridgeSupported() {
		t.Fatalf("bridge disabled flag contradicts platform probe")
	}
	if caps[1].Name != "libav-software" || caps[1].OutOfProcess {
		t.Fatalf("fallback capability malformed: %+v", caps[1])
	}
	for _, c := range caps {
		if c.Codec != "hevc" {
			t.Fatalf("capability %s lost the codec", c.Name)
		}
	}
}
