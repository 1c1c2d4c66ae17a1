package vpx

import "testing"

func TestEncodeRealtime(t *testing.T) {
	e, err := New(64, 48, WithKeyframeInterval(2))
	if err != nil {
		t.Fatalf("init fail: %v", err)
	}
	defer func() { _ = e.Close() }()

	frame := make([]byte, 64*48*3/2)
	for i := 0; i < 4; i++ {
		out := e.Encode(frame)
		if len(out) == 0 {
			t.Fatalf("no output for frame %d", i)
		}
	}
}
