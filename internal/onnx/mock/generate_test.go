package mock

import (
	"testing"
)

func TestNewUniformMap(t *testing.T) {
	m := NewUniformMap(10, 5, 1.7)
	if m.Width != 10 || m.Height != 5 {
		t.Fatalf("unexpected size: %dx%d", m.Width, m.Height)
	}
	if len(m.Data) != 50 {
		t.Fatalf("unexpected data len: %d", len(m.Data))
	}
	for _, v := range m.Data {
		if v != 1 {
			t.Fatalf("value not clamped: %f", v)
		}
	}
	if s := m.Shape(); s[2] != 5 || s[3] != 10 {
		t.Fatalf("bad shape: %v", s)
	}
	if e := NewUniformMap(0, 3, 0.5); e.Data != nil {
		t.Fatalf("expected empty map")
	}
}

func TestNewCenteredBlobMap(t *testing.T) {
	m := NewCenteredBlobMap(9, 7, 1.0, 2.0)
	if len(m.Data) != m.Width*m.Height || m.Width != 9 || m.Height != 7 {
		t.Fatalf("unexpected shape or len")
	}
	cx := m.Width / 2
	cy := m.Height / 2
	center := m.Data[cy*m.Width+cx]
	for i, v := range m.Data {
		if v > center+1e-6 {
			t.Fatalf("index %d > center: %f > %f", i, v, center)
		}
		if v < 0 || v > 1 {
			t.Fatalf("out of [0,1]: %f", v)
		}
	}
}

func TestNewSCRFDOutputs(t *testing.T) {
	out := NewSCRFDOutputs(640, []AnchorHit{
		{Stride: 16, Col: 3, Row: 2, Anchor: 1, Score: 0.9, Dist: [4]float32{1, 2, 3, 4}},
		{Stride: 7, Score: 1},
	})
	if len(out) != 9 {
		t.Fatalf("want 9 outputs, got %d", len(out))
	}
	if len(out[0]) != 80*80*2 || len(out[3]) != 80*80*2*4 || len(out[8]) != 20*20*2*10 {
		t.Fatalf("unexpected output sizes")
	}
	idx := (2*40+3)*2 + 1
	if out[1][idx] != 0.9 {
		t.Fatalf("score not placed at %d", idx)
	}
	if out[4][idx*4+3] != 4 {
		t.Fatalf("box not placed")
	}
}

func TestNewLandmarkOutput(t *testing.T) {
	out := NewLandmarkOutput([][2]float32{{0, 96}, {192, 48}}, 192)
	want := []float32{-1, 0, 1, -0.5}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("index %d: want %f got %f", i, want[i], out[i])
		}
	}
}
