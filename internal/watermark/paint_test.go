package watermark

import (
	"math"
	"testing"

	"gocv.io/x/gocv"
)

func TestPaintPoint(t *testing.T) {
	m := NewMask(100, 100)
	defer m.Close()
	noErr(t, PaintPoint(&m, 50, 50, 10))
	strictBinary(t, m)

	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			d := math.Hypot(float64(x-50), float64(y-50))
			v := m.GetUCharAt(y, x)
			switch {
			case d <= 9 && v != 255:
				t.Fatalf("pixel (%d,%d) at distance %.1f = %d, want 255", x, y, d, v)
			case d >= 11 && v != 0:
				t.Fatalf("pixel (%d,%d) at distance %.1f = %d, want 0", x, y, d, v)
			}
		}
	}
}

func TestPaintOnlyAdds(t *testing.T) {
	m := NewMask(100, 100)
	defer m.Close()
	noErr(t, PaintPoint(&m, 30, 30, 8))
	before := m.Clone()
	defer before.Close()

	noErr(t, PaintPoint(&m, 35, 30, 4))
	noErr(t, PaintSegment(&m, 0, 0, 99, 99, 3))

	a, b := before.ToBytes(), m.ToBytes()
	for i := range a {
		if a[i] == 255 && b[i] != 255 {
			t.Fatalf("pixel %d was cleared by painting", i)
		}
	}
	if gocv.CountNonZero(m) <= gocv.CountNonZero(before) {
		t.Error("second stroke added nothing")
	}
}

func TestPaintOffCanvas(t *testing.T) {
	cases := []struct {
		name string
		draw func(*gocv.Mat) error
	}{
		{"point far outside", func(m *gocv.Mat) error { return PaintPoint(m, -100, -100, 10) }},
		{"zero radius", func(m *gocv.Mat) error { return PaintPoint(m, 20, 20, 0) }},
		{"segment outside", func(m *gocv.Mat) error { return PaintSegment(m, 200, 200, 300, 250, 5) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := NewMask(50, 50)
			defer m.Close()
			noErr(t, c.draw(&m))
			if !IsEmpty(m) {
				t.Errorf("%d pixels painted, want none", gocv.CountNonZero(m))
			}
		})
	}
}

func TestPaintSegment(t *testing.T) {
	m := NewMask(100, 100)
	defer m.Close()
	noErr(t, PaintSegment(&m, 10, 50, 90, 50, 6))
	strictBinary(t, m)

	cases := []struct {
		x, y int
		want uint8
	}{
		{50, 50, 255},
		{20, 49, 255},
		{80, 51, 255},
		{50, 40, 0},
		{50, 60, 0},
	}
	for _, c := range cases {
		if got := m.GetUCharAt(c.y, c.x); got != c.want {
			t.Errorf("pixel (%d,%d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}
