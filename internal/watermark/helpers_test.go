package watermark

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

// grayImage returns a rows x cols BGR image filled with v.
func grayImage(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// fill draws a filled rectangle of gray level v; r.Max is inclusive.
func fill(m *gocv.Mat, r image.Rectangle, v uint8) {
	gocv.Rectangle(m, r, color.RGBA{R: v, G: v, B: v, A: 255}, -1)
}

// squareImage is the 200x200 mid-gray picture with a white 30x30 square at (80,80).
func squareImage() gocv.Mat {
	img := grayImage(200, 200, 128)
	fill(&img, image.Rect(80, 80, 110, 110), 255)
	return img
}

func noErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func matsEqual(a, b gocv.Mat) bool {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() || a.Type() != b.Type() {
		return false
	}
	return bytes.Equal(a.ToBytes(), b.ToBytes())
}

func strictBinary(t *testing.T, m gocv.Mat) {
	t.Helper()
	for i, v := range m.ToBytes() {
		if v != 0 && v != 255 {
			t.Fatalf("mask pixel %d has value %d, want 0 or 255", i, v)
		}
	}
}
