package watermark

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// PaintPoint draws a filled disc of 255 into mask. Painting only ever adds
// to the mask; parts of the disc outside the canvas are not drawn.
func PaintPoint(mask *gocv.Mat, x, y, radius int) error {
	if radius < 1 {
		return nil
	}
	if err := gocv.Circle(mask, image.Pt(x, y), radius, white, -1); err != nil {
		return fmt.Errorf("paint point (%d,%d): %w", x, y, err)
	}
	return nil
}

// PaintSegment draws a 255 line of the given stroke width from (x1,y1) to
// (x2,y2) into mask.
func PaintSegment(mask *gocv.Mat, x1, y1, x2, y2, width int) error {
	if err := gocv.Line(mask, image.Pt(x1, y1), image.Pt(x2, y2), white, max(1, width)); err != nil {
		return fmt.Errorf("paint segment (%d,%d)-(%d,%d): %w", x1, y1, x2, y2, err)
	}
	return nil
}
