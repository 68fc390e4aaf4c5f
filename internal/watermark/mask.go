package watermark

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	// ErrEmptyImage is returned when a stage receives an empty matrix.
	ErrEmptyImage = errors.New("watermark: empty image")
	// ErrDimensionMismatch is returned when a mask and its image differ in size.
	ErrDimensionMismatch = errors.New("watermark: mask and image dimensions differ")
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// NewMask returns an all-zero single channel mask of the given size.
func NewMask(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
}

// CheckDims verifies the mask has the same rows and columns as img.
func CheckDims(img, mask gocv.Mat) error {
	if img.Empty() {
		return ErrEmptyImage
	}
	if mask.Rows() != img.Rows() || mask.Cols() != img.Cols() {
		return fmt.Errorf("%w: image %dx%d, mask %dx%d",
			ErrDimensionMismatch, img.Cols(), img.Rows(), mask.Cols(), mask.Rows())
	}
	return nil
}

// IsEmpty reports whether the mask selects no pixel at all.
func IsEmpty(mask gocv.Mat) bool {
	return mask.Empty() || gocv.CountNonZero(mask) == 0
}

// Binarize returns a strict {0,255} 8-bit single channel copy of mask.
// Any non-zero value becomes 255.
func Binarize(mask gocv.Mat) (gocv.Mat, error) {
	if mask.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}

	src := mask.Clone()
	defer src.Close()

	if src.Channels() > 1 {
		gray := gocv.NewMat()
		if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
			gray.Close()
			return gocv.NewMat(), fmt.Errorf("binarize to gray: %w", err)
		}
		src.Close()
		src = gray
	}

	if src.Type() != gocv.MatTypeCV8UC1 {
		// threshold in float so fractional weights are not rounded to zero
		f := gocv.NewMat()
		defer f.Close()
		src.ConvertTo(&f, gocv.MatTypeCV32F)
		ft := gocv.NewMat()
		defer ft.Close()
		gocv.Threshold(f, &ft, 0, 255, gocv.ThresholdBinary)
		out := gocv.NewMat()
		ft.ConvertTo(&out, gocv.MatTypeCV8U)
		return out, nil
	}

	out := gocv.NewMat()
	gocv.Threshold(src, &out, 0, 255, gocv.ThresholdBinary)
	return out, nil
}

// Union ORs src into dst in place. Both must have the same size.
func Union(dst *gocv.Mat, src gocv.Mat) error {
	if src.Rows() != dst.Rows() || src.Cols() != dst.Cols() {
		return fmt.Errorf("%w: %dx%d into %dx%d",
			ErrDimensionMismatch, src.Cols(), src.Rows(), dst.Cols(), dst.Rows())
	}
	merged := gocv.NewMat()
	defer merged.Close()
	if err := gocv.BitwiseOr(*dst, src, &merged); err != nil {
		return fmt.Errorf("union: %w", err)
	}
	merged.CopyTo(dst)
	return nil
}

func ellipse(size int) gocv.Mat {
	return gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size))
}

// morph runs op the given number of times, each pass on the previous output.
func morph(src gocv.Mat, op gocv.MorphType, kernel gocv.Mat, iterations int) (gocv.Mat, error) {
	cur := src.Clone()
	for i := 0; i < iterations; i++ {
		next := gocv.NewMat()
		if err := gocv.MorphologyEx(cur, &next, op, kernel); err != nil {
			next.Close()
			cur.Close()
			return gocv.NewMat(), fmt.Errorf("morphology op %d: %w", op, err)
		}
		cur.Close()
		cur = next
	}
	return cur, nil
}
