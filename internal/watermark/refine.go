package watermark

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Refiner grows and smooths a cleaned mask so the inpainter also covers the
// anti-aliased rim of the watermark.
type Refiner struct {
	KernelSize int
	BlurKernel int
	// Threshold re-binarizes the blurred mask: values >= Threshold become 255.
	Threshold int
}

func DefaultRefiner() Refiner {
	return Refiner{KernelSize: 5, BlurKernel: 9, Threshold: 10}
}

// Refine opens, dilates, blurs and re-thresholds mask. The result is strictly
// {0,255}.
func (r Refiner) Refine(mask gocv.Mat) (gocv.Mat, error) {
	if mask.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}

	kernel := ellipse(r.KernelSize)
	defer kernel.Close()

	opened, err := morph(mask, gocv.MorphOpen, kernel, 1)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("refine open: %w", err)
	}
	defer opened.Close()

	dilated, err := morph(opened, gocv.MorphDilate, kernel, 1)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("refine dilate: %w", err)
	}
	defer dilated.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	ksize := image.Pt(r.BlurKernel, r.BlurKernel)
	if err := gocv.GaussianBlur(dilated, &blurred, ksize, 0, 0, gocv.BorderDefault); err != nil {
		return gocv.NewMat(), fmt.Errorf("refine blur: %w", err)
	}

	out := gocv.NewMat()
	gocv.Threshold(blurred, &out, float32(r.Threshold-1), 255, gocv.ThresholdBinary)
	return out, nil
}
