package watermark

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Component is one 8-connected foreground region of a mask.
type Component struct {
	Area   int
	Bounds image.Rectangle
}

// Cleaner removes speckle noise from a candidate mask and drops connected
// components smaller than AreaFloor.
type Cleaner struct {
	KernelSize int
	AreaFloor  int
}

func DefaultCleaner() Cleaner {
	return Cleaner{KernelSize: 5, AreaFloor: 80}
}

// Clean opens the mask once, closes it twice and keeps components whose
// area is at least AreaFloor, returned alongside the mask. An all-zero result
// means nothing was detected.
func (c Cleaner) Clean(mask gocv.Mat) (gocv.Mat, []Component, error) {
	if mask.Empty() {
		return gocv.NewMat(), nil, ErrEmptyImage
	}

	kernel := ellipse(c.KernelSize)
	defer kernel.Close()

	opened, err := morph(mask, gocv.MorphOpen, kernel, 1)
	if err != nil {
		return gocv.NewMat(), nil, fmt.Errorf("clean open: %w", err)
	}
	defer opened.Close()

	// two closing iterations: dilate twice, then erode twice
	dilated, err := morph(opened, gocv.MorphDilate, kernel, 2)
	if err != nil {
		return gocv.NewMat(), nil, fmt.Errorf("clean close: %w", err)
	}
	defer dilated.Close()
	closed, err := morph(dilated, gocv.MorphErode, kernel, 2)
	if err != nil {
		return gocv.NewMat(), nil, fmt.Errorf("clean close: %w", err)
	}
	defer closed.Close()

	return FilterComponents(closed, c.AreaFloor)
}

// FilterComponents labels mask with 8-connectivity and returns a new mask
// holding only components of at least minArea pixels, plus those components.
func FilterComponents(mask gocv.Mat, minArea int) (gocv.Mat, []Component, error) {
	if mask.Type() != gocv.MatTypeCV8UC1 {
		return gocv.NewMat(), nil, fmt.Errorf("components: want 8-bit single channel mask, got type %d", mask.Type())
	}

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	n := gocv.ConnectedComponentsWithStatsWithParams(mask, &labels, &stats, &centroids,
		8, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)

	out := NewMask(mask.Rows(), mask.Cols())
	var kept []Component

	// label 0 is the background
	for l := 1; l < n; l++ {
		area := int(stats.GetIntAt(l, int(gocv.CC_STAT_AREA)))
		if area < minArea {
			continue
		}
		x := int(stats.GetIntAt(l, int(gocv.CC_STAT_LEFT)))
		y := int(stats.GetIntAt(l, int(gocv.CC_STAT_TOP)))
		w := int(stats.GetIntAt(l, int(gocv.CC_STAT_WIDTH)))
		h := int(stats.GetIntAt(l, int(gocv.CC_STAT_HEIGHT)))

		if err := selectLabel(labels, l, &out); err != nil {
			out.Close()
			return gocv.NewMat(), nil, fmt.Errorf("components: label %d: %w", l, err)
		}
		kept = append(kept, Component{Area: area, Bounds: image.Rect(x, y, x+w, y+h)})
	}
	return out, kept, nil
}

// selectLabel ORs the pixels carrying label into out.
func selectLabel(labels gocv.Mat, label int, out *gocv.Mat) error {
	v := float64(label)
	hit := gocv.NewMat()
	defer hit.Close()
	if err := gocv.InRangeWithScalar(labels, gocv.NewScalar(v, 0, 0, 0), gocv.NewScalar(v, 0, 0, 0), &hit); err != nil {
		return err
	}
	return Union(out, hit)
}
