package watermark

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Thresholder produces the raw candidate mask from a color image by combining
// a global brightness threshold with a Gaussian adaptive threshold.
type Thresholder struct {
	// GlobalThreshold flags pixels whose equalized luminance is >= this value.
	GlobalThreshold int
	// AdaptiveBlock is the odd side of the Gaussian neighborhood.
	AdaptiveBlock int
	// AdaptiveOffset is subtracted from the weighted neighborhood mean. A
	// negative offset only flags pixels brighter than their surroundings.
	AdaptiveOffset float32
}

func DefaultThresholder() Thresholder {
	return Thresholder{GlobalThreshold: 220, AdaptiveBlock: 31, AdaptiveOffset: -10}
}

// Detect returns a {0,255} candidate mask with the dimensions of img.
func (t Thresholder) Detect(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	if t.AdaptiveBlock < 3 || t.AdaptiveBlock%2 == 0 {
		return gocv.NewMat(), fmt.Errorf("detect: adaptive block must be odd and >= 3, got %d", t.AdaptiveBlock)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
			return gocv.NewMat(), fmt.Errorf("detect gray: %w", err)
		}
	} else {
		img.CopyTo(&gray)
	}

	// Normalize contrast so the fixed thresholds behave on dark and bright photos
	equalized := gocv.NewMat()
	defer equalized.Close()
	if err := gocv.EqualizeHist(gray, &equalized); err != nil {
		return gocv.NewMat(), fmt.Errorf("detect equalize: %w", err)
	}

	// ThresholdBinary keeps values strictly above thresh
	global := gocv.NewMat()
	defer global.Close()
	gocv.Threshold(equalized, &global, float32(t.GlobalThreshold-1), 255, gocv.ThresholdBinary)

	adaptive := gocv.NewMat()
	defer adaptive.Close()
	if err := gocv.AdaptiveThreshold(equalized, &adaptive, 255,
		gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, t.AdaptiveBlock, t.AdaptiveOffset); err != nil {
		return gocv.NewMat(), fmt.Errorf("detect adaptive: %w", err)
	}

	mask := gocv.NewMat()
	if err := gocv.BitwiseOr(global, adaptive, &mask); err != nil {
		mask.Close()
		return gocv.NewMat(), fmt.Errorf("detect combine: %w", err)
	}
	return mask, nil
}
