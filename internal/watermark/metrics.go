package watermark

import (
	"fmt"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// Channels summarizes an image. Brightness is the average over all pixel
// values, Mean the average of the channel means (color balance) and StdDev the
// average of the channel standard deviations (contrast).
type Channels struct {
	Brightness float64
	Mean       float64
	StdDev     float64
	Color      bool
}

// ChannelMetrics computes brightness, channel balance and contrast of a BGR
// image, and whether it carries any saturated color.
func ChannelMetrics(img gocv.Mat) (Channels, error) {
	if img.Empty() {
		return Channels{}, ErrEmptyImage
	}
	n := img.Channels()
	data := img.ToBytes()
	pixels := img.Rows() * img.Cols()

	var means, stds []float64
	all := make([]float64, 0, len(data))
	for c := 0; c < n; c++ {
		ch := make([]float64, pixels)
		for i := range ch {
			ch[i] = float64(data[i*n+c])
		}
		all = append(all, ch...)
		m, s := stat.PopMeanStdDev(ch, nil)
		means = append(means, m)
		stds = append(stds, s)
	}

	color, err := IsColor(img)
	if err != nil {
		return Channels{}, err
	}
	return Channels{
		Brightness: stat.Mean(all, nil),
		Mean:       stat.Mean(means, nil),
		StdDev:     stat.Mean(stds, nil),
		Color:      color,
	}, nil
}

// IsColor reports whether any pixel has noticeable saturation.
func IsColor(img gocv.Mat) (bool, error) {
	if img.Channels() < 3 {
		return false, nil
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV); err != nil {
		return false, fmt.Errorf("is color: %w", err)
	}

	lo := gocv.NewScalar(0, 32, 32, 0)
	hi := gocv.NewScalar(180, 255, 255, 0)
	mask := gocv.NewMat()
	defer mask.Close()
	if err := gocv.InRangeWithScalar(hsv, lo, hi, &mask); err != nil {
		return false, fmt.Errorf("is color: %w", err)
	}

	return gocv.CountNonZero(mask) > 0, nil
}

// Region describes the luminance of the pixels selected by a mask.
type Region struct {
	Pixels int
	Mean   float64
	StdDev float64
	// Bright counts selected pixels at or above the bright threshold.
	Bright int
}

// RegionStats measures img inside mask. bright is the luminance at which a
// pixel counts as watermark-bright, usually the detection global threshold.
func RegionStats(img, mask gocv.Mat, bright int) (Region, error) {
	if err := CheckDims(img, mask); err != nil {
		return Region{}, err
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
			return Region{}, fmt.Errorf("region gray: %w", err)
		}
	} else {
		img.CopyTo(&gray)
	}

	m, err := Binarize(mask)
	if err != nil {
		return Region{}, err
	}
	defer m.Close()

	lum := gray.ToBytes()
	sel := m.ToBytes()
	var values []float64
	r := Region{}
	for i, v := range sel {
		if v == 0 {
			continue
		}
		values = append(values, float64(lum[i]))
		if int(lum[i]) >= bright {
			r.Bright++
		}
	}
	r.Pixels = len(values)
	if r.Pixels > 0 {
		r.Mean, r.StdDev = stat.PopMeanStdDev(values, nil)
	}
	return r, nil
}
