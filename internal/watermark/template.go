package watermark

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrUnknownGravity is returned for a gravity name PlaceTemplate does not know.
var ErrUnknownGravity = errors.New("watermark: unknown gravity")

// Template is a known watermark shape anchored to one side of the image.
type Template struct {
	Mask    gocv.Mat
	Gravity string
	// ExcludeForeground removes dark foreground text from the placed template
	// so that text overlapping the watermark is left untouched.
	ExcludeForeground bool
}

// gravityOrigin returns where the top left corner of a w x h template goes on a
// cols x rows canvas. The origin may be negative when the template is larger.
func gravityOrigin(gravity string, cols, rows, w, h int) (image.Point, error) {
	cx, cy := (cols-w)/2, (rows-h)/2
	right, bottom := cols-w, rows-h

	switch gravity {
	case "north-west":
		return image.Pt(0, 0), nil
	case "north":
		return image.Pt(cx, 0), nil
	case "north-east":
		return image.Pt(right, 0), nil
	case "west":
		return image.Pt(0, cy), nil
	case "center":
		return image.Pt(cx, cy), nil
	case "east":
		return image.Pt(right, cy), nil
	case "south-west":
		return image.Pt(0, bottom), nil
	case "south":
		return image.Pt(cx, bottom), nil
	case "south-east":
		return image.Pt(right, bottom), nil
	}
	return image.Point{}, fmt.Errorf("%w: %q", ErrUnknownGravity, gravity)
}

// PlaceTemplate returns a rows x cols {0,255} mask holding tpl at the given
// gravity. Parts of the template that fall outside the canvas are cropped.
func PlaceTemplate(tpl gocv.Mat, rows, cols int, gravity string) (gocv.Mat, error) {
	if tpl.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	origin, err := gravityOrigin(gravity, cols, rows, tpl.Cols(), tpl.Rows())
	if err != nil {
		return gocv.NewMat(), err
	}

	bin, err := Binarize(tpl)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer bin.Close()

	canvas := NewMask(rows, cols)
	placed := image.Rect(0, 0, tpl.Cols(), tpl.Rows()).Add(origin)
	dstRect := placed.Intersect(image.Rect(0, 0, cols, rows))
	if dstRect.Empty() {
		return canvas, nil
	}
	srcRect := dstRect.Sub(origin)

	src := bin.Region(srcRect)
	defer src.Close()
	dst := canvas.Region(dstRect)
	defer dst.Close()
	src.CopyTo(&dst)

	return canvas, nil
}

// ForegroundMask marks dark text of img: Otsu inverse binarization, dilated
// with a 3x3 rectangle so glyph edges are covered too.
func ForegroundMask(img gocv.Mat) (gocv.Mat, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
			return gocv.NewMat(), fmt.Errorf("foreground gray: %w", err)
		}
	} else {
		img.CopyTo(&gray)
	}

	// thresh is ignored by Otsu
	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	return morph(bin, gocv.MorphDilate, kernel, 1)
}

// TemplateMask ORs all templates into one mask sized for img.
func TemplateMask(img gocv.Mat, templates []Template) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	mask := NewMask(img.Rows(), img.Cols())

	var fg gocv.Mat
	haveFG := false
	defer func() {
		if haveFG {
			fg.Close()
		}
	}()

	for i, t := range templates {
		placed, err := PlaceTemplate(t.Mask, img.Rows(), img.Cols(), t.Gravity)
		if err != nil {
			mask.Close()
			return gocv.NewMat(), fmt.Errorf("template %d: %w", i, err)
		}

		if t.ExcludeForeground {
			if !haveFG {
				if fg, err = ForegroundMask(img); err != nil {
					placed.Close()
					mask.Close()
					return gocv.NewMat(), fmt.Errorf("template %d: %w", i, err)
				}
				haveFG = true
			}
			if err := exclude(&placed, fg); err != nil {
				placed.Close()
				mask.Close()
				return gocv.NewMat(), fmt.Errorf("template %d: %w", i, err)
			}
		}

		err = Union(&mask, placed)
		placed.Close()
		if err != nil {
			mask.Close()
			return gocv.NewMat(), err
		}
	}
	return mask, nil
}

// exclude clears the pixels of fg from placed.
func exclude(placed *gocv.Mat, fg gocv.Mat) error {
	keep := gocv.NewMat()
	defer keep.Close()
	if err := gocv.BitwiseNot(fg, &keep); err != nil {
		return fmt.Errorf("foreground invert: %w", err)
	}
	if err := gocv.BitwiseAnd(*placed, keep, placed); err != nil {
		return fmt.Errorf("foreground exclude: %w", err)
	}
	return nil
}
