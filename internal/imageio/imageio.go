// Package imageio decodes input images into BGR matrices and encodes
// processed matrices back to a file format chosen by extension.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	_ "github.com/ftrvxmtrx/tga"
	"gocv.io/x/gocv"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode is returned when the input bytes are not a supported image.
	ErrDecode = errors.New("imageio: cannot decode image")
	// ErrFormat is returned when the output extension has no encoder.
	ErrFormat = errors.New("imageio: unsupported output format")
)

// Decode reads a PNG, JPEG, BMP, WebP or TGA image and returns it as an
// 8-bit 3-channel BGR matrix together with the detected format name.
func Decode(r io.Reader) (gocv.Mat, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return gocv.NewMat(), "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	mat, err := FromImage(img)
	if err != nil {
		return gocv.NewMat(), format, err
	}
	return mat, format, nil
}

// Load decodes the image file at path.
func Load(path string) (gocv.Mat, error) {
	f, err := os.Open(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("imageio: open %s: %w", path, err)
	}
	defer f.Close()

	mat, _, err := Decode(f)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%s: %w", path, err)
	}
	return mat, nil
}

// LoadGray decodes the image file at path into a single channel matrix.
func LoadGray(path string) (gocv.Mat, error) {
	bgr, err := Load(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	if err := gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("imageio: %s to gray: %w", path, err)
	}
	return gray, nil
}

// FromImage converts any image.Image into a BGR matrix. Alpha is dropped.
func FromImage(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	if b.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty bounds %v", ErrDecode, b)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	bgr := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			bgr[i+0] = row[x*4+2] // B
			bgr[i+1] = row[x*4+1] // G
			bgr[i+2] = row[x*4+0] // R
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, bgr)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("imageio: build matrix: %w", err)
	}
	defer mat.Close()
	return mat.Clone(), nil
}

// Encode writes mat to w in the format named by ext (".png", ".jpg",
// ".jpeg", ".bmp" or ".webp").
func Encode(w io.Writer, mat gocv.Mat, ext string) error {
	switch strings.ToLower(ext) {
	case ".png":
		return encodeNative(w, mat, gocv.PNGFileExt)
	case ".jpg", ".jpeg":
		return encodeNative(w, mat, gocv.JPEGFileExt)
	case ".bmp":
		img, err := mat.ToImage()
		if err != nil {
			return fmt.Errorf("imageio: to image: %w", err)
		}
		return bmp.Encode(w, img)
	case ".webp":
		img, err := mat.ToImage()
		if err != nil {
			return fmt.Errorf("imageio: to image: %w", err)
		}
		return nativewebp.Encode(w, img, nil)
	default:
		return fmt.Errorf("%w: %q", ErrFormat, ext)
	}
}

func encodeNative(w io.Writer, mat gocv.Mat, ext gocv.FileExt) error {
	buf, err := gocv.IMEncode(ext, mat)
	if err != nil {
		return fmt.Errorf("imageio: encode %s: %w", ext, err)
	}
	defer buf.Close()

	_, err = io.Copy(w, bytes.NewReader(buf.GetBytes()))
	return err
}

// Save encodes mat into path, picking the format from the file extension.
// The file is written in one piece, so a failed encode leaves no partial file.
func Save(path string, mat gocv.Mat) error {
	var out bytes.Buffer
	if err := Encode(&out, mat, filepath.Ext(path)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("imageio: write %s: %w", path, err)
	}
	return nil
}
