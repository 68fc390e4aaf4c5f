package watermark

import (
	"errors"
	"image"
	"reflect"
	"strings"
	"testing"

	"gocv.io/x/gocv"
)

// patternImage is a small BGR gradient so inpainting has structure to work with.
func patternImage(rows, cols int) gocv.Mat {
	img := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetUCharAt(y, x*3+0, uint8(x*4))
			img.SetUCharAt(y, x*3+1, uint8(y*4))
			img.SetUCharAt(y, x*3+2, uint8((x+y)*2))
		}
	}
	return img
}

func plainInpainter() *Inpainter {
	p := DefaultInpainter()
	p.Bilateral.Diameter = 0
	p.Sharpen = false
	return p
}

func TestInpaintKeepsShape(t *testing.T) {
	cases := []struct {
		name       string
		rows, cols int
		method     Method
	}{
		{"telea", 40, 60, FastMarching},
		{"ns", 33, 17, FluidDynamics},
		{"single row", 1, 50, FastMarching},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			img := patternImage(c.rows, c.cols)
			defer img.Close()
			orig := img.Clone()
			defer orig.Close()

			mask := NewMask(c.rows, c.cols)
			defer mask.Close()
			fill(&mask, image.Rect(c.cols/4, 0, c.cols/2, c.rows/2), 255)

			p := DefaultInpainter()
			p.Method = c.method
			out, passes, err := p.Inpaint(img, mask)
			if err != nil {
				t.Fatalf("Inpaint: %v", err)
			}
			defer out.Close()

			if out.Rows() != c.rows || out.Cols() != c.cols || out.Channels() != 3 || out.Type() != img.Type() {
				t.Errorf("output %dx%dx%d, want %dx%dx3", out.Cols(), out.Rows(), out.Channels(), c.cols, c.rows)
			}
			if !matsEqual(img, orig) {
				t.Error("Inpaint modified its input image")
			}
			if len(passes) != 5 {
				t.Errorf("got %d pass results, want 3 inpaint passes and 2 filters", len(passes))
			}
		})
	}
}

func TestInpaintDimensionMismatch(t *testing.T) {
	img := grayImage(20, 20, 100)
	defer img.Close()
	mask := NewMask(20, 21)
	defer mask.Close()

	_, _, err := DefaultInpainter().Inpaint(img, mask)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestInpaintRetriesFailedPass(t *testing.T) {
	img := squareImage()
	defer img.Close()
	mask := NewMask(200, 200)
	defer mask.Close()
	fill(&mask, image.Rect(76, 76, 114, 114), 255)

	var calls []int
	p := DefaultInpainter()
	telea := gocvInpaint(FastMarching)
	p.pass = func(src, mask gocv.Mat, dst *gocv.Mat, radius int) error {
		calls = append(calls, radius)
		if radius == 6 {
			return errors.New("numerical instability")
		}
		return telea(src, mask, dst, radius)
	}

	out, passes, err := p.Inpaint(img, mask)
	if err != nil {
		t.Fatalf("Inpaint surfaced an error: %v", err)
	}
	defer out.Close()

	if want := []int{3, 6, 3, 11}; !reflect.DeepEqual(calls, want) {
		t.Errorf("pass radii = %v, want %v", calls, want)
	}

	want := []struct {
		stage  string
		radius int
		used   int
		status PassStatus
	}{
		{"inpaint", 3, 3, PassSuccess},
		{"inpaint", 6, 3, PassDegraded},
		{"inpaint", 11, 11, PassSuccess},
		{"bilateral", 0, 0, PassSuccess},
		{"sharpen", 0, 0, PassSuccess},
	}
	if len(passes) != len(want) {
		t.Fatalf("got %d passes, want %d", len(passes), len(want))
	}
	for i, w := range want {
		got := passes[i]
		if got.Stage != w.stage || got.Radius != w.radius || got.Used != w.used || got.Status != w.status {
			t.Errorf("pass %d = %+v, want %+v", i, got, w)
		}
	}
	if passes[1].Err == nil {
		t.Error("degraded pass lost its cause")
	}
	if out.Rows() != 200 || out.Cols() != 200 {
		t.Errorf("output is %dx%d", out.Cols(), out.Rows())
	}
}

func TestInpaintSkipsFailingPasses(t *testing.T) {
	img := patternImage(30, 30)
	defer img.Close()
	mask := NewMask(30, 30)
	defer mask.Close()
	fill(&mask, image.Rect(10, 10, 15, 15), 255)

	cases := []struct {
		name string
		pass passFunc
	}{
		{"error", func(src, mask gocv.Mat, dst *gocv.Mat, radius int) error {
			return errors.New("boom")
		}},
		{"panic", func(src, mask gocv.Mat, dst *gocv.Mat, radius int) error {
			panic("bad radius")
		}},
		{"empty output", func(src, mask gocv.Mat, dst *gocv.Mat, radius int) error {
			return nil
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := plainInpainter()
			p.pass = c.pass

			out, passes, err := p.Inpaint(img, mask)
			if err != nil {
				t.Fatalf("Inpaint: %v", err)
			}
			defer out.Close()

			if len(passes) != 3 {
				t.Fatalf("got %d passes, want 3", len(passes))
			}
			for i, pr := range passes {
				if pr.Status != PassSkipped || pr.Err == nil || pr.Used != 0 {
					t.Errorf("pass %d = %+v, want skipped with cause", i, pr)
				}
			}
			if !matsEqual(out, img) {
				t.Error("with every pass skipped the output should equal the input")
			}
		})
	}
}

func TestInpaintKeepsOpenCVCause(t *testing.T) {
	img := patternImage(30, 30)
	defer img.Close()
	mask := NewMask(30, 30)
	defer mask.Close()
	fill(&mask, image.Rect(10, 10, 15, 15), 255)

	// inpainting rejects a mask that is not single channel
	colorMask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 30, 30, gocv.MatTypeCV8UC3)
	defer colorMask.Close()

	telea := gocvInpaint(FastMarching)
	dst := gocv.NewMat()
	defer dst.Close()
	direct := telea(img, colorMask, &dst, 3)
	if direct == nil {
		t.Fatal("inpainting with a 3-channel mask succeeded")
	}

	p := plainInpainter()
	p.pass = func(src, _ gocv.Mat, dst *gocv.Mat, radius int) error {
		return telea(src, colorMask, dst, radius)
	}
	out, passes, err := p.Inpaint(img, mask)
	if err != nil {
		t.Fatalf("Inpaint: %v", err)
	}
	defer out.Close()

	for i, pr := range passes {
		if pr.Status != PassSkipped || pr.Err == nil {
			t.Fatalf("pass %d = %+v, want skipped", i, pr)
		}
		msg := pr.Err.Error()
		if !strings.Contains(msg, direct.Error()) || strings.Contains(msg, "does not match input") {
			t.Errorf("pass %d cause %q, want the inpaint error %q", i, msg, direct)
		}
	}
}

func TestInpaintIgnoresFilterFailure(t *testing.T) {
	img := patternImage(30, 30)
	defer img.Close()
	mask := NewMask(30, 30)
	defer mask.Close()
	fill(&mask, image.Rect(10, 10, 15, 15), 255)

	p := DefaultInpainter()
	p.smooth = func(src gocv.Mat, dst *gocv.Mat) error { return errors.New("bilateral failed") }

	out, passes, err := p.Inpaint(img, mask)
	if err != nil {
		t.Fatalf("Inpaint: %v", err)
	}
	defer out.Close()

	if got := passes[3]; got.Stage != "bilateral" || got.Status != PassSkipped {
		t.Errorf("bilateral pass = %+v, want skipped", got)
	}
	if got := passes[4]; got.Stage != "sharpen" || got.Status != PassSuccess {
		t.Errorf("sharpen pass = %+v, want success", got)
	}
	if out.Rows() != 30 || out.Cols() != 30 || out.Channels() != 3 {
		t.Error("output lost its shape")
	}
}

func TestBinarize(t *testing.T) {
	f := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 4, 4, gocv.MatTypeCV32F)
	defer f.Close()
	f.SetFloatAt(1, 1, 0.25)
	f.SetFloatAt(2, 3, 7)

	gray := NewMask(4, 4)
	defer gray.Close()
	gray.SetUCharAt(0, 0, 1)
	gray.SetUCharAt(3, 3, 128)

	cases := []struct {
		name string
		in   gocv.Mat
		on   []image.Point
	}{
		{"float", f, []image.Point{{1, 1}, {3, 2}}},
		{"gray levels", gray, []image.Point{{0, 0}, {3, 3}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := Binarize(c.in)
			if err != nil {
				t.Fatalf("Binarize: %v", err)
			}
			defer out.Close()

			if out.Type() != gocv.MatTypeCV8UC1 {
				t.Fatalf("type = %v, want CV8UC1", out.Type())
			}
			strictBinary(t, out)
			if n := gocv.CountNonZero(out); n != len(c.on) {
				t.Errorf("%d pixels set, want %d", n, len(c.on))
			}
			for _, p := range c.on {
				if v := out.GetUCharAt(p.Y, p.X); v != 255 {
					t.Errorf("pixel %v = %d, want 255", p, v)
				}
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	cases := []struct {
		in   string
		want Method
		ok   bool
	}{
		{"telea", FastMarching, true},
		{"fast-marching", FastMarching, true},
		{"NS", FluidDynamics, true},
		{"fluid-dynamics", FluidDynamics, true},
		{"", FastMarching, true},
		{"laplace", FastMarching, false},
	}
	for _, c := range cases {
		got, err := ParseMethod(c.in)
		if (err == nil) != c.ok || got != c.want {
			t.Errorf("ParseMethod(%q) = %v, %v", c.in, got, err)
		}
	}
}
