package watermark

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Method selects the inpainting algorithm of each pass.
type Method int

const (
	// FastMarching is Telea's fast marching method.
	FastMarching Method = iota
	// FluidDynamics is the Navier-Stokes based method.
	FluidDynamics
)

func (m Method) String() string {
	if m == FluidDynamics {
		return "ns"
	}
	return "telea"
}

// ParseMethod accepts "telea"/"fast-marching" and "ns"/"navier-stokes"/"fluid-dynamics".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", "telea", "fast-marching":
		return FastMarching, nil
	case "ns", "navier-stokes", "fluid-dynamics":
		return FluidDynamics, nil
	}
	return FastMarching, fmt.Errorf("watermark: unknown inpaint method %q", s)
}

func (m Method) flag() gocv.InpaintMethods {
	if m == FluidDynamics {
		return gocv.InpaintMethods(gocv.NS)
	}
	return gocv.InpaintMethods(gocv.Telea)
}

// PassStatus is the outcome of one stage of a run.
type PassStatus int

const (
	PassSuccess PassStatus = iota
	// PassDegraded means the pass only succeeded on its reduced-radius retry.
	PassDegraded
	// PassSkipped means the stage failed and the previous image was kept.
	PassSkipped
)

func (s PassStatus) String() string {
	switch s {
	case PassDegraded:
		return "degraded"
	case PassSkipped:
		return "skipped"
	}
	return "success"
}

// PassResult records what happened to one stage of an inpaint run.
type PassResult struct {
	Stage  string
	Radius int // scheduled radius, 0 for post filters
	Used   int // radius that produced the output, 0 if none
	Status PassStatus
	Err    error
}

// Bilateral holds the edge-preserving smoothing parameters. A zero Diameter
// disables the filter.
type Bilateral struct {
	Diameter   int
	SigmaColor float64
	SigmaSpace float64
}

type passFunc func(src, mask gocv.Mat, dst *gocv.Mat, radius int) error

type filterFunc func(src gocv.Mat, dst *gocv.Mat) error

// Inpainter reconstructs masked pixels with a schedule of inpainting passes of
// growing radius followed by a smoothing and a sharpening filter. Failing
// stages degrade the result instead of failing the run.
type Inpainter struct {
	Radii     []int
	Method    Method
	Bilateral Bilateral
	Sharpen   bool
	Log       zerolog.Logger

	// stage backends, replaced in tests
	pass    passFunc
	smooth  filterFunc
	sharpen filterFunc
}

func DefaultInpainter() *Inpainter {
	return &Inpainter{
		Radii:     []int{3, 6, 11},
		Method:    FastMarching,
		Bilateral: Bilateral{Diameter: 5, SigmaColor: 75, SigmaSpace: 75},
		Sharpen:   true,
		Log:       log.Logger,
	}
}

// Inpaint returns a reconstructed copy of img. img is never modified. The
// returned passes describe every stage; an error is only returned when the
// inputs violate the image/mask invariant.
func (p *Inpainter) Inpaint(img, mask gocv.Mat) (gocv.Mat, []PassResult, error) {
	if err := CheckDims(img, mask); err != nil {
		return gocv.NewMat(), nil, err
	}
	m, err := Binarize(mask)
	if err != nil {
		return gocv.NewMat(), nil, err
	}
	defer m.Close()

	passes := make([]PassResult, 0, len(p.Radii)+2)
	cur := img.Clone()

	for _, r := range p.Radii {
		r = max(1, r)
		res := PassResult{Stage: "inpaint", Radius: r, Used: r, Status: PassSuccess}

		next, err := p.runPass(cur, m, r)
		if err != nil {
			next.Close()
			retry := max(1, r/2)
			p.Log.Debug().Err(err).Int("radius", r).Int("retry", retry).Msg("inpaint pass failed")
			res.Err = err
			res.Used = retry

			var rerr error
			next, rerr = p.runPass(cur, m, retry)
			if rerr != nil {
				next.Close()
				p.Log.Debug().Err(rerr).Int("radius", retry).Msg("inpaint retry failed, pass skipped")
				res.Status = PassSkipped
				res.Used = 0
				res.Err = errors.Join(err, rerr)
				passes = append(passes, res)
				continue
			}
			res.Status = PassDegraded
		}

		cur.Close()
		cur = next
		passes = append(passes, res)
	}

	if p.Bilateral.Diameter > 0 {
		cur, passes = p.filter(cur, passes, "bilateral", p.smoothFunc())
	}
	if p.Sharpen {
		cur, passes = p.filter(cur, passes, "sharpen", p.sharpenFunc())
	}

	return cur, passes, nil
}

// filter applies fn to cur. On failure cur is returned unchanged.
func (p *Inpainter) filter(cur gocv.Mat, passes []PassResult, stage string, fn filterFunc) (gocv.Mat, []PassResult) {
	next, err := guard(stage, cur, func(dst *gocv.Mat) error { return fn(cur, dst) })
	if err != nil {
		next.Close()
		p.Log.Debug().Err(err).Str("stage", stage).Msg("post filter failed, ignored")
		return cur, append(passes, PassResult{Stage: stage, Status: PassSkipped, Err: err})
	}
	cur.Close()
	return next, append(passes, PassResult{Stage: stage, Status: PassSuccess})
}

func (p *Inpainter) runPass(cur, mask gocv.Mat, radius int) (gocv.Mat, error) {
	fn := p.pass
	if fn == nil {
		fn = gocvInpaint(p.Method)
	}
	return guard(fmt.Sprintf("inpaint r=%d", radius), cur, func(dst *gocv.Mat) error {
		return fn(cur, mask, dst, radius)
	})
}

// guard runs one stage into a fresh matrix. A stage fails when it returns an
// error, panics, or leaves an output whose shape differs from src.
func guard(stage string, src gocv.Mat, fn func(dst *gocv.Mat) error) (out gocv.Mat, err error) {
	out = gocv.NewMat()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", stage, r)
		}
		if err != nil {
			out.Close()
			out = gocv.NewMat()
		}
	}()

	if err = fn(&out); err != nil {
		return out, fmt.Errorf("%s: %w", stage, err)
	}
	if out.Empty() || out.Rows() != src.Rows() || out.Cols() != src.Cols() || out.Channels() != src.Channels() {
		return out, fmt.Errorf("%s: output %dx%dx%d does not match input %dx%dx%d", stage,
			out.Cols(), out.Rows(), out.Channels(), src.Cols(), src.Rows(), src.Channels())
	}
	return out, nil
}

func gocvInpaint(method Method) passFunc {
	return func(src, mask gocv.Mat, dst *gocv.Mat, radius int) error {
		return gocv.Inpaint(src, mask, dst, float32(radius), method.flag())
	}
}

func (p *Inpainter) smoothFunc() filterFunc {
	if p.smooth != nil {
		return p.smooth
	}
	b := p.Bilateral
	return func(src gocv.Mat, dst *gocv.Mat) error {
		return gocv.BilateralFilter(src, dst, b.Diameter, b.SigmaColor, b.SigmaSpace)
	}
}

func (p *Inpainter) sharpenFunc() filterFunc {
	if p.sharpen != nil {
		return p.sharpen
	}
	return func(src gocv.Mat, dst *gocv.Mat) error {
		kernel := sharpenKernel()
		defer kernel.Close()
		return gocv.Filter2D(src, dst, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)
	}
}

// sharpenKernel is a 3x3 Laplacian sharpen whose weights sum to 1.
func sharpenKernel() gocv.Mat {
	weights := [3][3]float32{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for r, row := range weights {
		for c, w := range row {
			k.SetFloatAt(r, c, w)
		}
	}
	return k
}
