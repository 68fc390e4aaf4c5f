// Package watermark locates watermark-like regions in a photograph and
// reconstructs them by inpainting.
//
// The automatic path runs
//
//	Thresholder -> Cleaner -> (nothing left: OutcomeNothingDetected) -> Refiner -> Inpainter
//
// while hand painted masks (Session) and placed templates go straight to the
// Inpainter. Every stage returns new matrices; callers own and Close them.
package watermark

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Outcome tells a caller what a pipeline run did.
type Outcome int

const (
	// OutcomeProcessed means Image holds the reconstructed image.
	OutcomeProcessed Outcome = iota
	// OutcomeNothingDetected means automatic detection found no region above
	// the area floor. No inpainting was attempted and Image is empty.
	OutcomeNothingDetected
)

func (o Outcome) String() string {
	if o == OutcomeNothingDetected {
		return "nothing-detected"
	}
	return "processed"
}

// Result is the product of one pipeline run.
type Result struct {
	Outcome    Outcome
	Image      gocv.Mat
	Mask       gocv.Mat
	Passes     []PassResult
	Components []Component
}

// Degraded reports whether any stage needed a retry or was skipped.
func (r Result) Degraded() bool {
	for _, p := range r.Passes {
		if p.Status != PassSuccess {
			return true
		}
	}
	return false
}

// Close releases the result matrices.
func (r *Result) Close() {
	r.Image.Close()
	r.Mask.Close()
}

// Pipeline wires the stages together. The zero value is not usable; start
// from NewPipeline.
type Pipeline struct {
	Thresholder Thresholder
	Cleaner     Cleaner
	Refiner     Refiner
	Inpainter   *Inpainter
	Log         zerolog.Logger
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		Thresholder: DefaultThresholder(),
		Cleaner:     DefaultCleaner(),
		Refiner:     DefaultRefiner(),
		Inpainter:   DefaultInpainter(),
		Log:         log.Logger,
	}
}

func (p *Pipeline) logStage(stage string, start time.Time) {
	p.Log.Debug().
		Str("stage", stage).
		Int64("duration(ms)", time.Since(start).Milliseconds()).
		Msg("watermark")
}

// DetectMask runs detection, cleaning and refinement. found is false when
// nothing survived cleaning; refinement is not run in that case and mask is
// empty.
func (p *Pipeline) DetectMask(img gocv.Mat) (mask gocv.Mat, comps []Component, found bool, err error) {
	if img.Empty() {
		return gocv.NewMat(), nil, false, ErrEmptyImage
	}

	start := time.Now()
	candidate, err := p.Thresholder.Detect(img)
	if err != nil {
		return gocv.NewMat(), nil, false, err
	}
	defer candidate.Close()
	p.logStage("detect", start)

	start = time.Now()
	cleaned, comps, err := p.Cleaner.Clean(candidate)
	if err != nil {
		return gocv.NewMat(), nil, false, err
	}
	defer cleaned.Close()
	p.logStage("clean", start)

	if IsEmpty(cleaned) {
		p.Log.Info().Int("area_floor", p.Cleaner.AreaFloor).Msg("no watermark detected")
		return gocv.NewMat(), nil, false, nil
	}

	start = time.Now()
	refined, err := p.Refiner.Refine(cleaned)
	if err != nil {
		return gocv.NewMat(), nil, false, err
	}
	p.logStage("refine", start)

	return refined, comps, true, nil
}

// Auto detects watermark regions in img and inpaints them.
func (p *Pipeline) Auto(img gocv.Mat) (Result, error) {
	mask, comps, found, err := p.DetectMask(img)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Outcome: OutcomeNothingDetected, Image: gocv.NewMat(), Mask: mask}, nil
	}

	res, err := p.inpaint(img, mask)
	if err != nil {
		return Result{}, err
	}
	res.Components = comps
	return res, nil
}

// Manual inpaints img with a caller supplied mask, skipping detection.
func (p *Pipeline) Manual(img, mask gocv.Mat) (Result, error) {
	if err := CheckDims(img, mask); err != nil {
		return Result{}, err
	}
	return p.inpaint(img, mask.Clone())
}

// Template places the templates on img and inpaints the union.
func (p *Pipeline) Template(img gocv.Mat, templates []Template) (Result, error) {
	mask, err := TemplateMask(img, templates)
	if err != nil {
		return Result{}, err
	}
	return p.inpaint(img, mask)
}

// inpaint takes ownership of mask.
func (p *Pipeline) inpaint(img, mask gocv.Mat) (Result, error) {
	start := time.Now()
	out, passes, err := p.Inpainter.Inpaint(img, mask)
	if err != nil {
		mask.Close()
		return Result{}, err
	}
	p.logStage("inpaint", start)

	for _, pr := range passes {
		if pr.Status != PassSuccess {
			p.Log.Debug().
				Str("stage", pr.Stage).
				Int("radius", pr.Radius).
				Int("used", pr.Used).
				Str("status", pr.Status.String()).
				AnErr("cause", pr.Err).
				Msg("stage degraded")
		}
	}

	return Result{Outcome: OutcomeProcessed, Image: out, Mask: mask, Passes: passes}, nil
}
