// Package main implements a watermark removal tool using inpainting techniques.
// The watermark region is found automatically, painted by hand as strokes, or
// placed from known templates; the region is then reconstructed by a schedule
// of inpainting passes of growing radius:
// Read the Image: Load a PNG, JPEG, BMP, WebP or TGA image.
// Detection: Combine a global and an adaptive threshold on the equalized grayscale image.
// Cleaning: Remove specks by opening, close gaps, drop components below the area floor.
// Refinement: Grow and feather the mask so anti-aliased edges are covered.
// Watermark Removal: Inpaint with radii 3, 6 and 11, retrying failed passes at half radius.
// Post-processing: Bilateral smoothing and a mild sharpen.
package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/cyber-nic/rm-watermarks/internal/config"
	"github.com/cyber-nic/rm-watermarks/internal/imageio"
	"github.com/cyber-nic/rm-watermarks/internal/watermark"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// exitNothingDetected is returned when automatic detection finds no watermark.
const exitNothingDetected = 2

func main() {
	// Read flags
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	srcPath := flag.String("src", "", "sets input image path")
	dstPath := flag.String("dst", "watermark_removed.png", "sets destination image path")
	configFilename := flag.String("config", "local.env.yaml", "Config File")
	debugFlag := flag.Bool("debug", false, "Debug logging level")
	humanFlag := flag.Bool("human", false, "Human readable console logs")
	mode := flag.String("mode", "auto", "auto, manual or template")
	strokesPath := flag.String("strokes", "", "YAML file of manual strokes (manual mode)")
	seed := flag.Bool("seed", false, "seed the manual mask with automatic detection")
	method := flag.String("method", "", "inpaint method: telea or ns")
	radii := flag.String("radii", "", "comma separated inpaint radii, e.g. 3,6,11")
	flag.Parse()

	// Read config file
	cfg, err := config.Load(*configFilename)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	flags := config.Flags{Debug: *debugFlag, Human: *humanFlag, Method: *method, Radii: *radii}
	if err := cfg.Resolve(flags); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// Set log level
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	if cfg.Info {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Human {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Perform input validation
	if *srcPath == "" {
		log.Fatal().Msg("src is required")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// Start
	start := time.Now()
	base := filepath.Base(*srcPath)
	logger := log.With().Str("image", base).Logger()
	logger.Debug().Str("mode", *mode).Str("src", *srcPath).Msg(base)

	// Read image
	src, err := imageio.Load(*srcPath)
	if err != nil {
		logger.Fatal().Err(err).Msg(base)
	}
	defer src.Close()

	metrics, err := watermark.ChannelMetrics(src)
	if err != nil {
		logger.Fatal().Err(err).Msg(base)
	}

	p, err := newPipeline(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg(base)
	}

	var res watermark.Result
	switch *mode {
	case "auto":
		res, err = p.Auto(src)
	case "manual":
		res, err = runManual(p, src, cfg, *strokesPath, *seed)
	case "template":
		res, err = runTemplate(p, src, cfg.Masks)
	default:
		err = errors.New("unknown mode " + *mode)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg(base)
	}
	defer res.Close()

	if res.Outcome == watermark.OutcomeNothingDetected {
		logger.Warn().
			Int64("duration(ms)", (time.Since(start)).Milliseconds()).
			Msg("no watermark detected")
		res.Close()
		src.Close()
		os.Exit(exitNothingDetected)
	}

	// Measure what was removed
	before, err := watermark.RegionStats(src, res.Mask, cfg.Detection.GlobalThreshold)
	if err != nil {
		logger.Fatal().Err(err).Msg(base)
	}
	after, err := watermark.RegionStats(res.Image, res.Mask, cfg.Detection.GlobalThreshold)
	if err != nil {
		logger.Fatal().Err(err).Msg(base)
	}

	// Write file
	if err := imageio.Save(*dstPath, res.Image); err != nil {
		logger.Fatal().Err(err).Msg(base)
	}

	// Done
	logger.Info().
		Int64("duration(ms)", (time.Since(start)).Milliseconds()).
		Float64("brightness", metrics.Brightness).
		Float64("mean", metrics.Mean).
		Float64("stdDev", metrics.StdDev).
		Bool("color", metrics.Color).
		Int("components", len(res.Components)).
		Int("masked", before.Pixels).
		Int("bright_before", before.Bright).
		Int("bright_after", after.Bright).
		Float64("mean_before", before.Mean).
		Float64("mean_after", after.Mean).
		Bool("degraded", res.Degraded()).
		Str("dst", *dstPath).
		Msg(base)
}

// newPipeline maps the configuration onto the pipeline stages.
func newPipeline(cfg config.AppConfig, logger zerolog.Logger) (*watermark.Pipeline, error) {
	m, err := watermark.ParseMethod(cfg.Inpaint.Method)
	if err != nil {
		return nil, err
	}

	p := watermark.NewPipeline()
	p.Log = logger
	p.Thresholder = watermark.Thresholder{
		GlobalThreshold: cfg.Detection.GlobalThreshold,
		AdaptiveBlock:   cfg.Detection.AdaptiveBlock,
		AdaptiveOffset:  cfg.Detection.AdaptiveOffset,
	}
	p.Cleaner = watermark.Cleaner{KernelSize: cfg.Morph.KernelSize, AreaFloor: cfg.Detection.AreaFloor}
	p.Refiner = watermark.Refiner{
		KernelSize: cfg.Morph.KernelSize,
		BlurKernel: cfg.Refine.BlurKernel,
		Threshold:  cfg.Refine.Threshold,
	}
	p.Inpainter.Radii = cfg.Inpaint.Radii
	p.Inpainter.Method = m
	p.Inpainter.Bilateral = watermark.Bilateral{
		Diameter:   cfg.Inpaint.Bilateral.Diameter,
		SigmaColor: cfg.Inpaint.Bilateral.SigmaColor,
		SigmaSpace: cfg.Inpaint.Bilateral.SigmaSpace,
	}
	p.Inpainter.Sharpen = cfg.Inpaint.Sharpen
	p.Inpainter.Log = logger
	return p, nil
}

// runManual replays the strokes of a strokes file through a masking session
// and inpaints the painted mask in the background.
func runManual(p *watermark.Pipeline, src gocv.Mat, cfg config.AppConfig, strokesPath string, seed bool) (watermark.Result, error) {
	if strokesPath == "" && !seed {
		return watermark.Result{}, errors.New("manual mode needs -strokes or -seed")
	}

	s, err := watermark.NewSession(src, watermark.Brush{Radius: cfg.Brush.Radius, LineScale: cfg.Brush.LineScale})
	if err != nil {
		return watermark.Result{}, err
	}
	defer s.Close()

	if seed {
		perf := time.Now()
		mask, comps, found, err := p.DetectMask(src)
		if err != nil {
			return watermark.Result{}, err
		}
		if found {
			err = s.Merge(mask)
		}
		mask.Close()
		if err != nil {
			return watermark.Result{}, err
		}
		p.Log.Debug().
			Int64("duration(ms)", (time.Since(perf)).Milliseconds()).
			Int("components", len(comps)).
			Msg("seed")
	}

	if strokesPath != "" {
		strokes, err := config.LoadStrokes(strokesPath)
		if err != nil {
			return watermark.Result{}, err
		}
		for _, stroke := range strokes {
			if err := replay(s, stroke); err != nil {
				return watermark.Result{}, err
			}
		}
		p.Log.Debug().Int("strokes", len(strokes)).Msg("strokes")
	}

	type outcome struct {
		res watermark.Result
		err error
	}
	done := make(chan outcome, 1)
	if err := s.ApplyAsync(p, func(res watermark.Result, err error) { done <- outcome{res, err} }); err != nil {
		return watermark.Result{}, err
	}
	o := <-done
	return o.res, o.err
}

// runTemplate loads the configured watermark templates and inpaints where they
// land on src.
func runTemplate(p *watermark.Pipeline, src gocv.Mat, masks []config.Mask) (watermark.Result, error) {
	if len(masks) == 0 {
		return watermark.Result{}, errors.New("template mode needs masks in the config file")
	}

	templates := make([]watermark.Template, 0, len(masks))
	defer func() {
		for _, t := range templates {
			t.Mask.Close()
		}
	}()

	for _, m := range masks {
		perf := time.Now()
		tpl, err := imageio.LoadGray(m.File)
		if err != nil {
			return watermark.Result{}, err
		}
		templates = append(templates, watermark.Template{Mask: tpl, Gravity: m.Gravity, ExcludeForeground: m.Foreground})
		p.Log.Debug().
			Int64("duration(ms)", (time.Since(perf)).Milliseconds()).
			Str("mask", m.File).
			Str("gravity", m.Gravity).
			Msg("template")
	}

	return p.Template(src, templates)
}

// replay feeds one stroke to the session. Points off the image are skipped.
func replay(s *watermark.Session, stroke config.Stroke) error {
	defer s.StrokeEnd()
	if _, err := s.StrokeStart(stroke[0].X, stroke[0].Y); err != nil {
		return err
	}
	for _, pt := range stroke[1:] {
		if _, err := s.StrokeMove(pt.X, pt.Y); err != nil {
			return err
		}
	}
	return nil
}
