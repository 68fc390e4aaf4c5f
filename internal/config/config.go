// Package config loads the YAML settings shared by the detection, cleaning,
// refinement and inpainting stages.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mask is a watermark template placed on the image by gravity.
type Mask struct {
	File       string `yaml:"file"`
	Gravity    string `yaml:"gravity"`
	Foreground bool   `yaml:"foreground"`
}

type Detection struct {
	AreaFloor       int     `yaml:"area_floor"`
	GlobalThreshold int     `yaml:"global_threshold"`
	AdaptiveBlock   int     `yaml:"adaptive_block"`
	AdaptiveOffset  float32 `yaml:"adaptive_offset"`
}

type Morph struct {
	KernelSize int `yaml:"kernel_size"`
}

type Refine struct {
	BlurKernel int `yaml:"blur_kernel"`
	Threshold  int `yaml:"threshold"`
}

type Bilateral struct {
	Diameter   int     `yaml:"diameter"`
	SigmaColor float64 `yaml:"sigma_color"`
	SigmaSpace float64 `yaml:"sigma_space"`
}

type Inpaint struct {
	Radii     []int     `yaml:"radii"`
	Method    string    `yaml:"method"`
	Bilateral Bilateral `yaml:"bilateral"`
	Sharpen   bool      `yaml:"sharpen"`
}

type Brush struct {
	Radius    int     `yaml:"radius"`
	LineScale float64 `yaml:"line_scale"`
}

// AppConfig is the full set of recognized options.
type AppConfig struct {
	Debug bool `yaml:"debug"`
	Info  bool `yaml:"info"`
	Human bool `yaml:"human"`

	Detection Detection `yaml:"detection"`
	Morph     Morph     `yaml:"morph"`
	Refine    Refine    `yaml:"refine"`
	Inpaint   Inpaint   `yaml:"inpaint"`
	Brush     Brush     `yaml:"brush"`
	Masks     []Mask    `yaml:"masks"`
}

// Flags carries command line overrides. Zero values leave the file setting alone.
type Flags struct {
	Debug  bool
	Human  bool
	Method string
	Radii  string
}

// Default returns the tuned defaults of the pipeline.
func Default() AppConfig {
	return AppConfig{
		Detection: Detection{
			AreaFloor:       80,
			GlobalThreshold: 220,
			AdaptiveBlock:   31,
			AdaptiveOffset:  -10,
		},
		Morph:  Morph{KernelSize: 5},
		Refine: Refine{BlurKernel: 9, Threshold: 10},
		Inpaint: Inpaint{
			Radii:     []int{3, 6, 11},
			Method:    "telea",
			Bilateral: Bilateral{Diameter: 5, SigmaColor: 75, SigmaSpace: 75},
			Sharpen:   true,
		},
		Brush: Brush{Radius: 25, LineScale: 1.2},
	}
}

// Load reads a YAML config file on top of Default. A missing file is not an
// error: the defaults are returned as is.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return AppConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Resolve applies command line overrides.
func (c *AppConfig) Resolve(flags Flags) error {
	if flags.Debug {
		c.Debug = true
	}
	if flags.Human {
		c.Human = true
	}
	if flags.Method != "" {
		c.Inpaint.Method = flags.Method
	}
	if flags.Radii != "" {
		radii, err := ParseRadii(flags.Radii)
		if err != nil {
			return err
		}
		c.Inpaint.Radii = radii
	}
	return nil
}

// ParseRadii parses a comma separated radius schedule such as "3,6,11".
func ParseRadii(s string) ([]int, error) {
	var radii []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		r, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("config: radius %q: %w", f, err)
		}
		radii = append(radii, r)
	}
	if len(radii) == 0 {
		return nil, fmt.Errorf("config: empty radius schedule %q", s)
	}
	return radii, nil
}

// Validate rejects settings the stages cannot run with.
func (c AppConfig) Validate() error {
	var errs []error

	if c.Detection.AreaFloor < 0 {
		errs = append(errs, fmt.Errorf("detection.area_floor must be >= 0, got %d", c.Detection.AreaFloor))
	}
	if c.Detection.GlobalThreshold < 1 || c.Detection.GlobalThreshold > 255 {
		errs = append(errs, fmt.Errorf("detection.global_threshold must be in [1,255], got %d", c.Detection.GlobalThreshold))
	}
	if !oddAtLeast(c.Detection.AdaptiveBlock, 3) {
		errs = append(errs, fmt.Errorf("detection.adaptive_block must be odd and >= 3, got %d", c.Detection.AdaptiveBlock))
	}
	if c.Morph.KernelSize < 1 {
		errs = append(errs, fmt.Errorf("morph.kernel_size must be >= 1, got %d", c.Morph.KernelSize))
	}
	if !oddAtLeast(c.Refine.BlurKernel, 1) {
		errs = append(errs, fmt.Errorf("refine.blur_kernel must be odd, got %d", c.Refine.BlurKernel))
	}
	if c.Refine.Threshold < 0 || c.Refine.Threshold > 254 {
		errs = append(errs, fmt.Errorf("refine.threshold must be in [0,254], got %d", c.Refine.Threshold))
	}
	if len(c.Inpaint.Radii) == 0 {
		errs = append(errs, errors.New("inpaint.radii must not be empty"))
	}
	for _, r := range c.Inpaint.Radii {
		if r < 1 {
			errs = append(errs, fmt.Errorf("inpaint.radii must be positive, got %d", r))
			break
		}
	}
	switch strings.ToLower(c.Inpaint.Method) {
	case "", "telea", "fast-marching", "ns", "fluid-dynamics", "navier-stokes":
	default:
		errs = append(errs, fmt.Errorf("inpaint.method %q is not one of telea, ns", c.Inpaint.Method))
	}
	if c.Brush.Radius < 1 {
		errs = append(errs, fmt.Errorf("brush.radius must be >= 1, got %d", c.Brush.Radius))
	}
	if c.Brush.LineScale <= 0 {
		errs = append(errs, fmt.Errorf("brush.line_scale must be > 0, got %g", c.Brush.LineScale))
	}
	for i, m := range c.Masks {
		if m.File == "" {
			errs = append(errs, fmt.Errorf("masks[%d].file is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func oddAtLeast(n, least int) bool {
	return n >= least && n%2 == 1
}
