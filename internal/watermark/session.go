package watermark

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrBusy is returned when an inpaint run is already in flight for a session.
var ErrBusy = errors.New("watermark: inpaint already running for this session")

// State is the paint state of a Session.
type State int

const (
	Idle State = iota
	Painting
)

func (s State) String() string {
	if s == Painting {
		return "painting"
	}
	return "idle"
}

// Brush sizes manual strokes. Segments are drawn LineScale times wider than
// the point radius.
type Brush struct {
	Radius    int
	LineScale float64
}

func DefaultBrush() Brush {
	return Brush{Radius: 25, LineScale: 1.2}
}

func (b Brush) lineWidth() int {
	return max(1, int(float64(b.Radius)*b.LineScale))
}

// DisplayToPixel maps a normalized display position (origin bottom left) to
// image pixel space (origin top left). ok is false outside [0,1]x[0,1].
func DisplayToPixel(xr, yr float64, cols, rows int) (pt image.Point, ok bool) {
	if xr < 0 || xr > 1 || yr < 0 || yr > 1 {
		return image.Point{}, false
	}
	return image.Pt(int(xr*float64(cols)), int((1-yr)*float64(rows))), true
}

// Session owns the image and the hand painted mask of one interactive
// masking session. Stroke events drive the idle/painting state machine; all
// methods are safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	brush   Brush
	image   gocv.Mat
	mask    gocv.Mat
	state   State
	last    image.Point
	running bool
}

// NewSession starts a session on a private copy of img with a blank mask.
func NewSession(img gocv.Mat, brush Brush) (*Session, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	return &Session{
		brush: brush,
		image: img.Clone(),
		mask:  NewMask(img.Rows(), img.Cols()),
	}, nil
}

// Close releases the session matrices.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image.Close()
	s.mask.Close()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StrokeStart begins a stroke and paints a disc at the start position. It
// returns false, staying idle, when the position is off the image.
func (s *Session) StrokeStart(xr, yr float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt, ok := DisplayToPixel(xr, yr, s.mask.Cols(), s.mask.Rows())
	if !ok {
		return false, nil
	}
	s.state = Painting
	s.last = pt
	return true, PaintPoint(&s.mask, pt.X, pt.Y, s.brush.Radius)
}

// StrokeMove extends the current stroke with a segment from the previous
// position. Moves while idle or off the image are ignored.
func (s *Session) StrokeMove(xr, yr float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Painting {
		return false, nil
	}
	pt, ok := DisplayToPixel(xr, yr, s.mask.Cols(), s.mask.Rows())
	if !ok {
		return false, nil
	}
	from := s.last
	s.last = pt
	return true, PaintSegment(&s.mask, from.X, from.Y, pt.X, pt.Y, s.brush.lineWidth())
}

// StrokeEnd returns the session to idle.
func (s *Session) StrokeEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.last = image.Point{}
}

// Merge unions mask, for example an automatic detection, into the session mask.
func (s *Session) Merge(mask gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := Binarize(mask)
	if err != nil {
		return err
	}
	defer m.Close()
	return Union(&s.mask, m)
}

// Snapshot returns a private copy of the current mask.
func (s *Session) Snapshot() gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask.Clone()
}

// Preview returns the image with painted pixels marked in red.
func (s *Session) Preview() (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	preview := s.image.Clone()
	red := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), s.image.Rows(), s.image.Cols(), s.image.Type())
	defer red.Close()
	if err := red.CopyToWithMask(&preview, s.mask); err != nil {
		preview.Close()
		return gocv.NewMat(), fmt.Errorf("preview: %w", err)
	}
	return preview, nil
}

// Apply inpaints the session image with a snapshot of the current mask. It
// can be called at any time; painting may continue while it runs.
func (s *Session) Apply(p *Pipeline) (Result, error) {
	img, mask, err := s.begin()
	if err != nil {
		return Result{}, err
	}
	defer s.finish()
	defer img.Close()
	defer mask.Close()

	return p.Manual(img, mask)
}

// ApplyAsync runs Apply on a background goroutine and hands the result to
// done. It returns ErrBusy if a run is already in flight.
func (s *Session) ApplyAsync(p *Pipeline, done func(Result, error)) error {
	img, mask, err := s.begin()
	if err != nil {
		return err
	}

	go func() {
		res, err := p.Manual(img, mask)
		img.Close()
		mask.Close()
		s.finish()
		done(res, err)
	}()
	return nil
}

// begin marks a run in flight and copies the inputs it needs.
func (s *Session) begin() (gocv.Mat, gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return gocv.Mat{}, gocv.Mat{}, ErrBusy
	}
	s.running = true
	return s.image.Clone(), s.mask.Clone(), nil
}

func (s *Session) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
