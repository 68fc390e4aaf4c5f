package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Point is a position in normalized display space: x and y in [0,1] with the
// origin at the bottom left.
type Point struct {
	X, Y float64
}

// Stroke is one drag gesture, from stroke start to stroke end.
type Stroke []Point

type strokeFile struct {
	Strokes [][][]float64 `yaml:"strokes"`
}

// LoadStrokes reads a YAML file of the form
//
//	strokes:
//	  - [[0.10, 0.90], [0.15, 0.88], [0.20, 0.85]]
//	  - [[0.50, 0.50]]
func LoadStrokes(path string) ([]Stroke, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("strokes: read %s: %w", path, err)
	}

	var f strokeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("strokes: parse %s: %w", path, err)
	}

	strokes := make([]Stroke, 0, len(f.Strokes))
	for i, raw := range f.Strokes {
		if len(raw) == 0 {
			continue
		}
		s := make(Stroke, 0, len(raw))
		for j, p := range raw {
			if len(p) != 2 {
				return nil, fmt.Errorf("strokes: %s: stroke %d point %d has %d coordinates, want 2", path, i, j, len(p))
			}
			s = append(s, Point{X: p[0], Y: p[1]})
		}
		strokes = append(strokes, s)
	}
	return strokes, nil
}
