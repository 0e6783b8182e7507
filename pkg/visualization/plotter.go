// Package visualization renders trajectories as 2-D projections to image
// files with gonum/plot.
package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/trajectory"
)

// Planes lists the projections a Plotter can draw.
var Planes = []string{"xy", "xz", "yz"}

// Plotter draws every trajectory of a store as a polyline in one coordinate
// plane. Interpolated samples are marked with crosses and orphan samples are
// drawn as grey dots.
type Plotter struct {
	// axes holds the two position components, 0=x 1=y 2=z
	axes [2]int
	name string

	// Width and Height of the saved image
	Width  vg.Length
	Height vg.Length
}

// NewPlotter creates a plotter for the given plane ("xy", "xz" or "yz").
// An empty plane means "xy".
func NewPlotter(plane string) (*Plotter, error) {
	p := &Plotter{Width: 8 * vg.Inch, Height: 8 * vg.Inch}
	switch plane {
	case "", "xy", "XY":
		p.axes, p.name = [2]int{0, 1}, "xy"
	case "xz", "XZ":
		p.axes, p.name = [2]int{0, 2}, "xz"
	case "yz", "YZ":
		p.axes, p.name = [2]int{1, 2}, "yz"
	default:
		return nil, fmt.Errorf("invalid plane: %s (must be xy, xz or yz)", plane)
	}
	return p, nil
}

// Plane returns the projection name.
func (p *Plotter) Plane() string { return p.name }

// Project maps sample positions onto the plotter's plane.
func (p *Plotter) Project(samples []models.Sample) plotter.XYs {
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i].X = models.Axis(s.Position, p.axes[0])
		pts[i].Y = models.Axis(s.Position, p.axes[1])
	}
	return pts
}

// Plot builds the figure for store.
func (p *Plotter) Plot(store *trajectory.Store) (*plot.Plot, error) {
	fig := plot.New()
	fig.Title.Text = fmt.Sprintf("%d trajectories (%s)", store.Len(), p.name)
	fig.X.Label.Text = p.name[:1]
	fig.Y.Label.Text = p.name[1:]

	var interpolated []models.Sample
	for i, id := range store.IDs() {
		tr := store.Trajectory(id)

		line, err := plotter.NewLine(p.Project(tr))
		if err != nil {
			return nil, fmt.Errorf("trajectory %d: %w", id, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		fig.Add(line)

		for _, s := range tr {
			if s.Interpolated {
				interpolated = append(interpolated, s)
			}
		}
	}

	if orphans := store.Orphans(); len(orphans) > 0 {
		sc, err := plotter.NewScatter(p.Project(orphans))
		if err != nil {
			return nil, fmt.Errorf("orphans: %w", err)
		}
		sc.GlyphStyle.Color = color.Gray{Y: 160}
		sc.GlyphStyle.Radius = vg.Points(1)
		fig.Add(sc)
		fig.Legend.Add("orphan", sc)
	}

	if len(interpolated) > 0 {
		sc, err := plotter.NewScatter(p.Project(interpolated))
		if err != nil {
			return nil, fmt.Errorf("interpolated samples: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = color.Black
		sc.GlyphStyle.Radius = vg.Points(2)
		fig.Add(sc)
		fig.Legend.Add("interpolated", sc)
	}

	return fig, nil
}

// SavePNG renders store and writes it to path. The image format follows the
// file extension.
func (p *Plotter) SavePNG(store *trajectory.Store, path string) error {
	fig, err := p.Plot(store)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := fig.Save(p.Width, p.Height, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// SaveProjections writes one image per plane into outputDir, named
// <prefix>_<plane>.png.
func SaveProjections(store *trajectory.Store, outputDir, prefix string) ([]string, error) {
	var files []string
	for _, plane := range Planes {
		p, err := NewPlotter(plane)
		if err != nil {
			return nil, err
		}
		name := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", prefix, plane))
		if err := p.SavePNG(store, name); err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	return files, nil
}
