// Package plot renders ltesim datasets to image files.
package plot

import (
	"errors"
	"fmt"
	"math"

	"github.com/iti/ltesim"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// default canvas
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// XYs converts the dataset points to plotter values.  Points with an
// undefined coordinate are dropped; the text outputs keep them.
func XYs(ds *ltesim.Dataset) plotter.XYs {
	xys := make(plotter.XYs, 0, len(ds.Points))
	for _, pt := range ds.Points {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.Y, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: pt.X, Y: pt.Y})
	}
	return xys
}

// New lays the dataset out as a line-and-points plot on its fixed axis ranges
func New(ds *ltesim.Dataset) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = ds.Title
	p.X.Label.Text = ds.XLabel
	p.Y.Label.Text = ds.YLabel
	p.X.Min, p.X.Max = ds.XRange[0], ds.XRange[1]
	p.Y.Min, p.Y.Max = ds.YRange[0], ds.YRange[1]
	p.Add(plotter.NewGrid())

	xys := XYs(ds)
	if len(xys) == 0 {
		return p, nil
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
	}
	p.Add(line, points)
	p.Legend.Add(ds.Name, line, points)
	return p, nil
}

// Render draws the dataset to filename; the extension (.png, .svg, .pdf, ...)
// selects the image format.
func Render(ds *ltesim.Dataset, filename string) error {
	if ds == nil {
		return errors.New("nil dataset")
	}
	p, err := New(ds)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, filename); err != nil {
		return fmt.Errorf("render %s: %w", filename, err)
	}
	return nil
}
