package plot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/foxseedlab/genkaipoint/internal/genkai"
	plotpkg "github.com/foxseedlab/genkaipoint/internal/plot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var errNoSeries = errors.New("no series to render")

const (
	imageWidth  = 12 * vg.Inch
	imageHeight = 6.75 * vg.Inch
)

type GonumRenderer struct{}

func NewGonumRenderer() *GonumRenderer {
	return &GonumRenderer{}
}

func (r *GonumRenderer) Render(series []genkai.Series) (plotpkg.Image, error) {
	if len(series) == 0 {
		return plotpkg.Image{}, errNoSeries
	}

	p := plot.New()
	p.X.Label.Text = "days"
	p.Y.Label.Text = "total VC hours"
	p.Y.Min = 0
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	for i, s := range series {
		pts := make(plotter.XYs, len(s.Hours))
		for j, h := range s.Hours {
			pts[j].X = float64(j)
			pts[j].Y = h
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return plotpkg.Image{}, fmt.Errorf("build line for %s: %w", s.UserID, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(legendLabel(s), line)
	}

	wt, err := p.WriterTo(imageWidth, imageHeight, "png")
	if err != nil {
		return plotpkg.Image{}, fmt.Errorf("prepare png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return plotpkg.Image{}, fmt.Errorf("encode png: %w", err)
	}
	return plotpkg.Image{Filename: "graph.png", ContentType: "image/png", Body: buf.Bytes()}, nil
}

func legendLabel(s genkai.Series) string {
	if s.Name != "" {
		return s.Name
	}
	return s.UserID
}
