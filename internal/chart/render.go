// Package chart renders indicator time series as PNG line charts.
//
// Series assigned to the secondary axis are drawn in a second panel below
// the primary one, sharing the year axis, since the plotting library draws
// a single Y axis per plot.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Axis names which Y axis a series is plotted against.
type Axis string

const (
	AxisPrimary   Axis = "y"
	AxisSecondary Axis = "y2"
)

// ErrNoSeries is returned when there is nothing to draw.
var ErrNoSeries = errors.New("chart has no data points")

// Point is one observation of a series.
type Point struct {
	Year  int
	Value float64
	Label string
}

// Series is one line on the chart.
type Series struct {
	Name   string
	Axis   Axis
	Points []Point
}

// Spec describes a chart.
type Spec struct {
	Title      string
	YTitle     string // primary axis title
	Y2Title    string // secondary axis title
	Series     []Series
	Highlight  []int // years marked with a dashed vertical line
	ShowLabels bool  // annotate each point with its label
	Width      vg.Length
	Height     vg.Length
}

// DefaultWidth and DefaultHeight size charts when Spec leaves them zero.
const (
	DefaultWidth  = 10 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

var highlightColor = color.Gray{Y: 128}

// RenderPNG draws spec and writes it to w as PNG.
func RenderPNG(w io.Writer, spec Spec) error {
	primary, secondary := split(spec.Series)
	if len(primary) == 0 && len(secondary) == 0 {
		return ErrNoSeries
	}

	width, height := spec.Width, spec.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	var rows [][]*plot.Plot
	colorIdx := 0
	for _, panel := range []struct {
		series []Series
		title  string
	}{{primary, spec.YTitle}, {secondary, spec.Y2Title}} {
		if len(panel.series) == 0 {
			continue
		}
		p, err := panelPlot(panel.series, panel.title, spec, &colorIdx)
		if err != nil {
			return err
		}
		rows = append(rows, []*plot.Plot{p})
	}
	rows[0][0].Title.Text = spec.Title

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: len(rows), Cols: 1, PadY: vg.Points(8)}
	canvases := plot.Align(rows, tiles, dc)
	for i := range rows {
		rows[i][0].Draw(canvases[i][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func split(series []Series) (primary, secondary []Series) {
	for _, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		if s.Axis == AxisSecondary {
			secondary = append(secondary, s)
		} else {
			primary = append(primary, s)
		}
	}
	return primary, secondary
}

func panelPlot(series []Series, yTitle string, spec Spec, colorIdx *int) (*plot.Plot, error) {
	p := plot.New()
	p.Y.Label.Text = yTitle
	p.X.Tick.Marker = yearTicks{}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		xys := make(plotter.XYs, len(s.Points))
		labels := make([]string, len(s.Points))
		for i, pt := range s.Points {
			xys[i] = plotter.XY{X: float64(pt.Year), Y: pt.Value}
			labels[i] = pt.Label
			lo, hi = math.Min(lo, pt.Value), math.Max(hi, pt.Value)
		}

		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Name, err)
		}
		c := plotutil.Color(*colorIdx)
		*colorIdx++
		line.Color = c
		line.Width = vg.Points(2)
		points.Color = c
		points.Shape = draw.CircleGlyph{}
		p.Add(line, points)
		p.Legend.Add(s.Name, line, points)

		if spec.ShowLabels {
			l, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
			if err != nil {
				return nil, fmt.Errorf("series %q labels: %w", s.Name, err)
			}
			p.Add(l)
		}
	}

	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	for _, year := range spec.Highlight {
		vline, err := plotter.NewLine(plotter.XYs{{X: float64(year), Y: lo}, {X: float64(year), Y: hi}})
		if err != nil {
			return nil, err
		}
		vline.Color = highlightColor
		vline.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		p.Add(vline)
	}
	return p, nil
}

// yearTicks places a labelled tick on every whole year, thinning the
// labels when the range is long.
type yearTicks struct{}

func (yearTicks) Ticks(min, max float64) []plot.Tick {
	first, last := int(math.Ceil(min)), int(math.Floor(max))
	step := 1
	for (last-first)/step > 12 {
		step++
	}

	var ticks []plot.Tick
	for y := first; y <= last; y++ {
		t := plot.Tick{Value: float64(y)}
		if (y-first)%step == 0 {
			t.Label = strconv.Itoa(y)
		}
		ticks = append(ticks, t)
	}
	return ticks
}
