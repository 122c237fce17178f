// Package waveform exports captured channels as static step plots.
package waveform

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// ErrFormat is returned by Save for file extensions the plot backend cannot
// write.
var ErrFormat = errors.New("waveform: unsupported image format")

// lane is the vertical distance between channel baselines.
const lane = 1.5

// Options controls Render.
type Options struct {
	Title string
	// From and To bound the plotted window in ticks. Both zero plots the
	// whole capture.
	From, To int64
	// TickRate, when positive, labels the X axis in seconds instead of ticks.
	TickRate int64
	// Results annotate each decoded byte at its frame anchor.
	Results []*decode.Result

	Width, Height vg.Length
}

// DefaultOptions returns a 24x12 cm plot of the whole capture.
func DefaultOptions() Options {
	return Options{Width: 24 * vg.Centimeter, Height: 12 * vg.Centimeter}
}

// Render draws one step line per channel, stacked in set order with the
// first channel on top.
func Render(set *trace.Set, opts Options) (*plot.Plot, error) {
	if set.Len() == 0 {
		return nil, fmt.Errorf("waveform: no channels to plot")
	}
	from, to := opts.From, opts.To
	if from == 0 && to == 0 {
		from, to = set.Span()
	}
	if to <= from {
		to = from + 1
	}
	scale := 1.0
	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "ticks"
	if opts.TickRate > 0 {
		scale = 1 / float64(opts.TickRate)
		p.X.Label.Text = "seconds"
	}
	p.X.Min, p.X.Max = float64(from)*scale, float64(to)*scale

	names := set.Channels()
	ticks := make([]plot.Tick, 0, len(names))
	base := make(map[string]float64, len(names))
	for i, name := range names {
		tr, err := set.Lookup(name)
		if err != nil {
			return nil, err
		}
		y := float64(len(names)-1-i) * lane
		base[name] = y
		line, err := plotter.NewLine(Steps(tr, from, to, scale, y))
		if err != nil {
			return nil, fmt.Errorf("waveform: channel %q: %w", name, err)
		}
		line.StepStyle = plotter.PostStep
		line.Color = plotutil.Color(i)
		p.Add(line)
		ticks = append(ticks, plot.Tick{Value: y + 0.5, Label: name})
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Min, p.Y.Max = -0.25, float64(len(names)-1)*lane+1.25

	for _, res := range opts.Results {
		if err := annotate(p, res, base, from, to, scale); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Steps converts the part of tr inside [from, to) into step points offset
// by y. Times are multiplied by scale.
func Steps(tr *trace.Trace, from, to int64, scale, y float64) plotter.XYs {
	edges := tr.TransitionsIn(from, to)
	xys := make(plotter.XYs, 0, len(edges)+2)
	xys = append(xys, plotter.XY{X: float64(from) * scale, Y: y + float64(tr.LevelAt(from))})
	for _, e := range edges {
		xys = append(xys, plotter.XY{X: float64(e.Time) * scale, Y: y + float64(e.Edge.Level())})
	}
	last := xys[len(xys)-1].Y
	return append(xys, plotter.XY{X: float64(to) * scale, Y: last})
}

func annotate(p *plot.Plot, res *decode.Result, base map[string]float64, from, to int64, scale float64) error {
	var labels plotter.XYLabels
	for _, s := range res.Streams {
		y, ok := base[s.Channel]
		if !ok {
			continue
		}
		for _, b := range s.Bytes {
			if b.Time < from || b.Time >= to {
				continue
			}
			text := fmt.Sprintf("%02X", b.Value)
			if !b.Valid {
				text += "!"
			}
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(b.Time) * scale, Y: y + 1.1})
			labels.Labels = append(labels.Labels, text)
		}
	}
	if len(labels.Labels) == 0 {
		return nil
	}
	l, err := plotter.NewLabels(labels)
	if err != nil {
		return fmt.Errorf("waveform: labels: %w", err)
	}
	p.Add(l)
	return nil
}

// Save writes p to path; the extension selects PNG, SVG, PDF or EPS.
func Save(p *plot.Plot, path string, w, h vg.Length) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".eps", ".jpg", ".jpeg", ".tif", ".tiff":
	default:
		return fmt.Errorf("%w: %q", ErrFormat, filepath.Ext(path))
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("waveform: save %s: %w", path, err)
	}
	return nil
}
