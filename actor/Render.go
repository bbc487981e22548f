package actor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"
)

const (
	renderWidth  = 640
	renderHeight = 360
	renderMargin = 32.0
)

// render draws the cumulative return trace of the episode that just
// finished and writes it as a PNG named after the episode counter.
func (d *Driver) render(rewards []float64) error {
	if err := os.MkdirAll(d.renderDir, 0o755); err != nil {
		return fmt.Errorf("render: could not create render directory: %v",
			err)
	}
	path := filepath.Join(d.renderDir,
		fmt.Sprintf("episode-%06d.png", d.episodes))
	return renderTrace(rewards, path)
}

// renderTrace draws the running sum of rewards as a line plot.
func renderTrace(rewards []float64, path string) error {
	if len(rewards) == 0 {
		return fmt.Errorf("rendertrace: nothing to render")
	}

	trace := make([]float64, len(rewards))
	floats.CumSum(trace, rewards)
	low, high := floats.Min(trace), floats.Max(trace)
	if low == high {
		low, high = low-1, high+1
	}

	ctx := gg.NewContext(renderWidth, renderHeight)
	ctx.SetRGB(1, 1, 1)
	ctx.Clear()

	// Zero-return baseline, when it falls inside the plotted range.
	if low <= 0 && 0 <= high {
		y := traceY(0, low, high)
		ctx.SetRGB(0.8, 0.8, 0.8)
		ctx.SetLineWidth(1)
		ctx.DrawLine(renderMargin, y, renderWidth-renderMargin, y)
		ctx.Stroke()
	}

	ctx.SetRGB(0.1, 0.3, 0.7)
	ctx.SetLineWidth(2)
	span := float64(len(trace) - 1)
	if span == 0 {
		span = 1
	}
	for i, value := range trace {
		x := renderMargin + (renderWidth-2*renderMargin)*float64(i)/span
		ctx.LineTo(x, traceY(value, low, high))
	}
	ctx.Stroke()

	if err := ctx.SavePNG(path); err != nil {
		return fmt.Errorf("rendertrace: could not save %v: %v", path, err)
	}
	return nil
}

func traceY(value, low, high float64) float64 {
	return renderHeight - renderMargin -
		(renderHeight-2*renderMargin)*(value-low)/(high-low)
}
