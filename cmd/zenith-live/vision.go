package main

import (
	"image"
	"image/color"
	"sync/atomic"
)

// testPattern is a FrameSource that renders moving color bars, standing in
// for a camera in the terminal client.
type testPattern struct {
	width, height int
	frame         atomic.Int64
}

func newTestPattern(width, height int) *testPattern {
	return &testPattern{width: width, height: height}
}

var barColors = []color.RGBA{
	{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	{R: 0xff, G: 0xff, B: 0x00, A: 0xff},
	{R: 0x00, G: 0xff, B: 0xff, A: 0xff},
	{R: 0x00, G: 0xff, B: 0x00, A: 0xff},
	{R: 0xff, G: 0x00, B: 0xff, A: 0xff},
	{R: 0xff, G: 0x00, B: 0x00, A: 0xff},
	{R: 0x00, G: 0x00, B: 0xff, A: 0xff},
}

func (p *testPattern) Frame() (image.Image, error) {
	n := int(p.frame.Add(1))
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	barWidth := max(p.width/len(barColors), 1)
	for y := range p.height {
		for x := range p.width {
			bar := ((x / barWidth) + n) % len(barColors)
			img.SetRGBA(x, y, barColors[bar])
		}
	}
	return img, nil
}
