package processor

import (
	"image"
	"sync"
)

// Canvases are the largest allocations in the optimize loop, so their pixel
// buffers are recycled between stages and between requests.
var canvasBuffers = sync.Pool{}

func acquireCanvas(width, height int) (*image.NRGBA, func()) {
	n := width * height * 4

	var pix []uint8
	if v, ok := canvasBuffers.Get().(*[]uint8); ok && cap(*v) >= n {
		pix = (*v)[:n]
	} else {
		pix = make([]uint8, n)
	}

	canvas := &image.NRGBA{
		Pix:    pix,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	released := false
	return canvas, func() {
		if released {
			return
		}
		released = true
		canvas.Pix = nil
		canvasBuffers.Put(&pix)
	}
}
