// Package encoder converts captured page frames into an RTP-compatible
// video codec before they enter the outbound track.
package encoder

import (
	"image"
	"image/color"
)

// ToI420 repacks an image into tightly packed I420 planes. Dimensions
// are rounded down to even values since chroma is subsampled 2x2.
// JPEG captures decode to 4:2:0 YCbCr already, so the fast path is a
// plane copy; anything else goes through per-pixel conversion.
func ToI420(img image.Image) (data []byte, w, h int) {
	b := img.Bounds()
	w, h = b.Dx()&^1, b.Dy()&^1
	if w == 0 || h == 0 {
		return nil, 0, 0
	}
	cw, ch := w/2, h/2
	data = make([]byte, w*h+2*cw*ch)
	y := data[:w*h]
	u := data[w*h : w*h+cw*ch]
	v := data[w*h+cw*ch:]

	if src, ok := img.(*image.YCbCr); ok && src.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		for r := 0; r < h; r++ {
			copy(y[r*w:(r+1)*w], src.Y[src.YOffset(b.Min.X, b.Min.Y+r):])
		}
		for r := 0; r < ch; r++ {
			o := src.COffset(b.Min.X, b.Min.Y+r*2)
			copy(u[r*cw:(r+1)*cw], src.Cb[o:])
			copy(v[r*cw:(r+1)*cw], src.Cr[o:])
		}
		return data, w, h
	}

	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			cr, cg, cb, _ := img.At(b.Min.X+c, b.Min.Y+r).RGBA()
			yy, cbb, crr := color.RGBToYCbCr(uint8(cr>>8), uint8(cg>>8), uint8(cb>>8))
			y[r*w+c] = yy
			if r&1 == 0 && c&1 == 0 {
				u[(r/2)*cw+c/2] = cbb
				v[(r/2)*cw+c/2] = crr
			}
		}
	}
	return data, w, h
}
