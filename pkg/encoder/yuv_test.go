package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestToI420FromYCbCr(t *testing.T) {
	src := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	for i := range src.Y {
		src.Y[i] = byte(i)
	}
	for i := range src.Cb {
		src.Cb[i] = 100 + byte(i)
		src.Cr[i] = 200 + byte(i)
	}

	data, w, h := ToI420(src)
	if w != 4 || h != 4 || len(data) != 4*4*3/2 {
		t.Fatalf("dims %dx%d, %d bytes", w, h, len(data))
	}
	for i := 0; i < 16; i++ {
		if data[i] != byte(i) {
			t.Fatalf("Y[%d] = %d", i, data[i])
		}
	}
	if data[16] != 100 || data[20] != 200 {
		t.Fatalf("chroma planes misplaced: U0=%d V0=%d", data[16], data[20])
	}
}

func TestToI420RoundsOddDimensions(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 3))
	data, w, h := ToI420(src)
	if w != 4 || h != 2 {
		t.Fatalf("dims %dx%d", w, h)
	}
	if len(data) != w*h*3/2 {
		t.Fatalf("len = %d", len(data))
	}
}

func TestToI420FromJpegCapture(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.Set(x, y, gray)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}

	data, w, h := ToI420(img)
	if w != 16 || h != 16 {
		t.Fatalf("dims %dx%d", w, h)
	}
	// gray maps to luma ~128, neutral chroma ~128
	for i, b := range data {
		if b < 120 || b > 136 {
			t.Fatalf("byte %d = %d, want near 128", i, b)
		}
	}
}
