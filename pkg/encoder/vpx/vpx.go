// Package vpx is a minimal libvpx VP8 encoder for realtime streams.
package vpx

/*
#cgo pkg-config: vpx

#include "vpx/vpx_encoder.h"
#include "vpx/vp8cx.h"

#include <string.h>

static vpx_codec_err_t enc_default_cfg(vpx_codec_enc_cfg_t *cfg) {
	return vpx_codec_enc_config_default(vpx_codec_vp8_cx(), cfg, 0);
}

static vpx_codec_err_t enc_init(vpx_codec_ctx_t *ctx, vpx_codec_enc_cfg_t *cfg) {
	return vpx_codec_enc_init(ctx, vpx_codec_vp8_cx(), cfg, 0);
}

static int plane_w(const vpx_image_t *img, int plane) {
	return plane > 0 && img->x_chroma_shift > 0 ? (img->d_w + 1) >> img->x_chroma_shift : img->d_w;
}

static int plane_h(const vpx_image_t *img, int plane) {
	return plane > 0 && img->y_chroma_shift > 0 ? (img->d_h + 1) >> img->y_chroma_shift : img->d_h;
}

// img_load copies tightly packed I420 planes into the strided image.
static void img_load(vpx_image_t *dst, const unsigned char *src) {
	for (int plane = 0; plane < 3; ++plane) {
		unsigned char *buf = dst->planes[plane];
		const int stride = dst->stride[plane];
		const int w = plane_w(dst, plane);
		const int h = plane_h(dst, plane);
		for (int y = 0; y < h; ++y) {
			memcpy(buf, src, w);
			buf += stride;
			src += w;
		}
	}
}

static const void *next_frame(vpx_codec_ctx_t *ctx, vpx_codec_iter_t *iter, int *size) {
	const vpx_codec_cx_pkt_t *pkt = vpx_codec_get_cx_data(ctx, iter);
	if (pkt != NULL && pkt->kind == VPX_CODEC_CX_FRAME_PKT) {
		*size = (int)pkt->data.frame.sz;
		return pkt->data.frame.buf;
	}
	return NULL;
}
*/
import "C"
import (
	"errors"
	"unsafe"
)

type Options struct {
	// target bitrate, kbps
	Bitrate int
	// a keyframe is forced every KeyframeInt frames; 0 disables forcing
	KeyframeInt int
}

type Option func(*Options)

func WithBitrate(kbps int) Option       { return func(o *Options) { o.Bitrate = kbps } }
func WithKeyframeInterval(n int) Option { return func(o *Options) { o.KeyframeInt = n } }

// Encoder turns raw I420 frames into VP8 frames. Not safe for
// concurrent use; callers serialize Encode and Close.
type Encoder struct {
	img    C.vpx_image_t
	ctx    C.vpx_codec_ctx_t
	frames C.vpx_codec_pts_t
	kfi    int
}

func New(width, height int, options ...Option) (*Encoder, error) {
	opts := Options{Bitrate: 1200, KeyframeInt: 10}
	for _, o := range options {
		o(&opts)
	}
	e := &Encoder{kfi: opts.KeyframeInt}
	if C.vpx_img_alloc(&e.img, C.VPX_IMG_FMT_I420, C.uint(width), C.uint(height), 1) == nil {
		return nil, errors.New("vpx: image alloc fail")
	}
	var cfg C.vpx_codec_enc_cfg_t
	if C.enc_default_cfg(&cfg) != 0 {
		C.vpx_img_free(&e.img)
		return nil, errors.New("vpx: no default config")
	}
	cfg.g_w = C.uint(width)
	cfg.g_h = C.uint(height)
	cfg.rc_target_bitrate = C.uint(opts.Bitrate)
	cfg.g_error_resilient = 1
	if C.enc_init(&e.ctx, &cfg) != 0 {
		C.vpx_img_free(&e.img)
		return nil, errors.New("vpx: encoder init fail")
	}
	return e, nil
}

// Encode compresses one tightly packed I420 frame. The first frame and
// every KeyframeInt-th after it are forced keyframes so late viewers
// can sync.
func (e *Encoder) Encode(i420 []byte) []byte {
	C.img_load(&e.img, (*C.uchar)(unsafe.Pointer(&i420[0])))

	var flags C.vpx_enc_frame_flags_t
	if e.kfi > 0 && int64(e.frames)%int64(e.kfi) == 0 {
		flags |= C.VPX_EFLAG_FORCE_KF
	}
	if C.vpx_codec_encode(&e.ctx, &e.img, e.frames, 1, flags, C.ulong(C.VPX_DL_REALTIME)) != 0 {
		return nil
	}
	e.frames++

	var out []byte
	var iter C.vpx_codec_iter_t
	var size C.int
	for {
		buf := C.next_frame(&e.ctx, &iter, &size)
		if buf == nil {
			break
		}
		out = append(out, C.GoBytes(buf, size)...)
	}
	return out
}

func (e *Encoder) Close() error {
	C.vpx_img_free(&e.img)
	if C.vpx_codec_destroy(&e.ctx) != 0 {
		return errors.New("vpx: destroy fail")
	}
	return nil
}
