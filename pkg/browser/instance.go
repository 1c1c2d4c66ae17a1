package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/liveclass/liveclass/pkg/encoder"
	"github.com/liveclass/liveclass/pkg/encoder/vpx"
)

// Instance is one running page: a tab context, a capture stream, and
// the last known cursor position. Operations are serialized per
// instance; anything issued before the instance was stopped is
// discarded instead of resurrecting the page.
type Instance struct {
	id  string
	url string

	ctx    context.Context
	cancel context.CancelFunc
	peer   Stream

	mu      sync.Mutex
	stopped atomic.Bool
	x, y    float64

	// VP8 encode stage of the capture, created on the first frame
	// and recreated when the capture size changes
	enc        *vpx.Encoder
	encW, encH int
	kfi        int
}

func (i *Instance) URL() string    { return i.url }
func (i *Instance) PeerId() string { return i.peer.Id() }

// spawn allocates a chromedp tab, navigates it, injects the cursor
// overlay, and begins the screencast capture.
func (c *Controller) spawn(id, url string) (*Instance, error) {
	tab, cancel := chromedp.NewContext(c.alloc)

	stream, err := c.streams()
	if err != nil {
		cancel()
		return nil, err
	}
	fps := max(c.conf.FrameRate, 1)
	inst := &Instance{id: id, url: url, ctx: tab, cancel: cancel, peer: stream, kfi: 2 * fps}

	frameDur := time.Second / time.Duration(fps)
	chromedp.ListenTarget(tab, func(ev any) {
		frame, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		// acks must not block the event loop
		go func() { _ = chromedp.Run(tab, page.ScreencastFrameAck(frame.SessionID)) }()
		if inst.stopped.Load() {
			return
		}
		data, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil {
			return
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return
		}
		pkt, err := inst.encode(img)
		if err != nil || len(pkt) == 0 {
			return
		}
		_ = inst.peer.WriteFrame(pkt, frameDur)
	})

	navCtx, navCancel := context.WithTimeout(tab, c.conf.NavTimeout)
	defer navCancel()
	err = chromedp.Run(navCtx,
		chromedp.EmulateViewport(int64(c.conf.Viewport.Width), int64(c.conf.Viewport.Height)),
		chromedp.Navigate(url),
		chromedp.Evaluate(cursorOverlayJS, nil),
		page.StartScreencast().
			WithFormat(page.ScreencastFormatJpeg).
			WithQuality(80).
			WithMaxWidth(int64(c.conf.Viewport.Width)).
			WithMaxHeight(int64(c.conf.Viewport.Height)).
			WithEveryNthFrame(1),
	)
	if err != nil {
		stream.Close()
		cancel()
		return nil, err
	}
	return inst, nil
}

// encode compresses one capture frame, lazily (re)building the VP8
// encoder to match the capture size.
func (i *Instance) encode(img image.Image) ([]byte, error) {
	yuv, w, h := encoder.ToI420(img)
	if w == 0 {
		return nil, nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stopped.Load() {
		return nil, nil
	}
	if i.enc == nil || i.encW != w || i.encH != h {
		if i.enc != nil {
			_ = i.enc.Close()
		}
		enc, err := vpx.New(w, h, vpx.WithKeyframeInterval(i.kfi))
		if err != nil {
			return nil, err
		}
		i.enc, i.encW, i.encH = enc, w, h
	}
	return i.enc.Encode(yuv), nil
}

func (i *Instance) stop() {
	if i.stopped.Swap(true) {
		return
	}
	ctx, cancel := context.WithTimeout(i.ctx, time.Second)
	_ = chromedp.Run(ctx, page.StopScreencast())
	cancel()
	i.mu.Lock()
	if i.enc != nil {
		_ = i.enc.Close()
		i.enc = nil
	}
	i.mu.Unlock()
	i.peer.Close()
	i.cancel()
}

// run executes actions against the tab under the instance lock.
func (i *Instance) run(actions ...chromedp.Action) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stopped.Load() {
		return ErrNoInstance
	}
	return chromedp.Run(i.ctx, actions...)
}

func (i *Instance) moveCursor(x, y float64) error {
	i.mu.Lock()
	i.x, i.y = x, y
	i.mu.Unlock()
	return i.run(
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		chromedp.Evaluate(fmt.Sprintf("window.__lcCursor && window.__lcCursor(%v, %v)", x, y), nil),
	)
}

func (i *Instance) button(pressed bool) error {
	t := input.MouseReleased
	if pressed {
		t = input.MousePressed
	}
	i.mu.Lock()
	x, y := i.x, i.y
	i.mu.Unlock()
	return i.run(input.DispatchMouseEvent(t, x, y).
		WithButton(input.MouseButton("left")).
		WithClickCount(1))
}

func (i *Instance) key(key string, pressed bool) error {
	t := input.KeyUp
	if pressed {
		t = input.KeyDown
	}
	ev := input.DispatchKeyEvent(t).WithKey(key)
	if pressed && len([]rune(key)) == 1 {
		ev = ev.WithText(key)
	}
	return i.run(ev)
}

func (i *Instance) scroll(deltaY float64) error {
	i.mu.Lock()
	x, y := i.x, i.y
	i.mu.Unlock()
	return i.run(input.DispatchMouseEvent(input.MouseWheel, x, y).WithDeltaY(deltaY))
}

// cursorOverlayJS renders the teacher cursor on top of the page so
// viewers can follow it in the capture.
const cursorOverlayJS = `(() => {
	if (window.__lcCursor) return;
	const dot = document.createElement('div');
	dot.style.cssText = 'position:fixed;z-index:2147483647;width:12px;height:12px;' +
		'border-radius:50%;background:#e33;border:2px solid #fff;pointer-events:none;' +
		'left:0;top:0;transition:left 60ms linear,top 60ms linear';
	document.documentElement.appendChild(dot);
	window.__lcCursor = (x, y) => { dot.style.left = x + 'px'; dot.style.top = y + 'px'; };
})()`
