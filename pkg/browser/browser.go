// Package browser owns the remotely-controlled headless browser of a
// session: at most one page per session id, driven by proxied input
// events and captured into an outbound video stream.
package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/monitoring"
)

// ErrNoInstance rejects input proxied to a session with no running browser.
var ErrNoInstance = errors.New("no browser instance")

// Stream is the outbound capture channel of one browser instance.
// The webrtc package provides the production implementation.
type Stream interface {
	Id() string
	WriteFrame(data []byte, dur time.Duration) error
	Close()
}

// StreamFunc allocates a fresh stream for a starting instance.
type StreamFunc func() (Stream, error)

// Controller keeps zero-or-one browser instance per session id.
type Controller struct {
	conf      config.Browser
	streams   StreamFunc
	instances com.Map[string, *Instance]
	// serializes start/stop per session id so a racing start can
	// never displace an instance without tearing it down
	ops com.Map[string, *sync.Mutex]

	alloc       context.Context
	allocCancel context.CancelFunc

	// seam for tests; the default spawns a chromedp tab
	newInstance func(id, url string) (*Instance, error)

	log *logger.Logger
}

func NewController(conf config.Browser, streams StreamFunc, log *logger.Logger) *Controller {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.DisableGPU)
	if conf.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(conf.ExecPath))
	}
	if !conf.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	alloc, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	c := &Controller{
		conf:        conf,
		streams:     streams,
		instances:   com.NewMap[string, *Instance](),
		ops:         com.NewMap[string, *sync.Mutex](),
		alloc:       alloc,
		allocCancel: cancel,
		log:         log.Extend(log.With().Str("mod", "browser")),
	}
	c.newInstance = c.spawn
	return c
}

// op returns the start/stop lock of the session id.
func (c *Controller) op(id string) *sync.Mutex {
	if mu, err := c.ops.Find(id); err == nil {
		return mu
	}
	c.ops.PutIfAbsent(id, &sync.Mutex{})
	mu, _ := c.ops.Find(id)
	return mu
}

// Start allocates a page for the session, navigates it, and begins the
// capture. A previous instance of the same session is stopped first, so
// every allocation is matched by exactly one teardown.
func (c *Controller) Start(id, url string) (peerId string, err error) {
	mu := c.op(id)
	mu.Lock()
	defer mu.Unlock()
	c.stop(id)

	inst, err := c.newInstance(id, url)
	if err != nil {
		return "", err
	}
	c.instances.Put(id, inst)
	monitoring.BrowserSessionsLive.Inc()
	c.log.Info().Str("session", id).Str("url", url).Str("peer", inst.PeerId()).Msg("Browser started")
	return inst.PeerId(), nil
}

// Stop tears the page and stream of the session down. Idempotent.
func (c *Controller) Stop(id string) {
	mu := c.op(id)
	mu.Lock()
	defer mu.Unlock()
	c.stop(id)
}

func (c *Controller) stop(id string) {
	inst, err := c.instances.Find(id)
	if err != nil {
		return
	}
	c.instances.RemoveByKey(id)
	inst.stop()
	monitoring.BrowserSessionsLive.Dec()
	c.log.Info().Str("session", id).Msg("Browser stopped")
}

// PeerId reports the stream peer id of a live instance.
func (c *Controller) PeerId(id string) (string, bool) {
	inst, err := c.instances.Find(id)
	if err != nil {
		return "", false
	}
	return inst.PeerId(), true
}

// Get returns a live instance handle.
func (c *Controller) Get(id string) (*Instance, bool) {
	inst, err := c.instances.Find(id)
	return inst, err == nil
}

func (c *Controller) live(id string) (*Instance, error) {
	inst, err := c.instances.Find(id)
	if err != nil || inst.stopped.Load() {
		return nil, ErrNoInstance
	}
	return inst, nil
}

func (c *Controller) MoveCursor(id string, x, y float64) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.moveCursor(x, y)
}

func (c *Controller) PressButton(id string) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.button(true)
}

func (c *Controller) ReleaseButton(id string) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.button(false)
}

func (c *Controller) PressKey(id, key string) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.key(key, true)
}

func (c *Controller) ReleaseKey(id, key string) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.key(key, false)
}

func (c *Controller) Scroll(id string, deltaY float64) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.scroll(deltaY)
}

func (c *Controller) Reload(id string) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.run(chromedp.Reload())
}

func (c *Controller) NavigateBack(id string) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.run(chromedp.NavigateBack())
}

func (c *Controller) NavigateForward(id string) error {
	inst, err := c.live(id)
	if err != nil {
		return err
	}
	return inst.run(chromedp.NavigateForward())
}

// Shutdown stops every instance and releases the browser process.
func (c *Controller) Shutdown() {
	var ids []string
	c.instances.ForEach(func(i *Instance) { ids = append(ids, i.id) })
	for _, id := range ids {
		c.Stop(id)
	}
	c.allocCancel()
}
