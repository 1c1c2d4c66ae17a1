package webrtc

import (
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/logger"
)

// Hub tracks live stream peers by their peer id so the signaling
// surface can resolve them. Peers unregister themselves on close.
type Hub struct {
	api   *ApiFactory
	peers com.Map[string, *Streamer]
	log   *logger.Logger
}

func NewHub(api *ApiFactory, log *logger.Logger) *Hub {
	return &Hub{api: api, peers: com.NewMap[string, *Streamer](), log: log}
}

// Alloc creates and registers a fresh stream peer.
func (h *Hub) Alloc() (*Streamer, error) {
	s, err := NewStreamer(h.api, h.log)
	if err != nil {
		return nil, err
	}
	s.onClose = func() { h.peers.RemoveByKey(s.id) }
	h.peers.Put(s.id, s)
	return s, nil
}

// Find resolves a live peer by id.
func (h *Hub) Find(id string) (*Streamer, bool) {
	s, err := h.peers.Find(id)
	return s, err == nil
}
