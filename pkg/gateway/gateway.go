// Package gateway is the websocket transport in front of the session
// registry and the remote-browser controller. It owns connections and
// the per-session broadcast groups; all domain decisions stay in the
// session package.
package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/browser"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/network/httpx"
	"github.com/liveclass/liveclass/pkg/network/websocket"
	"github.com/liveclass/liveclass/pkg/session"
	"github.com/liveclass/liveclass/pkg/storage"
	"github.com/liveclass/liveclass/pkg/webrtc"
)

var (
	errBadPacket   = errors.New("malformed packet")
	errUnknownPeer = errors.New("unknown peer")
)

type Gateway struct {
	conf config.Liveclass
	log  *logger.Logger

	registry *session.Registry
	browser  *browser.Controller
	peers    *webrtc.Hub

	mu     sync.Mutex
	groups map[session.Code]map[com.Uid]*Client

	server      *httpx.Server
	roomDeleted chan int64
	done        chan struct{}
}

func New(conf config.Liveclass, store storage.Provider, ctl *browser.Controller, peers *webrtc.Hub, log *logger.Logger) *Gateway {
	g := &Gateway{
		conf:        conf,
		log:         log.Extend(log.With().Str("mod", "gateway")),
		browser:     ctl,
		peers:       peers,
		groups:      make(map[session.Code]map[com.Uid]*Client),
		roomDeleted: make(chan int64, 8),
		done:        make(chan struct{}),
	}
	g.registry = session.NewRegistry(conf.Session, store, ctl, g, log)
	mux := httpx.NewServeMux("")
	mux.HandleFunc("/ws", g.handleConnection)
	g.server = httpx.NewServer(conf.Server.Address, func(*httpx.Server) httpx.Handler { return mux }, g.log)
	return g
}

// Registry exposes the session registry for embedding surfaces and tests.
func (g *Gateway) Registry() *session.Registry { return g.registry }

// RoomDeleted is the inbox for external room removal notifications.
func (g *Gateway) RoomDeleted() chan<- int64 { return g.roomDeleted }

func (g *Gateway) Run() {
	go func() {
		for {
			select {
			case id := <-g.roomDeleted:
				g.registry.OnRoomDeleted(id)
			case <-g.done:
				return
			}
		}
	}()
	g.server.Run()
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	close(g.done)
	g.registry.Shutdown()
	return g.server.Shutdown(ctx)
}

func (g *Gateway) String() string { return "gateway::" + g.conf.Server.Address }

func (g *Gateway) handleConnection(w httpx.ResponseWriter, r *httpx.Request) {
	sock, err := websocket.NewServer(w, r, g.log)
	if err != nil {
		g.log.Error().Err(err).Msg("socket upgrade fail")
		return
	}
	client := newClient(sock, g.log)
	client.log.Debug().Msg("Connect")

	sock.OnMessage = func(message []byte, err error) {
		if err != nil {
			return
		}
		g.dispatch(client, message)
	}
	done := sock.Listen()
	go func() {
		<-done
		g.registry.LeaveAll(client)
		client.log.Debug().Msg("Disconnect")
	}()
}

// Announcer implementation: per-session broadcast groups.

func (g *Gateway) Join(conn session.Conn, code session.Code) {
	client, ok := conn.(*Client)
	if !ok {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	group, ok := g.groups[code]
	if !ok {
		group = make(map[com.Uid]*Client, 8)
		g.groups[code] = group
	}
	group[client.id] = client
}

func (g *Gateway) Leave(conn session.Conn, code session.Code) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if group, ok := g.groups[code]; ok {
		delete(group, conn.Id())
	}
}

func (g *Gateway) Broadcast(code session.Code, t api.PT, payload any) {
	g.mu.Lock()
	members := make([]*Client, 0, 8)
	for _, c := range g.groups[code] {
		members = append(members, c)
	}
	g.mu.Unlock()
	for _, c := range members {
		c.Notify(t, payload)
	}
}

// broadcastExcept fans a packet out to the group skipping one member,
// for events the sender already received as a direct reply.
func (g *Gateway) broadcastExcept(code session.Code, except com.Uid, t api.PT, payload any) {
	g.mu.Lock()
	members := make([]*Client, 0, 8)
	for _, c := range g.groups[code] {
		if c.id != except {
			members = append(members, c)
		}
	}
	g.mu.Unlock()
	for _, c := range members {
		c.Notify(t, payload)
	}
}

func (g *Gateway) Groups(conn session.Conn) (codes []session.Code) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for code, group := range g.groups {
		if _, ok := group[conn.Id()]; ok {
			codes = append(codes, code)
		}
	}
	return
}

func (g *Gateway) Drop(code session.Code) {
	g.mu.Lock()
	delete(g.groups, code)
	g.mu.Unlock()
}
