package gateway

import (
	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/network/websocket"
)

// Client is one connected participant socket.
type Client struct {
	id   com.Uid
	sock *websocket.WS
	log  *logger.Logger
}

func newClient(sock *websocket.WS, log *logger.Logger) *Client {
	id := com.NewUid()
	return &Client{
		id:   id,
		sock: sock,
		log:  log.Extend(log.With().Str("cid", id.Short())),
	}
}

func (c *Client) Id() com.Uid { return c.id }

// Notify sends a fire-and-forget packet.
func (c *Client) Notify(t api.PT, payload any) {
	c.send(api.Out{T: t, Payload: payload})
}

// Route replies to a request packet, carrying its id back.
func (c *Client) Route(in api.In, payload any) {
	c.send(api.Out{Id: in.Id, T: in.T, Payload: payload})
}

// RouteError replies with a classified failure.
func (c *Client) RouteError(in api.In, err error) {
	c.send(api.Out{Id: in.Id, T: in.T, Payload: api.Error{Error: err.Error()}})
}

func (c *Client) send(packet api.Out) {
	data, err := json.Marshal(packet)
	if err != nil {
		c.log.Error().Err(err).Msg("packet marshal fail")
		return
	}
	c.sock.Write(data)
}

func (c *Client) Disconnect() { c.sock.Close() }

func (c *Client) String() string { return c.id.String() }
