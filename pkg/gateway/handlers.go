package gateway

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/session"
	"github.com/pion/webrtc/v4"
)

func (g *Gateway) dispatch(c *Client, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Msgf("panic in packet handler: %v", r)
		}
	}()
	var in api.In
	if err := json.Unmarshal(message, &in); err != nil {
		c.log.Error().Err(err).Msg("packet parse fail")
		return
	}
	switch in.T {
	case api.OpenRoom:
		g.handleOpenRoom(c, in)
	case api.JoinAsStudent:
		g.handleJoinStudent(c, in)
	case api.JoinAsTeacher:
		g.handleJoinTeacher(c, in)
	case api.LeaveRoom:
		g.registry.LeaveAll(c)
	case api.ChangeName:
		g.handleChangeName(c, in)
	case api.RaiseHand:
		g.handleRaiseHand(c, in)
	case api.ConnectWebcam:
		g.handleConnectWebcam(c, in)
	case api.UpdateWebcam:
		g.handleUpdateWebcam(c, in)
	case api.OpenWebsite:
		g.handleOpenWebsite(c, in)
	case api.CloseBrowser:
		g.handleCloseBrowser(c, in)
	case api.MoveMouse, api.MouseDown, api.MouseUp, api.KeyDown, api.KeyUp,
		api.Scroll, api.Reload, api.NavigateBack, api.NavigateForward:
		g.handleBrowserInput(c, in)
	case api.Whiteboard:
		g.handleWhiteboard(c, in)
	case api.WebrtcOffer, api.WebrtcAnswer, api.WebrtcIce:
		g.handleWebrtcSignal(c, in)
	default:
		c.log.Warn().Msgf("Unknown packet [%v]", in.T)
	}
}

func (g *Gateway) handleOpenRoom(c *Client, in api.In) {
	req := api.Unwrap[api.OpenRoomRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.Open(context.Background(), c, req.UserId, req.RoomId)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	c.Route(in, api.OpenRoomResponse{Id: string(s.Code())})
}

func (g *Gateway) handleJoinStudent(c *Client, in api.In) {
	req := api.Unwrap[api.JoinStudentRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.JoinAsStudent(c, session.Code(req.ChannelId), req.Name, req.Password)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	c.Route(in, g.describe(s))
}

func (g *Gateway) handleJoinTeacher(c *Client, in api.In) {
	req := api.Unwrap[api.JoinTeacherRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.JoinAsTeacher(context.Background(), c, session.Code(req.ChannelId), req.UserId)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	c.Route(in, g.describe(s))
}

// describe renders the session for a joiner, including the live
// browser stream when one runs.
func (g *Gateway) describe(s *session.Session) api.SessionState {
	state := s.Snapshot()
	if inst, ok := g.browser.Get(string(s.Code())); ok {
		state.PeerId = inst.PeerId()
		state.Url = inst.URL()
	}
	return state
}

func (g *Gateway) handleChangeName(c *Client, in api.In) {
	req := api.Unwrap[api.ChangeNameRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.ByConn(c)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	if s.Rename(c.Id(), req.Name) {
		g.Broadcast(s.Code(), api.ChangeName, api.ChangeNameBroadcast{Id: c.Id().String(), Name: req.Name})
	}
}

func (g *Gateway) handleRaiseHand(c *Client, in api.In) {
	req := api.Unwrap[api.RaiseHandRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.ByConn(c)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	if s.SetRaised(c.Id(), req.Raised) {
		g.Broadcast(s.Code(), api.RaiseHand, api.RaiseHandBroadcast{Id: c.Id().String(), Raised: req.Raised})
	}
}

// handleConnectWebcam forwards the webcam peer id of the caller to one
// other occupant of the same session.
func (g *Gateway) handleConnectWebcam(c *Client, in api.In) {
	req := api.Unwrap[api.ConnectWebcamRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	other, err := g.registry.OtherOccupant(c, req.UserId)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	other.Notify(api.ConnectWebcam, api.ConnectWebcamRequest{UserId: c.Id().String(), PeerId: req.PeerId})
}

func (g *Gateway) handleUpdateWebcam(c *Client, in api.In) {
	req := api.Unwrap[api.UpdateWebcamRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.ByConn(c)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	if s.SetWebcam(c.Id(), req.Video, req.Audio) {
		g.Broadcast(s.Code(), api.UpdateWebcam, api.UpdateWebcamBroadcast{Id: c.Id().String(), Video: req.Video, Audio: req.Audio})
	}
}

func (g *Gateway) handleOpenWebsite(c *Client, in api.In) {
	req := api.Unwrap[api.OpenWebsiteRequest](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.ByConn(c)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	peerId, err := g.browser.Start(string(s.Code()), req.Url)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	payload := api.OpenWebsiteBroadcast{Url: req.Url, PeerId: peerId}
	c.Route(in, payload)
	g.broadcastExcept(s.Code(), c.id, api.OpenWebsite, payload)
}

func (g *Gateway) handleCloseBrowser(c *Client, in api.In) {
	s, err := g.registry.ByConn(c)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	g.browser.Stop(string(s.Code()))
	g.Broadcast(s.Code(), api.CloseBrowser, nil)
}

// handleBrowserInput proxies one input event into the session browser.
// Inputs for a stopped browser are rejected per call.
func (g *Gateway) handleBrowserInput(c *Client, in api.In) {
	s, err := g.registry.ByConn(c)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	id := string(s.Code())
	switch in.T {
	case api.MoveMouse:
		if req := api.Unwrap[api.MoveMouseRequest](in.Payload); req != nil {
			err = g.browser.MoveCursor(id, req.X, req.Y)
		} else {
			err = errBadPacket
		}
	case api.MouseDown:
		err = g.browser.PressButton(id)
	case api.MouseUp:
		err = g.browser.ReleaseButton(id)
	case api.KeyDown:
		if req := api.Unwrap[api.KeyRequest](in.Payload); req != nil {
			err = g.browser.PressKey(id, req.Key)
		} else {
			err = errBadPacket
		}
	case api.KeyUp:
		if req := api.Unwrap[api.KeyRequest](in.Payload); req != nil {
			err = g.browser.ReleaseKey(id, req.Key)
		} else {
			err = errBadPacket
		}
	case api.Scroll:
		if req := api.Unwrap[api.ScrollRequest](in.Payload); req != nil {
			err = g.browser.Scroll(id, req.DeltaY)
		} else {
			err = errBadPacket
		}
	case api.Reload:
		err = g.browser.Reload(id)
	case api.NavigateBack:
		err = g.browser.NavigateBack(id)
	case api.NavigateForward:
		err = g.browser.NavigateForward(id)
	}
	if err != nil {
		c.RouteError(in, err)
	}
}

// handleWhiteboard stores the fragment on the session and fans it out.
// The payload stays opaque end to end.
func (g *Gateway) handleWhiteboard(c *Client, in api.In) {
	req := api.Unwrap[api.WhiteboardChange](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	s, err := g.registry.ByConn(c)
	if err != nil {
		c.RouteError(in, err)
		return
	}
	s.SetWhiteboard(req.Path)
	g.Broadcast(s.Code(), api.Whiteboard, api.WhiteboardChange{Path: req.Path})
}

// handleWebrtcSignal negotiates the browser stream of a peer id with
// one viewer. The stream side offers; the viewer answers and trickles
// its candidates back.
func (g *Gateway) handleWebrtcSignal(c *Client, in api.In) {
	req := api.Unwrap[api.WebrtcSignal](in.Payload)
	if req == nil {
		c.RouteError(in, errBadPacket)
		return
	}
	peer, ok := g.peers.Find(req.PeerId)
	if !ok {
		c.RouteError(in, errUnknownPeer)
		return
	}
	switch in.T {
	case api.WebrtcOffer:
		peer.OnICECandidate(func(candidate *webrtc.ICECandidate) {
			if candidate == nil {
				return
			}
			init, err := json.Marshal(candidate.ToJSON())
			if err != nil {
				return
			}
			c.Notify(api.WebrtcIce, api.WebrtcSignal{PeerId: req.PeerId, Candidate: init})
		})
		offer, err := peer.Offer()
		if err != nil {
			c.RouteError(in, err)
			return
		}
		sdp, err := json.Marshal(offer)
		if err != nil {
			c.RouteError(in, err)
			return
		}
		c.Route(in, api.WebrtcSignal{PeerId: req.PeerId, Sdp: sdp})
	case api.WebrtcAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(req.Sdp, &answer); err != nil {
			c.RouteError(in, errBadPacket)
			return
		}
		if err := peer.SetAnswer(answer); err != nil {
			c.RouteError(in, err)
		}
	case api.WebrtcIce:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(req.Candidate, &candidate); err != nil {
			c.RouteError(in, errBadPacket)
			return
		}
		if err := peer.AddCandidate(candidate); err != nil {
			c.RouteError(in, err)
		}
	}
}
