package webrtc

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Streamer owns a peer connection with one outbound video track fed
// from the remote-browser capture. Viewers attach to the stream by
// its peer id through the signaling surface.
type Streamer struct {
	id   string
	conn *webrtc.PeerConnection
	v    *webrtc.TrackLocalStaticSample
	log  *logger.Logger

	closeOnce sync.Once
	onClose   func()
}

func NewStreamer(api *ApiFactory, log *logger.Logger) (*Streamer, error) {
	pid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	conn, err := api.NewPeer()
	if err != nil {
		return nil, err
	}
	s := &Streamer{
		id:   pid.String(),
		conn: conn,
		log:  log.Extend(log.With().Str("peer", pid.String()[:8])),
	}

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "browser")
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	sender, err := conn.AddTrack(video)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.v = video
	// drain incoming RTCP
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(rtcpBuf); err != nil {
				return
			}
		}
	}()

	conn.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.log.Debug().Str(".state", state.String()).Msg("ICE")
		if state == webrtc.ICEConnectionStateFailed {
			s.Close()
		}
	})
	s.log.Debug().Msgf("Added [%s] track", video.Codec().MimeType)
	return s, nil
}

func (s *Streamer) Id() string { return s.id }

// Offer starts the negotiation; the stream provider sends the offer.
func (s *Streamer) Offer() (webrtc.SessionDescription, error) {
	offer, err := s.conn.CreateOffer(nil)
	if err != nil {
		return offer, err
	}
	if err = s.conn.SetLocalDescription(offer); err != nil {
		return offer, err
	}
	s.log.Debug().Msg("Created Offer")
	return offer, nil
}

func (s *Streamer) SetAnswer(answer webrtc.SessionDescription) error {
	return s.conn.SetRemoteDescription(answer)
}

func (s *Streamer) AddCandidate(candidate webrtc.ICECandidateInit) error {
	return s.conn.AddICECandidate(candidate)
}

func (s *Streamer) OnICECandidate(fn func(*webrtc.ICECandidate)) { s.conn.OnICECandidate(fn) }

// WriteFrame pushes one encoded capture frame into the video track.
func (s *Streamer) WriteFrame(data []byte, dur time.Duration) error {
	return s.v.WriteSample(media.Sample{Data: data, Duration: dur})
}

func (s *Streamer) Close() {
	s.closeOnce.Do(func() {
		if s.conn.ConnectionState() < webrtc.PeerConnectionStateDisconnected {
			// ignore DTLS fatal on already torn down transports
			_ = s.conn.Close()
		}
		if s.onClose != nil {
			s.onClose()
		}
		s.log.Debug().Msg("WebRTC stop")
	})
}
