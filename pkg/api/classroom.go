package api

import "github.com/goccy/go-json"

type (
	OpenRoomRequest struct {
		UserId int64 `json:"userId"`
		RoomId int64 `json:"roomId"`
	}
	OpenRoomResponse struct {
		Id string `json:"id"`
	}

	JoinStudentRequest struct {
		Name      string `json:"name"`
		ChannelId string `json:"channelId"`
		Password  string `json:"password,omitempty"`
	}
	JoinTeacherRequest struct {
		ChannelId string `json:"channelId"`
		UserId    int64  `json:"userId"`
	}

	// SessionState is sent back to a successfully joined occupant
	// so late joiners can render the current room.
	SessionState struct {
		Id         string          `json:"id"`
		Teacher    *OccupantInfo   `json:"teacher,omitempty"`
		Students   []OccupantInfo  `json:"students"`
		Whiteboard json.RawMessage `json:"whiteboard,omitempty"`
		PeerId     string          `json:"peerId,omitempty"`
		Url        string          `json:"url,omitempty"`
	}
	OccupantInfo struct {
		Id     string `json:"id"`
		Name   string `json:"name,omitempty"`
		Video  bool   `json:"video"`
		Audio  bool   `json:"audio"`
		Raised bool   `json:"handRaised,omitempty"`
	}

	ChangeNameRequest struct {
		Name string `json:"name"`
	}
	ChangeNameBroadcast struct {
		Id   string `json:"id"`
		Name string `json:"name"`
	}

	RaiseHandRequest struct {
		Raised bool `json:"raised"`
	}
	RaiseHandBroadcast struct {
		Id     string `json:"id"`
		Raised bool   `json:"raised"`
	}

	ConnectWebcamRequest struct {
		UserId string `json:"userId"`
		PeerId string `json:"peerId"`
	}
	UpdateWebcamRequest struct {
		Video bool `json:"video"`
		Audio bool `json:"audio"`
	}
	UpdateWebcamBroadcast struct {
		Id    string `json:"id"`
		Video bool   `json:"video"`
		Audio bool   `json:"audio"`
	}

	StudentJoinedBroadcast struct {
		Id   string `json:"id"`
		Name string `json:"name"`
	}
	StudentLeftBroadcast struct {
		Id string `json:"id"`
	}

	OpenWebsiteRequest struct {
		Url string `json:"url"`
	}
	OpenWebsiteBroadcast struct {
		Url    string `json:"url"`
		PeerId string `json:"peerId"`
	}

	// WebrtcSignal carries SDP or ICE fragments for the browser
	// stream peer, both opaque to the service.
	WebrtcSignal struct {
		PeerId    string          `json:"peerId"`
		Sdp       json.RawMessage `json:"sdp,omitempty"`
		Candidate json.RawMessage `json:"candidate,omitempty"`
	}
	MoveMouseRequest struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	KeyRequest struct {
		Key string `json:"key"`
	}
	ScrollRequest struct {
		DeltaY float64 `json:"deltaY"`
	}

	// WhiteboardChange carries an opaque drawing fragment;
	// the service stores and fans it out without interpretation.
	WhiteboardChange struct {
		Path json.RawMessage `json:"path"`
	}

	Error struct {
		Error string `json:"error"`
	}
)
