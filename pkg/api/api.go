// Package api defines the wire API between the frontend and the session service.
//
// Each call (request and response) is a JSON-encoded "packet" of the following structure:
//
//	id - (optional) a globally unique packet id;
//	 t - (required) one of the predefined packet event names;
//	 p - (optional) packet payload with arbitrary data.
//
// Packets differentiate by their event name, with which it is possible
// to unwrap the payload into distinct request/response data structures.
// The id field ties a response packet to the request that produced it.
package api

import (
	"github.com/goccy/go-json"
)

// PT is a packet event name.
type PT string

// Client events.
const (
	OpenRoom        PT = "open-room"
	JoinAsStudent   PT = "join-room-as-student"
	JoinAsTeacher   PT = "join-room-as-teacher"
	LeaveRoom       PT = "leave-room"
	ChangeName      PT = "change-name"
	RaiseHand       PT = "raise-hand"
	ConnectWebcam   PT = "connect-webcam"
	UpdateWebcam    PT = "update-webcam"
	OpenWebsite     PT = "open-website"
	CloseBrowser    PT = "close-browser"
	MoveMouse       PT = "move-mouse"
	MouseDown       PT = "mouse-down"
	MouseUp         PT = "mouse-up"
	KeyDown         PT = "key-down"
	KeyUp           PT = "key-up"
	Scroll          PT = "scroll"
	Reload          PT = "reload"
	NavigateBack    PT = "navigate-back"
	NavigateForward PT = "navigate-forward"
	Whiteboard      PT = "whiteboard-change"
	WebrtcOffer     PT = "webrtc-offer"
	WebrtcAnswer    PT = "webrtc-answer"
	WebrtcIce       PT = "webrtc-ice"
)

// Server-initiated events.
const (
	StudentJoined PT = "student-joined"
	StudentLeft   PT = "student-left"
	TeacherJoined PT = "teacher-joined"
	CloseRoom     PT = "close-room"
)

type In struct {
	Id      string          `json:"id,omitempty"`
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"` // 2-pass unmarshal
}

type Out struct {
	Id      string `json:"id,omitempty"`
	T       PT     `json:"t"`
	Payload any    `json:"p,omitempty"`
}

func (i In) GetId() string      { return i.Id }
func (i In) GetType() PT        { return i.T }
func (i In) GetPayload() []byte { return i.Payload }

// Unwrap decodes the packet payload into a concrete request structure.
func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
