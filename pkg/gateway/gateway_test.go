package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/browser"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/session"
	"github.com/liveclass/liveclass/pkg/storage"
	rtc "github.com/liveclass/liveclass/pkg/webrtc"
)

type env struct {
	srv    *httptest.Server
	gw     *Gateway
	userID int64
	roomID int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.New(false)

	store, err := storage.New(filepath.Join(t.TempDir(), "liveclass.db"))
	if err != nil {
		t.Fatalf("storage fail: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	userID, err := store.AddUser(ctx, "alice")
	if err != nil {
		t.Fatalf("seed user fail: %v", err)
	}
	roomID, err := store.AddRoom(ctx, "algebra", "s3cret", userID)
	if err != nil {
		t.Fatalf("seed room fail: %v", err)
	}

	peerApi, err := rtc.NewApiFactory(config.Webrtc{}, log)
	if err != nil {
		t.Fatalf("webrtc fail: %v", err)
	}
	hub := rtc.NewHub(peerApi, log)
	ctl := browser.NewController(config.Browser{FrameRate: 10, NavTimeout: time.Second},
		func() (browser.Stream, error) { return hub.Alloc() }, log)
	t.Cleanup(ctl.Shutdown)

	conf := config.Liveclass{
		Server:  config.Server{Address: ":0"},
		Session: config.Session{IdleTimeout: time.Minute, CodeLength: 6},
	}
	gw := New(conf, store, ctl, hub, log)
	srv := httptest.NewServer(http.HandlerFunc(gw.handleConnection))
	t.Cleanup(srv.Close)
	return &env{srv: srv, gw: gw, userID: userID, roomID: roomID}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *env) dial(t *testing.T) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial fail: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(id string, t api.PT, payload any) {
	c.t.Helper()
	data, err := json.Marshal(api.Out{Id: id, T: t, Payload: payload})
	if err != nil {
		c.t.Fatalf("marshal fail: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("write fail: %v", err)
	}
}

// expect reads packets until one matches the predicate, skipping
// unrelated broadcasts.
func (c *wsClient) expect(match func(api.In) bool) api.In {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("read fail: %v", err)
		}
		var in api.In
		if err := json.Unmarshal(data, &in); err != nil {
			c.t.Fatalf("parse fail: %v", err)
		}
		if match(in) {
			return in
		}
	}
}

func (c *wsClient) reply(id string) api.In {
	return c.expect(func(in api.In) bool { return in.Id == id })
}

func (c *wsClient) event(t api.PT) api.In {
	return c.expect(func(in api.In) bool { return in.T == t && in.Id == "" })
}

func isError(in api.In) (string, bool) {
	var e api.Error
	if err := json.Unmarshal(in.Payload, &e); err != nil || e.Error == "" {
		return "", false
	}
	return e.Error, true
}

func (e *env) openRoom(t *testing.T, teacher *wsClient) string {
	t.Helper()
	teacher.send("1", api.OpenRoom, api.OpenRoomRequest{UserId: e.userID, RoomId: e.roomID})
	in := teacher.reply("1")
	if msg, ok := isError(in); ok {
		t.Fatalf("open-room fail: %v", msg)
	}
	resp := api.Unwrap[api.OpenRoomResponse](in.Payload)
	if resp == nil || len(resp.Id) != 6 {
		t.Fatalf("bad open-room response: %s", in.Payload)
	}
	return resp.Id
}

func TestOpenAndJoinFlow(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	code := e.openRoom(t, teacher)

	student := e.dial(t)
	student.send("2", api.JoinAsStudent, api.JoinStudentRequest{Name: "bob", ChannelId: code, Password: "s3cret"})
	in := student.reply("2")
	if msg, ok := isError(in); ok {
		t.Fatalf("join fail: %v", msg)
	}
	state := api.Unwrap[api.SessionState](in.Payload)
	if state == nil || state.Id != code || state.Teacher == nil || len(state.Students) != 1 {
		t.Fatalf("bad session state: %s", in.Payload)
	}

	joined := teacher.event(api.StudentJoined)
	b := api.Unwrap[api.StudentJoinedBroadcast](joined.Payload)
	if b == nil || b.Name != "bob" {
		t.Fatalf("bad student-joined broadcast: %s", joined.Payload)
	}
}

func TestJoinWrongSecret(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	code := e.openRoom(t, teacher)

	student := e.dial(t)
	student.send("2", api.JoinAsStudent, api.JoinStudentRequest{Name: "bob", ChannelId: code, Password: "nope"})
	if _, ok := isError(student.reply("2")); !ok {
		t.Fatal("wrong secret must be rejected")
	}
}

func TestChangeNameBroadcast(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	code := e.openRoom(t, teacher)

	student := e.dial(t)
	student.send("2", api.JoinAsStudent, api.JoinStudentRequest{Name: "bob", ChannelId: code, Password: "s3cret"})
	student.reply("2")

	student.send("3", api.ChangeName, api.ChangeNameRequest{Name: "robert"})
	renamed := teacher.event(api.ChangeName)
	b := api.Unwrap[api.ChangeNameBroadcast](renamed.Payload)
	if b == nil || b.Name != "robert" {
		t.Fatalf("bad change-name broadcast: %s", renamed.Payload)
	}
}

func TestWhiteboardFanout(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	code := e.openRoom(t, teacher)

	student := e.dial(t)
	student.send("2", api.JoinAsStudent, api.JoinStudentRequest{Name: "bob", ChannelId: code, Password: "s3cret"})
	student.reply("2")

	student.send("3", api.Whiteboard, api.WhiteboardChange{Path: json.RawMessage(`{"line":[0,1]}`)})
	change := teacher.event(api.Whiteboard)
	b := api.Unwrap[api.WhiteboardChange](change.Payload)
	if b == nil || string(b.Path) != `{"line":[0,1]}` {
		t.Fatalf("bad whiteboard fanout: %s", change.Payload)
	}
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	code := e.openRoom(t, teacher)

	student := e.dial(t)
	student.send("2", api.JoinAsStudent, api.JoinStudentRequest{Name: "bob", ChannelId: code, Password: "s3cret"})
	student.reply("2")
	_ = student.conn.Close()

	left := teacher.event(api.StudentLeft)
	if b := api.Unwrap[api.StudentLeftBroadcast](left.Payload); b == nil || b.Id == "" {
		t.Fatalf("bad student-left broadcast: %s", left.Payload)
	}
}

func TestBrowserInputMalformedPayload(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	e.openRoom(t, teacher)

	teacher.send("2", api.MoveMouse, "not-a-point")
	if _, ok := isError(teacher.reply("2")); !ok {
		t.Fatal("malformed move-mouse must be rejected")
	}
	teacher.send("3", api.KeyDown, 42)
	if _, ok := isError(teacher.reply("3")); !ok {
		t.Fatal("malformed key-down must be rejected")
	}
}

// expectNothing asserts no packet arrives within the window.
func (c *wsClient) expectNothing(d time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	if _, data, err := c.conn.ReadMessage(); err == nil {
		c.t.Fatalf("unexpected packet: %s", data)
	}
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	code := e.openRoom(t, teacher)

	student := e.dial(t)
	student.send("2", api.JoinAsStudent, api.JoinStudentRequest{Name: "bob", ChannelId: code, Password: "s3cret"})
	in := student.reply("2")
	state := api.Unwrap[api.SessionState](in.Payload)
	if state == nil || state.Teacher == nil {
		t.Fatalf("bad session state: %s", in.Payload)
	}
	teacher.event(api.StudentJoined)

	teacherID, err := com.UidFrom(state.Teacher.Id)
	if err != nil {
		t.Fatalf("bad teacher id: %v", err)
	}
	payload := api.OpenWebsiteBroadcast{Url: "https://example.com", PeerId: "p1"}
	e.gw.broadcastExcept(session.Code(code), teacherID, api.OpenWebsite, payload)

	opened := student.event(api.OpenWebsite)
	if b := api.Unwrap[api.OpenWebsiteBroadcast](opened.Payload); b == nil || b.PeerId != "p1" {
		t.Fatalf("bad open-website fanout: %s", opened.Payload)
	}
	teacher.expectNothing(200 * time.Millisecond)
}

func TestBrowserInputWithoutBrowser(t *testing.T) {
	e := newEnv(t)
	teacher := e.dial(t)
	e.openRoom(t, teacher)

	teacher.send("2", api.MoveMouse, api.MoveMouseRequest{X: 1, Y: 2})
	if _, ok := isError(teacher.reply("2")); !ok {
		t.Fatal("input without a running browser must be rejected")
	}
}
