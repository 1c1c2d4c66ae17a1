package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liveclass/liveclass/pkg/logger"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
)

// WS wraps a gorilla websocket connection with
// serialized reader/writer pumps.
type WS struct {
	conn conn
	send chan []byte
	log  *logger.Logger

	OnMessage MessageHandler

	shutdown *sync.WaitGroup
	sendOnce sync.Once
	doneOnce sync.Once
	Done     chan struct{}
}

// conn bounds every write with a deadline so a stuck peer cannot
// wedge the writer pump.
type conn struct {
	*websocket.Conn
	wt time.Duration
}

func (c *conn) write(t int, data []byte) error {
	if err := c.SetWriteDeadline(time.Now().Add(c.wt)); err != nil {
		return err
	}
	return c.WriteMessage(t, data)
}

type MessageHandler func(message []byte, err error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewServer upgrades an HTTP request to a websocket peer.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(sock, log), nil
}

func newSocket(sock *websocket.Conn, log *logger.Logger) *WS {
	shut := sync.WaitGroup{}
	shut.Add(2)
	ws := &WS{
		conn:     conn{Conn: sock, wt: writeWait},
		send:     make(chan []byte),
		log:      log,
		shutdown: &shut,
		Done:     make(chan struct{}, 1),
	}
	return ws
}

// Listen starts the reader/writer pumps. The returned channel
// closes when the connection is gone.
func (ws *WS) Listen() chan struct{} {
	go ws.writer()
	go ws.reader()
	return ws.Done
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		ws.sendOnce.Do(func() { close(ws.send) })
		ws.shutdown.Done()
		ws.close()
	}()
	ws.conn.SetReadLimit(maxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongTime))
	ws.conn.SetPongHandler(func(string) error { return ws.conn.SetReadDeadline(time.Now().Add(pongTime)) })
	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				ws.log.Error().Err(err).Msg("read fail")
			}
			break
		}
		ws.OnMessage(message, err)
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	ticker := time.NewTicker(pingTime)
	defer func() {
		ticker.Stop()
		ws.shutdown.Done()
		ws.close()
	}()
	for {
		select {
		case message, ok := <-ws.send:
			if !ok {
				_ = ws.conn.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ws *WS) Write(data []byte) {
	defer func() { recover() }() // send on closed channel during shutdown
	ws.send <- data
}

func (ws *WS) Close() {
	_ = ws.conn.write(websocket.CloseMessage, []byte{})
	_ = ws.conn.Close()
}

func (ws *WS) close() {
	ws.shutdown.Wait()
	_ = ws.conn.Close()
	ws.doneOnce.Do(func() { ws.Done <- struct{}{} })
}
