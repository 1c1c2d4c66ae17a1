package session

import (
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/com"
)

// Conn is a transport connection handle of one participant.
// The gateway owns the concrete type.
type Conn interface {
	Id() com.Uid
	Notify(t api.PT, payload any)
	Disconnect()
}

// Occupant is a participant of a live session: either the single
// Teacher or one of many Students. Two shapes, one tag.
type Occupant interface {
	Conn() Conn
	Info() api.OccupantInfo
	occupant()
}

type Teacher struct {
	conn   Conn
	UserID int64
	Video  bool
	Audio  bool
}

type Student struct {
	conn   Conn
	Name   string
	Video  bool
	Audio  bool
	Raised bool
}

func (t *Teacher) Conn() Conn { return t.conn }
func (t *Teacher) occupant()  {}
func (s *Student) Conn() Conn { return s.conn }
func (s *Student) occupant()  {}

func (t *Teacher) Info() api.OccupantInfo {
	return api.OccupantInfo{Id: t.conn.Id().String(), Video: t.Video, Audio: t.Audio}
}

func (s *Student) Info() api.OccupantInfo {
	return api.OccupantInfo{Id: s.conn.Id().String(), Name: s.Name, Video: s.Video, Audio: s.Audio, Raised: s.Raised}
}
