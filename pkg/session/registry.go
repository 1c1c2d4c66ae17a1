package session

import (
	"context"
	"errors"
	"time"

	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/monitoring"
	"github.com/liveclass/liveclass/pkg/storage"
)

// Announcer fans events out to the broadcast group of a session.
// The transport gateway implements it; the registry stays unaware
// of sockets.
type Announcer interface {
	Join(conn Conn, code Code)
	Leave(conn Conn, code Code)
	Broadcast(code Code, t api.PT, payload any)
	// Groups lists the broadcast groups the connection belongs to.
	Groups(conn Conn) []Code
	// Drop removes the whole broadcast group.
	Drop(code Code)
}

// Browser is the remote-browser teardown hook the registry calls on close.
// Referenced by session id only, never by instance.
type Browser interface {
	Stop(id string)
}

// Registry owns every live Session of the process. Constructed once
// at start, torn down via Shutdown; lookups are keyed by session code.
type Registry struct {
	conf     config.Session
	store    storage.Provider
	browser  Browser
	ann      Announcer
	sessions com.Map[Code, *Session]

	// injectable for collision tests
	generate func(width int) Code

	log *logger.Logger
}

func NewRegistry(conf config.Session, store storage.Provider, browser Browser, ann Announcer, log *logger.Logger) *Registry {
	return &Registry{
		conf:     conf,
		store:    store,
		browser:  browser,
		ann:      ann,
		sessions: com.NewMap[Code, *Session](),
		generate: GenerateCode,
		log:      log.Extend(log.With().Str("mod", "registry")),
	}
}

// Open creates a new session for the requester's own room and installs
// the requester as its sole teacher occupant.
func (r *Registry) Open(ctx context.Context, conn Conn, userID, roomID int64) (*Session, error) {
	user, err := r.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRecord) {
			return nil, ErrUserNotFound
		}
		return nil, upstream("storage", err)
	}
	room, err := r.store.RoomWithOwner(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRecord) {
			return nil, ErrRoomNotFound
		}
		return nil, upstream("storage", err)
	}
	// a room opened by a non-owner is indistinguishable from an absent one
	if room.OwnerID != user.ID {
		return nil, ErrRoomNotFound
	}

	var code Code
	for {
		code = r.generate(r.conf.CodeLength)
		if r.sessions.PutIfAbsent(code, nil) {
			break
		}
	}
	s := newSession(code, room.ID, room.OwnerID, room.Secret, room.Whiteboard, r.log)
	s.setTeacher(&Teacher{conn: conn, UserID: user.ID})
	r.sessions.Put(code, s)
	r.ann.Join(conn, code)

	monitoring.SessionsOpened.Inc()
	monitoring.SessionsLive.Inc()
	r.log.Info().Str("code", string(code)).Int64("room", room.ID).Msg("Session opened")
	return s, nil
}

// JoinAsStudent adds a student occupant gated by the room secret.
func (r *Registry) JoinAsStudent(conn Conn, code Code, name, secret string) (*Session, error) {
	s, err := r.find(code)
	if err != nil {
		return nil, err
	}
	if err = s.addStudent(&Student{conn: conn, Name: name}, secret); err != nil {
		return nil, err
	}
	s.disarmIdle()
	r.ann.Join(conn, code)
	r.ann.Broadcast(code, api.StudentJoined, api.StudentJoinedBroadcast{Id: conn.Id().String(), Name: name})
	return s, nil
}

// JoinAsTeacher installs the room owner as the teacher occupant,
// evicting a previous teacher if one is present.
func (r *Registry) JoinAsTeacher(ctx context.Context, conn Conn, code Code, userID int64) (*Session, error) {
	s, err := r.find(code)
	if err != nil {
		return nil, err
	}
	user, err := r.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRecord) {
			return nil, ErrUserNotFound
		}
		return nil, upstream("storage", err)
	}
	if s.ownerID != user.ID {
		return nil, ErrNotOwner
	}
	// re-joining on the same connection replaces the slot in place
	if evicted := s.setTeacher(&Teacher{conn: conn, UserID: user.ID}); evicted != nil && evicted.Conn().Id() != conn.Id() {
		r.ann.Leave(evicted.Conn(), code)
		evicted.Conn().Disconnect()
		r.log.Debug().Str("code", string(code)).Msg("Previous teacher evicted")
	}
	s.disarmIdle()
	r.ann.Join(conn, code)
	r.ann.Broadcast(code, api.TeacherJoined, api.OccupantInfo{Id: conn.Id().String()})
	return s, nil
}

// Leave removes the occupant of the connection from the session.
// Idempotent; arming the idle timer when the last occupant is gone.
func (r *Registry) Leave(conn Conn, code Code) {
	s, err := r.find(code)
	if err != nil {
		return
	}
	occ, removed := s.removeByConn(conn.Id())
	r.ann.Leave(conn, code)
	if !removed {
		return
	}
	if _, ok := occ.(*Student); ok {
		r.ann.Broadcast(code, api.StudentLeft, api.StudentLeftBroadcast{Id: conn.Id().String()})
	}
	if s.IsEmpty() && !s.isClosed() {
		s.armIdle(r.conf.IdleTimeout, func() {
			// state may have changed between arm and fire
			if s.IsEmpty() {
				r.log.Info().Str("code", string(code)).Msg("Idle session evicted")
				r.Close(s)
			}
		})
	}
}

// LeaveAll removes the connection from every session it belongs to.
func (r *Registry) LeaveAll(conn Conn) {
	for _, code := range r.ann.Groups(conn) {
		r.Leave(conn, code)
	}
}

// Close persists the whiteboard, tears the remote browser down,
// announces the closure and removes the session. Idempotent.
func (r *Registry) Close(s *Session) {
	if !s.beginClose() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SaveWhiteboard(ctx, s.roomID, s.Whiteboard()); err != nil {
		r.log.Error().Err(upstream("storage", err)).Str("code", string(s.code)).Msg("Whiteboard save fail")
	}
	if r.browser != nil {
		r.browser.Stop(string(s.code))
	}
	r.ann.Broadcast(s.code, api.CloseRoom, nil)
	r.ann.Drop(s.code)
	r.sessions.RemoveByKey(s.code)

	monitoring.SessionsClosed.Inc()
	monitoring.SessionsLive.Dec()
	r.log.Info().Str("code", string(s.code)).Msg("Session closed")
}

// OnRoomDeleted reacts to an external room removal. Tolerates rooms
// with no live session.
func (r *Registry) OnRoomDeleted(roomID int64) {
	s, err := r.sessions.FindBy(func(s *Session) bool { return s != nil && s.roomID == roomID })
	if err != nil {
		return
	}
	r.Close(s)
}

// ByConn resolves the live session of a connection by scanning the
// broadcast groups it belongs to.
func (r *Registry) ByConn(conn Conn) (*Session, error) {
	for _, code := range r.ann.Groups(conn) {
		if s, err := r.find(code); err == nil {
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

// OtherOccupant resolves another occupant of the caller's own session.
func (r *Registry) OtherOccupant(conn Conn, otherID string) (Conn, error) {
	s, err := r.ByConn(conn)
	if err != nil {
		return nil, err
	}
	uid, err := com.UidFrom(otherID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	occ, ok := s.Occupant(uid)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return occ.Conn(), nil
}

func (r *Registry) Exists(code Code) bool { return r.sessions.Has(code) }

func (r *Registry) find(code Code) (*Session, error) {
	s, err := r.sessions.Find(code)
	if err != nil || s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Shutdown closes every live session; used on process termination.
func (r *Registry) Shutdown() {
	var open []*Session
	r.sessions.ForEach(func(s *Session) {
		if s != nil {
			open = append(open, s)
		}
	})
	for _, s := range open {
		r.Close(s)
	}
}
