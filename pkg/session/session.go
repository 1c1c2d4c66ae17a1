package session

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/logger"
)

// State of a live session.
type State uint8

const (
	ActiveWithTeacher State = iota + 1
	ActiveWithOccupants
	EmptyPendingClose
	Closed
)

func (s State) String() string {
	switch s {
	case ActiveWithTeacher:
		return "active-with-teacher"
	case ActiveWithOccupants:
		return "active-with-occupants"
	case EmptyPendingClose:
		return "empty-pending-close"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session is one live classroom instance. It owns the occupant
// roster, the whiteboard snapshot, and the idle-eviction timer.
// All mutations are serialized by the session mutex; the registry
// holds the only long-lived reference.
type Session struct {
	code    Code
	roomID  int64
	ownerID int64
	secret  string

	mu         sync.Mutex
	teacher    *Teacher
	students   map[com.Uid]*Student
	whiteboard []byte
	idle       *time.Timer
	closed     bool

	log *logger.Logger
}

func newSession(code Code, roomID, ownerID int64, secret string, whiteboard []byte, log *logger.Logger) *Session {
	return &Session{
		code:       code,
		roomID:     roomID,
		ownerID:    ownerID,
		secret:     secret,
		whiteboard: whiteboard,
		students:   make(map[com.Uid]*Student, 8),
		log:        log.Extend(log.With().Str("session", string(code))),
	}
}

func (s *Session) Code() Code    { return s.code }
func (s *Session) RoomID() int64 { return s.roomID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return Closed
	case s.teacher == nil && len(s.students) == 0:
		return EmptyPendingClose
	case len(s.students) == 0:
		return ActiveWithTeacher
	default:
		return ActiveWithOccupants
	}
}

// IsEmpty reports whether the session has no teacher and zero students.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teacher == nil && len(s.students) == 0
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// beginClose flips the session into the terminal state exactly once.
func (s *Session) beginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	return true
}

// setTeacher installs a teacher occupant and returns the evicted one, if any.
func (s *Session) setTeacher(t *Teacher) (evicted *Teacher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted = s.teacher
	s.teacher = t
	return
}

// addStudent inserts or overwrites the student keyed by its connection id.
// A wrong secret never mutates the roster.
func (s *Session) addStudent(st *Student, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret != "" && s.secret != secret {
		return ErrWrongSecret
	}
	s.students[st.conn.Id()] = st
	return nil
}

// removeByConn drops the occupant matching the connection id from either
// slot. No-op when absent.
func (s *Session) removeByConn(id com.Uid) (occ Occupant, removed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teacher != nil && s.teacher.conn.Id() == id {
		occ, removed = s.teacher, true
		s.teacher = nil
		return
	}
	if st, ok := s.students[id]; ok {
		occ, removed = st, true
		delete(s.students, id)
	}
	return
}

// Occupant resolves a roster member by connection id.
func (s *Session) Occupant(id com.Uid) (Occupant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teacher != nil && s.teacher.conn.Id() == id {
		return s.teacher, true
	}
	if st, ok := s.students[id]; ok {
		return st, true
	}
	return nil, false
}

// Rename updates a student display name. Teachers are named by identity.
func (s *Session) Rename(id com.Uid, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.students[id]; ok {
		st.Name = name
		return true
	}
	return false
}

// SetWebcam stores the webcam/mic flags of an occupant, last write wins.
func (s *Session) SetWebcam(id com.Uid, video, audio bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teacher != nil && s.teacher.conn.Id() == id {
		s.teacher.Video, s.teacher.Audio = video, audio
		return true
	}
	if st, ok := s.students[id]; ok {
		st.Video, st.Audio = video, audio
		return true
	}
	return false
}

func (s *Session) SetRaised(id com.Uid, raised bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.students[id]; ok {
		st.Raised = raised
		return true
	}
	return false
}

// SetWhiteboard replaces the whiteboard snapshot, last write wins.
func (s *Session) SetWhiteboard(blob []byte) {
	s.mu.Lock()
	s.whiteboard = blob
	s.mu.Unlock()
}

func (s *Session) Whiteboard() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.whiteboard
}

// Snapshot renders the current session for a (re)joining occupant.
func (s *Session) Snapshot() api.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := api.SessionState{Id: string(s.code), Students: []api.OccupantInfo{}, Whiteboard: json.RawMessage(s.whiteboard)}
	if s.teacher != nil {
		info := s.teacher.Info()
		state.Teacher = &info
	}
	for _, st := range s.students {
		state.Students = append(state.Students, st.Info())
	}
	return state
}

// armIdle schedules the idle eviction, cancelling any prior timer
// so the session never has duplicate firings pending.
func (s *Session) armIdle(d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.idle != nil {
		s.idle.Stop()
	}
	s.idle = time.AfterFunc(d, fire)
	s.log.Debug().Msgf("Idle eviction armed for %v", d)
}

func (s *Session) disarmIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
		s.log.Debug().Msg("Idle eviction disarmed")
	}
}
