package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/liveclass/liveclass/pkg/api"
	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/storage"
)

type fakeConn struct {
	id com.Uid

	mu           sync.Mutex
	notes        []api.PT
	disconnected bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: com.NewUid()} }

func (c *fakeConn) Id() com.Uid { return c.id }
func (c *fakeConn) Notify(t api.PT, _ any) {
	c.mu.Lock()
	c.notes = append(c.notes, t)
	c.mu.Unlock()
}
func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}
func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type fakeStore struct {
	mu    sync.Mutex
	users map[int64]*storage.User
	rooms map[int64]*storage.Room
	saved map[int64][]byte
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[int64]*storage.User{},
		rooms: map[int64]*storage.Room{},
		saved: map[int64][]byte{},
	}
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNoRecord
}

func (f *fakeStore) RoomWithOwner(_ context.Context, id int64) (*storage.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[id]; ok {
		return r, nil
	}
	return nil, storage.ErrNoRecord
}

func (f *fakeStore) SaveWhiteboard(_ context.Context, roomID int64, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[roomID] = blob
	f.saves++
	return nil
}

type fakeAnnouncer struct {
	mu     sync.Mutex
	groups map[Code]map[com.Uid]Conn
	casts  []api.PT
}

func newFakeAnnouncer() *fakeAnnouncer { return &fakeAnnouncer{groups: map[Code]map[com.Uid]Conn{}} }

func (a *fakeAnnouncer) Join(conn Conn, code Code) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[code]
	if !ok {
		g = map[com.Uid]Conn{}
		a.groups[code] = g
	}
	g[conn.Id()] = conn
}

func (a *fakeAnnouncer) Leave(conn Conn, code Code) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.groups[code], conn.Id())
}

func (a *fakeAnnouncer) Broadcast(code Code, t api.PT, payload any) {
	a.mu.Lock()
	members := make([]Conn, 0, len(a.groups[code]))
	for _, c := range a.groups[code] {
		members = append(members, c)
	}
	a.casts = append(a.casts, t)
	a.mu.Unlock()
	for _, c := range members {
		c.Notify(t, payload)
	}
}

func (a *fakeAnnouncer) Groups(conn Conn) (codes []Code) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for code, g := range a.groups {
		if _, ok := g[conn.Id()]; ok {
			codes = append(codes, code)
		}
	}
	return
}

func (a *fakeAnnouncer) Drop(code Code) {
	a.mu.Lock()
	delete(a.groups, code)
	a.mu.Unlock()
}

func (a *fakeAnnouncer) members(code Code) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups[code])
}

type fakeBrowser struct {
	mu      sync.Mutex
	stopped []string
}

func (b *fakeBrowser) Stop(id string) {
	b.mu.Lock()
	b.stopped = append(b.stopped, id)
	b.mu.Unlock()
}

func (b *fakeBrowser) stops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.stopped)
}

type fixture struct {
	r     *Registry
	store *fakeStore
	ann   *fakeAnnouncer
	bro   *fakeBrowser
}

func newFixture(idle time.Duration) *fixture {
	store := newFakeStore()
	store.users[1] = &storage.User{ID: 1, Name: "alice"}
	store.rooms[10] = &storage.Room{ID: 10, Name: "algebra", Secret: "s3cret", OwnerID: 1}
	ann := newFakeAnnouncer()
	bro := &fakeBrowser{}
	conf := config.Session{IdleTimeout: idle, CodeLength: 6}
	r := NewRegistry(conf, store, bro, ann, logger.New(false))
	return &fixture{r: r, store: store, ann: ann, bro: bro}
}

func (f *fixture) open(t *testing.T, conn Conn) *Session {
	t.Helper()
	s, err := f.r.Open(context.Background(), conn, 1, 10)
	if err != nil {
		t.Fatalf("open fail: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestOpenRetriesCodeCollision(t *testing.T) {
	f := newFixture(time.Minute)
	codes := []Code{"111111", "111111", "222222"}
	f.r.generate = func(int) Code { c := codes[0]; codes = codes[1:]; return c }

	first := f.open(t, newFakeConn())
	second := f.open(t, newFakeConn())

	if first.Code() != "111111" || second.Code() != "222222" {
		t.Fatalf("got codes %v and %v", first.Code(), second.Code())
	}
	if !f.r.Exists("111111") || !f.r.Exists("222222") {
		t.Fatal("both sessions should be live")
	}
}

func TestOpenRejectsForeignRoom(t *testing.T) {
	f := newFixture(time.Minute)
	f.store.users[2] = &storage.User{ID: 2, Name: "mallory"}

	if _, err := f.r.Open(context.Background(), newFakeConn(), 2, 10); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("want room-not-found, got %v", err)
	}
	if _, err := f.r.Open(context.Background(), newFakeConn(), 99, 10); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want user-not-found, got %v", err)
	}
}

func TestJoinStudentWrongSecret(t *testing.T) {
	f := newFixture(time.Minute)
	s := f.open(t, newFakeConn())

	stud := newFakeConn()
	if _, err := f.r.JoinAsStudent(stud, s.Code(), "bob", "wrong"); !errors.Is(err, ErrWrongSecret) {
		t.Fatalf("want wrong-secret, got %v", err)
	}
	if got := len(s.Snapshot().Students); got != 0 {
		t.Fatalf("roster mutated on rejected join: %v students", got)
	}
	if f.ann.members(s.Code()) != 1 {
		t.Fatal("rejected student must not enter the broadcast group")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	f := newFixture(time.Minute)
	if _, err := f.r.JoinAsStudent(newFakeConn(), "000000", "bob", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want session-not-found, got %v", err)
	}
}

func TestTeacherEviction(t *testing.T) {
	f := newFixture(time.Minute)
	old := newFakeConn()
	s := f.open(t, old)

	replacement := newFakeConn()
	if _, err := f.r.JoinAsTeacher(context.Background(), replacement, s.Code(), 1); err != nil {
		t.Fatalf("rejoin fail: %v", err)
	}
	if !old.isDisconnected() {
		t.Fatal("previous teacher connection should be dropped")
	}
	snap := s.Snapshot()
	if snap.Teacher == nil || snap.Teacher.Id != replacement.Id().String() {
		t.Fatalf("teacher slot not replaced: %+v", snap.Teacher)
	}
}

func TestTeacherRejoinSameConnection(t *testing.T) {
	f := newFixture(time.Minute)
	teacher := newFakeConn()
	s := f.open(t, teacher)

	if _, err := f.r.JoinAsTeacher(context.Background(), teacher, s.Code(), 1); err != nil {
		t.Fatalf("rejoin fail: %v", err)
	}
	if teacher.isDisconnected() {
		t.Fatal("teacher must not evict its own connection")
	}
	if f.ann.members(s.Code()) != 1 {
		t.Fatalf("broadcast group size = %d", f.ann.members(s.Code()))
	}
	snap := s.Snapshot()
	if snap.Teacher == nil || snap.Teacher.Id != teacher.Id().String() {
		t.Fatalf("teacher slot lost: %+v", snap.Teacher)
	}
}

func TestJoinTeacherRequiresOwnership(t *testing.T) {
	f := newFixture(time.Minute)
	f.store.users[2] = &storage.User{ID: 2, Name: "mallory"}
	s := f.open(t, newFakeConn())

	if _, err := f.r.JoinAsTeacher(context.Background(), newFakeConn(), s.Code(), 2); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("want not-owner, got %v", err)
	}
}

func TestIdleEviction(t *testing.T) {
	f := newFixture(20 * time.Millisecond)
	teacher := newFakeConn()
	s := f.open(t, teacher)
	s.SetWhiteboard([]byte(`{"lines":1}`))

	f.r.Leave(teacher, s.Code())
	waitFor(t, func() bool { return !f.r.Exists(s.Code()) })

	if f.bro.stops() != 1 {
		t.Fatalf("browser stop count = %d", f.bro.stops())
	}
	f.store.mu.Lock()
	saved := string(f.store.saved[10])
	f.store.mu.Unlock()
	if saved != `{"lines":1}` {
		t.Fatalf("whiteboard not persisted, got %q", saved)
	}
}

func TestIdleEvictionCanceledByJoin(t *testing.T) {
	f := newFixture(30 * time.Millisecond)
	teacher := newFakeConn()
	s := f.open(t, teacher)

	f.r.Leave(teacher, s.Code())
	if _, err := f.r.JoinAsStudent(newFakeConn(), s.Code(), "bob", "s3cret"); err != nil {
		t.Fatalf("rejoin fail: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if !f.r.Exists(s.Code()) {
		t.Fatal("occupied session must outlive the idle timeout")
	}
}

func TestCloseIdempotent(t *testing.T) {
	f := newFixture(time.Minute)
	s := f.open(t, newFakeConn())

	f.r.Close(s)
	f.r.Close(s)

	if f.store.saves != 1 {
		t.Fatalf("whiteboard persisted %d times", f.store.saves)
	}
	if f.bro.stops() != 1 {
		t.Fatalf("browser stop count = %d", f.bro.stops())
	}
	if f.r.Exists(s.Code()) {
		t.Fatal("closed session still resolvable")
	}
	if s.State() != Closed {
		t.Fatalf("state = %v", s.State())
	}
}

func TestOnRoomDeleted(t *testing.T) {
	f := newFixture(time.Minute)
	s := f.open(t, newFakeConn())

	f.r.OnRoomDeleted(99) // no session, tolerated
	if !f.r.Exists(s.Code()) {
		t.Fatal("unrelated deletion closed the session")
	}
	f.r.OnRoomDeleted(10)
	if f.r.Exists(s.Code()) {
		t.Fatal("session should close with its room")
	}
}

func TestOtherOccupantScopedToOwnSession(t *testing.T) {
	f := newFixture(time.Minute)
	f.store.users[2] = &storage.User{ID: 2, Name: "carol"}
	f.store.rooms[20] = &storage.Room{ID: 20, Name: "biology", OwnerID: 2}

	aTeacher, bTeacher := newFakeConn(), newFakeConn()
	sa := f.open(t, aTeacher)
	if _, err := f.r.Open(context.Background(), bTeacher, 2, 20); err != nil {
		t.Fatalf("open fail: %v", err)
	}

	aStudent := newFakeConn()
	if _, err := f.r.JoinAsStudent(aStudent, sa.Code(), "bob", "s3cret"); err != nil {
		t.Fatalf("join fail: %v", err)
	}

	if _, err := f.r.OtherOccupant(aStudent, aTeacher.Id().String()); err != nil {
		t.Fatalf("same-session lookup fail: %v", err)
	}
	if _, err := f.r.OtherOccupant(aStudent, bTeacher.Id().String()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("cross-session lookup must fail, got %v", err)
	}
}

func TestStudentLeftBroadcast(t *testing.T) {
	f := newFixture(time.Minute)
	teacher := newFakeConn()
	s := f.open(t, teacher)
	stud := newFakeConn()
	if _, err := f.r.JoinAsStudent(stud, s.Code(), "bob", "s3cret"); err != nil {
		t.Fatalf("join fail: %v", err)
	}

	f.r.Leave(stud, s.Code())
	f.r.Leave(stud, s.Code()) // idempotent

	teacher.mu.Lock()
	var lefts int
	for _, n := range teacher.notes {
		if n == api.StudentLeft {
			lefts++
		}
	}
	teacher.mu.Unlock()
	if lefts != 1 {
		t.Fatalf("student-left broadcast %d times", lefts)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	f := newFixture(time.Minute)
	s1 := f.open(t, newFakeConn())
	f.store.users[2] = &storage.User{ID: 2, Name: "carol"}
	f.store.rooms[20] = &storage.Room{ID: 20, Name: "biology", OwnerID: 2}
	s2, err := f.r.Open(context.Background(), newFakeConn(), 2, 20)
	if err != nil {
		t.Fatalf("open fail: %v", err)
	}

	f.r.Shutdown()
	if f.r.Exists(s1.Code()) || f.r.Exists(s2.Code()) {
		t.Fatal("sessions survived shutdown")
	}
}
