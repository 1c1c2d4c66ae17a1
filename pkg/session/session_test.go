package session

import (
	"testing"
	"time"

	"github.com/liveclass/liveclass/pkg/logger"
)

func testSession() *Session {
	return newSession("123456", 10, 1, "s3cret", nil, logger.New(false))
}

func TestSessionStates(t *testing.T) {
	s := testSession()
	if got := s.State(); got != EmptyPendingClose {
		t.Fatalf("fresh session state = %v", got)
	}

	teacher := newFakeConn()
	s.setTeacher(&Teacher{conn: teacher, UserID: 1})
	if got := s.State(); got != ActiveWithTeacher {
		t.Fatalf("state = %v", got)
	}

	stud := newFakeConn()
	if err := s.addStudent(&Student{conn: stud, Name: "bob"}, "s3cret"); err != nil {
		t.Fatalf("add fail: %v", err)
	}
	if got := s.State(); got != ActiveWithOccupants {
		t.Fatalf("state = %v", got)
	}

	s.removeByConn(teacher.Id())
	s.removeByConn(stud.Id())
	if got := s.State(); got != EmptyPendingClose {
		t.Fatalf("state = %v", got)
	}

	if !s.beginClose() {
		t.Fatal("first close must win")
	}
	if s.beginClose() {
		t.Fatal("second close must lose")
	}
	if got := s.State(); got != Closed {
		t.Fatalf("state = %v", got)
	}
}

func TestSnapshot(t *testing.T) {
	s := testSession()
	teacher := newFakeConn()
	s.setTeacher(&Teacher{conn: teacher, UserID: 1, Video: true})
	stud := newFakeConn()
	_ = s.addStudent(&Student{conn: stud, Name: "bob"}, "s3cret")
	s.SetRaised(stud.Id(), true)
	s.SetWhiteboard([]byte(`[]`))

	snap := s.Snapshot()
	if snap.Id != "123456" {
		t.Fatalf("id = %q", snap.Id)
	}
	if snap.Teacher == nil || !snap.Teacher.Video {
		t.Fatalf("teacher info lost: %+v", snap.Teacher)
	}
	if len(snap.Students) != 1 || !snap.Students[0].Raised || snap.Students[0].Name != "bob" {
		t.Fatalf("student info lost: %+v", snap.Students)
	}
	if string(snap.Whiteboard) != `[]` {
		t.Fatalf("whiteboard = %q", snap.Whiteboard)
	}
}

func TestRenameOnlyStudents(t *testing.T) {
	s := testSession()
	teacher := newFakeConn()
	s.setTeacher(&Teacher{conn: teacher, UserID: 1})
	if s.Rename(teacher.Id(), "x") {
		t.Fatal("teachers are named by identity")
	}
	stud := newFakeConn()
	_ = s.addStudent(&Student{conn: stud, Name: "bob"}, "s3cret")
	if !s.Rename(stud.Id(), "robert") {
		t.Fatal("student rename rejected")
	}
	if got := s.Snapshot().Students[0].Name; got != "robert" {
		t.Fatalf("name = %q", got)
	}
}

func TestIdleRearmCancelsPrevious(t *testing.T) {
	s := testSession()
	fired := make(chan int, 2)
	s.armIdle(10*time.Millisecond, func() { fired <- 1 })
	s.armIdle(30*time.Millisecond, func() { fired <- 2 })

	select {
	case got := <-fired:
		if got != 2 {
			t.Fatalf("stale timer fired: %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	select {
	case got := <-fired:
		t.Fatalf("duplicate firing: %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIdleIgnoredAfterClose(t *testing.T) {
	s := testSession()
	s.beginClose()
	fired := make(chan struct{}, 1)
	s.armIdle(5*time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
		t.Fatal("closed session armed a timer")
	case <-time.After(30 * time.Millisecond):
	}
}
