package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecords(prefix string, n int) []model.QuestionRecord {
	records := make([]model.QuestionRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, model.QuestionRecord{
			ID:            fmt.Sprintf("%s-%d", prefix, i),
			Question:      fmt.Sprintf("%s question %d", prefix, i),
			CorrectAnswer: fmt.Sprintf("%s answer %d", prefix, i),
		})
	}
	return records
}

func appendTestRecords(t *testing.T, s *Store, sessionID, prefix string, n int) []model.QuestionRecord {
	t.Helper()
	records := testRecords(prefix, n)
	if err := s.AppendRecords(context.Background(), sessionID, records); err != nil {
		t.Fatalf("AppendRecords: %v", err)
	}
	return records
}

func TestAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unknown session is empty, not an error.
	list, err := s.ListRecords(ctx, "s1")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	appendTestRecords(t, s, "s1", "a", 5)
	appendTestRecords(t, s, "s1", "b", 5)

	list, err = s.ListRecords(ctx, "s1")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(list) != 10 {
		t.Fatalf("expected 10 records, got %d", len(list))
	}
	// Append order is preserved across calls.
	if list[0].ID != "a-0" || list[5].ID != "b-0" || list[9].ID != "b-4" {
		t.Errorf("unexpected order: %s %s %s", list[0].ID, list[5].ID, list[9].ID)
	}
	for _, r := range list {
		if r.UserAnswer != nil || r.Feedback != nil {
			t.Errorf("record %s: expected no answer and no feedback", r.ID)
		}
		if r.CreatedAt.IsZero() {
			t.Errorf("record %s: expected created_at", r.ID)
		}
	}

	count, err := s.RecordCount(ctx, "s1")
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if count != 10 {
		t.Errorf("expected count 10, got %d", count)
	}
}

func TestAppendIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	appendTestRecords(t, s, "s1", "a", 2)

	// The second batch reuses an id, so nothing from it may be stored.
	batch := testRecords("b", 3)
	batch[2].ID = "a-0"
	if err := s.AppendRecords(ctx, "s1", batch); err == nil {
		t.Fatal("expected duplicate id error")
	}

	count, _ := s.RecordCount(ctx, "s1")
	if count != 2 {
		t.Errorf("expected 2 records after failed append, got %d", count)
	}

	if err := s.AppendRecords(ctx, "s1", []model.QuestionRecord{{Question: "no id"}}); err == nil {
		t.Error("expected error for record without id")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	appendTestRecords(t, s, "s1", "a", 3)
	appendTestRecords(t, s, "s2", "b", 2)

	first, err := s.FirstRecord(ctx, "s2")
	if err != nil {
		t.Fatalf("FirstRecord: %v", err)
	}
	if first.ID != "b-0" {
		t.Errorf("expected b-0, got %s", first.ID)
	}

	// A record of another session is not visible.
	if _, err := s.GetRecord(ctx, "s2", "a-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetAnswer(ctx, "s2", "a-0", "x", model.Feedback{Accuracy: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	n, err := s.SessionCount(ctx)
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 sessions, got %d", n)
	}
}

func TestFirstRecordEmpty(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.FirstRecord(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAnswerOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendTestRecords(t, s, "s1", "a", 2)

	err := s.SetAnswer(ctx, "s1", "a-1", "first", model.Feedback{
		Accuracy:      40,
		MissingPoints: []string{"scheduler"},
	})
	if err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	err = s.SetAnswer(ctx, "s1", "a-1", "second", model.Feedback{
		Accuracy:    90,
		Suggestions: []string{"examples"},
	})
	if err != nil {
		t.Fatalf("SetAnswer again: %v", err)
	}

	r, err := s.GetRecord(ctx, "s1", "a-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if r.UserAnswer == nil || *r.UserAnswer != "second" {
		t.Errorf("expected user answer 'second', got %v", r.UserAnswer)
	}
	if r.Feedback == nil || r.Feedback.Accuracy != 90 {
		t.Fatalf("expected accuracy 90, got %+v", r.Feedback)
	}
	if len(r.Feedback.MissingPoints) != 0 {
		t.Errorf("expected previous missing points to be replaced, got %v", r.Feedback.MissingPoints)
	}
	if len(r.Feedback.Suggestions) != 1 || r.Feedback.Suggestions[0] != "examples" {
		t.Errorf("unexpected suggestions: %v", r.Feedback.Suggestions)
	}

	// The other record is untouched.
	other, _ := s.GetRecord(ctx, "s1", "a-0")
	if other.Answered() {
		t.Error("expected a-0 to stay unanswered")
	}
}

func TestReplaceRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendTestRecords(t, s, "s1", "old", 3)

	if err := s.ReplaceRecords(ctx, "s1", testRecords("new", 2)); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	got, err := s.ListRecords(ctx, "s1")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new-0" || got[1].ID != "new-1" {
		t.Errorf("unexpected records after replace: %+v", got)
	}

	// A failed replace leaves the previous records in place.
	bad := append(testRecords("bad", 1), model.QuestionRecord{Question: "no id"})
	if err := s.ReplaceRecords(ctx, "s1", bad); err == nil {
		t.Fatal("expected error for record without id")
	}
	if n, _ := s.RecordCount(ctx, "s1"); n != 2 {
		t.Errorf("expected 2 records after failed replace, got %d", n)
	}
}

func TestDeleteIdleSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendTestRecords(t, s, "old", "a", 2)
	appendTestRecords(t, s, "new", "b", 2)

	// Backdate the first session.
	if _, err := s.db.Exec(`UPDATE sessions SET last_seen = ? WHERE id = 'old'`, time.Now().Add(-48*time.Hour).UTC()); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := s.DeleteIdleSessions(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteIdleSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 session removed, got %d", n)
	}
	if _, err := s.GetSession(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old session gone, got %v", err)
	}
	if c, _ := s.RecordCount(ctx, "old"); c != 0 {
		t.Errorf("expected old records gone, got %d", c)
	}
	if c, _ := s.RecordCount(ctx, "new"); c != 2 {
		t.Errorf("expected new records kept, got %d", c)
	}
}

func TestTouchSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.TouchSession(ctx, "s1"); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	first, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.TouchSession(ctx, "s1"); err != nil {
		t.Fatalf("TouchSession again: %v", err)
	}
	second, _ := s.GetSession(ctx, "s1")
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("created_at should not change")
	}
	if !second.LastSeen.After(first.LastSeen) {
		t.Error("last_seen should advance")
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.AppendRecords(ctx, "s1", testRecords(fmt.Sprintf("g%d", i), 5)); err != nil {
				t.Errorf("AppendRecords: %v", err)
			}
		}(i)
	}
	wg.Wait()

	list, err := s.ListRecords(ctx, "s1")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(list) != 50 {
		t.Fatalf("expected 50 records, got %d", len(list))
	}
	// Each batch stays contiguous.
	for i := 0; i < len(list); i += 5 {
		prefix := list[i].ID[:len(list[i].ID)-2]
		for j := 1; j < 5; j++ {
			if got := list[i+j].ID[:len(list[i+j].ID)-2]; got != prefix {
				t.Fatalf("batch %s interleaved with %s", prefix, got)
			}
		}
	}
}
