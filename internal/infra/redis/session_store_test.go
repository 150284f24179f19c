package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func newSession(id, code string, createdAt time.Time) domain.Session {
	return domain.Session{
		ID:        id,
		QuizID:    "quiz-1",
		HostID:    "host-1",
		JoinCode:  code,
		Status:    domain.StatusWaiting,
		Version:   1,
		CreatedAt: createdAt,
	}
}

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	ctx := context.Background()
	mr := newMiniredis(t)
	store := NewSessionStore(newClient(mr), time.Hour)

	old := newSession("s-old", "OLD234", time.Now().Add(-48*time.Hour))
	if err := store.CreateSession(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:session:s-old") || !mr.Exists("quiz:joincode:OLD234") {
		t.Fatalf("expected session and join code keys")
	}
	if ttl := mr.TTL("quiz:session:s-old"); ttl != time.Hour {
		t.Fatalf("expected retention ttl on session key, got %s", ttl)
	}
	if err := store.AddParticipant(ctx, domain.Participant{ID: "p1", SessionID: "s-old", Name: "Ann"}); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if _, err := store.RecordAnswer(ctx, domain.Answer{ID: "a1", SessionID: "s-old", ParticipantID: "p1", QuestionID: "q1", Score: 1}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	fresh := newSession("s-new", "NEW234", time.Now())
	if err := store.CreateSession(ctx, fresh); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	removed, err := store.DeleteSessionsBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one session removed, got %d", removed)
	}
	for _, key := range []string{
		"quiz:session:s-old",
		"quiz:joincode:OLD234",
		"quiz:session:s-old:participants",
		"quiz:participant:p1",
		"quiz:participant:p1:answers",
	} {
		if mr.Exists(key) {
			t.Fatalf("expected %s to be removed", key)
		}
	}
	if !mr.Exists("quiz:session:s-new") {
		t.Fatalf("fresh session must survive the sweep")
	}
}

func TestSessionStoreJoinCodeUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newClient(newMiniredis(t)), 0)

	if err := store.CreateSession(ctx, newSession("s1", "ABCDEF", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateSession(ctx, newSession("s2", "ABCDEF", time.Now())); !errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected join code taken, got %v", err)
	}
	got, err := store.GetSessionByJoinCode(ctx, "ABCDEF")
	if err != nil || got.ID != "s1" {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if _, err := store.GetSessionByJoinCode(ctx, "ZZZZZZ"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreUpdateIsVersioned(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newClient(newMiniredis(t)), 0)
	session := newSession("s1", "ABCDEF", time.Now())
	store.CreateSession(ctx, session)

	session.Status = domain.StatusActive
	updated, err := store.UpdateSession(ctx, session)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.Status != domain.StatusActive {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if _, err := store.UpdateSession(ctx, session); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	stored, _ := store.GetSession(ctx, "s1")
	if stored.Version != 2 {
		t.Fatalf("conflicting write must not land, version %d", stored.Version)
	}
}

func TestSessionStoreRecordAnswerOnce(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newClient(newMiniredis(t)), time.Hour)
	store.CreateSession(ctx, newSession("s1", "ABCDEF", time.Now()))
	if err := store.AddParticipant(ctx, domain.Participant{ID: "p1", SessionID: "s1", Name: "Ann"}); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, duplicates := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordAnswer(ctx, domain.Answer{ID: "a", SessionID: "s1", ParticipantID: "p1", QuestionID: "q1", Answer: "B", Score: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrAlreadyAnswered):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 || duplicates != 7 {
		t.Fatalf("expected 1 accepted and 7 duplicates, got %d and %d", accepted, duplicates)
	}
	p, err := store.GetParticipant(ctx, "p1")
	if err != nil || p.Score != 1 {
		t.Fatalf("expected score 1, got %+v %v", p, err)
	}
	answers, err := store.ListAnswers(ctx, "s1")
	if err != nil || len(answers) != 1 || answers[0].Answer != "B" {
		t.Fatalf("unexpected answers %+v %v", answers, err)
	}
	if _, found, _ := store.FindAnswer(ctx, "p1", "q1"); !found {
		t.Fatalf("expected answer to be found")
	}
	if _, found, _ := store.FindAnswer(ctx, "p1", "q2"); found {
		t.Fatalf("q2 was never answered")
	}
}

func TestSessionStoreParticipants(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newClient(newMiniredis(t)), 0)
	if err := store.AddParticipant(ctx, domain.Participant{ID: "p0", SessionID: "missing"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	store.CreateSession(ctx, newSession("s1", "ABCDEF", time.Now()))
	base := time.Now()
	store.AddParticipant(ctx, domain.Participant{ID: "p2", SessionID: "s1", Name: "Ben", JoinedAt: base.Add(time.Second)})
	store.AddParticipant(ctx, domain.Participant{ID: "p1", SessionID: "s1", Name: "Ann", JoinedAt: base})

	started := newSession("s2", "GHJKLM", time.Now())
	started.Status = domain.StatusActive
	store.CreateSession(ctx, started)
	if err := store.AddParticipant(ctx, domain.Participant{ID: "p3", SessionID: "s2", Name: "Cat"}); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
	if _, err := store.GetParticipant(ctx, "p3"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("rejected participant must not be stored, got %v", err)
	}

	list, err := store.ListParticipants(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "p1" || list[1].ID != "p2" {
		t.Fatalf("expected join order, got %+v", list)
	}
	if _, err := store.GetParticipant(ctx, "nobody"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
}
