package app

import (
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func timedSession(startMs int64, limit time.Duration) domain.Session {
	return domain.Session{
		ID:              "s1",
		Status:          domain.StatusActive,
		QuestionStartMs: startMs,
		QuestionEndMs:   startMs + limit.Milliseconds(),
	}
}

func TestIsLate(t *testing.T) {
	session := timedSession(10_000, 20*time.Second)
	end := session.QuestionEndMs + domain.GracePeriod.Milliseconds()

	cases := []struct {
		ts   int64
		late bool
	}{
		{session.QuestionStartMs, false},
		{session.QuestionEndMs, false},
		{end, false},
		{end + 1, true},
	}
	for _, tc := range cases {
		if got := isLate(session, tc.ts); got != tc.late {
			t.Fatalf("isLate(%d) = %v, want %v", tc.ts, got, tc.late)
		}
	}

	if isLate(domain.Session{}, 1<<40) {
		t.Fatalf("a session without a timer never rejects")
	}
}

func TestValidatedTimeTaken(t *testing.T) {
	question := domain.Question{TimeLimitSeconds: 10}
	session := timedSession(1_000, question.TimeLimit())

	cases := []struct {
		name     string
		clientTs int64
		reported float64
		want     float64
	}{
		{"server elapsed wins over a smaller claim", 5_000, 1, 4},
		{"larger claim is kept", 3_000, 6, 6},
		{"capped at limit plus grace", 100_000, 0, 15},
		{"negative clamps to zero", 0, -3, 0},
		{"no client timestamp uses reported", 0, 7.5, 7.5},
	}
	for _, tc := range cases {
		if got := validatedTimeTaken(session, question, tc.clientTs, tc.reported); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestScoreAnswer(t *testing.T) {
	question := domain.Question{ID: "q1", CorrectAnswer: "B", TimeLimitSeconds: 10}
	session := timedSession(1_000, question.TimeLimit())
	sub := domain.AnswerSubmission{ParticipantID: "p1", QuestionID: "q1", Answer: "B", ClientTimestamp: 3_000}

	onTime := scoreAnswer(session, question, sub, time.UnixMilli(3_500))
	if !onTime.IsCorrect || onTime.Score != 1 || onTime.TimeTaken != 2 {
		t.Fatalf("unexpected on-time answer %+v", onTime)
	}

	// The server receipt time decides when the client claims to be early.
	late := scoreAnswer(session, question, sub, time.UnixMilli(session.QuestionEndMs+6_000))
	if late.IsCorrect || late.Score != 0 {
		t.Fatalf("expected late answer to score nothing, got %+v", late)
	}

	sub.Answer = "A"
	wrong := scoreAnswer(session, question, sub, time.UnixMilli(3_500))
	if wrong.IsCorrect || wrong.Score != 0 || wrong.Answer != "A" {
		t.Fatalf("unexpected wrong answer %+v", wrong)
	}
}
