package app

import (
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// scoreAnswer turns an admitted submission into the answer row to record.
// Lateness is judged on the later of the client timestamp and server receipt time,
// so a fabricated early timestamp cannot reopen a closed window.
func scoreAnswer(session domain.Session, question domain.Question, sub domain.AnswerSubmission, receivedAt time.Time) domain.Answer {
	effective := sub.ClientTimestamp
	if server := receivedAt.UnixMilli(); server > effective {
		effective = server
	}
	correct := !isLate(session, effective) && sub.Answer == question.CorrectAnswer
	return domain.Answer{
		SessionID:     session.ID,
		ParticipantID: sub.ParticipantID,
		QuestionID:    question.ID,
		Answer:        sub.Answer,
		IsCorrect:     correct,
		Score:         points(correct),
		TimeTaken:     validatedTimeTaken(session, question, sub.ClientTimestamp, sub.TimeTaken),
		SubmittedAt:   receivedAt,
	}
}

// isLate reports whether tsMs falls after the question window plus the grace period.
// The boundary itself is on time. A session without a timer never rejects.
func isLate(session domain.Session, tsMs int64) bool {
	if session.QuestionEndMs == 0 {
		return false
	}
	return tsMs > session.QuestionEndMs+domain.GracePeriod.Milliseconds()
}

// validatedTimeTaken prefers the server-derived elapsed time, never goes below the client's
// figure, and caps the result at the time limit plus grace.
func validatedTimeTaken(session domain.Session, question domain.Question, clientTsMs int64, reported float64) float64 {
	taken := reported
	if session.QuestionStartMs != 0 && clientTsMs != 0 {
		actual := float64(clientTsMs-session.QuestionStartMs) / 1000
		taken = math.Max(actual, reported)
	}
	limit := (question.TimeLimit() + domain.GracePeriod).Seconds()
	taken = math.Min(taken, limit)
	if taken < 0 || math.IsNaN(taken) {
		return 0
	}
	return taken
}

// points is the binary base scheme: one point per correct, on-time answer.
func points(correct bool) int {
	if correct {
		return 1
	}
	return 0
}
