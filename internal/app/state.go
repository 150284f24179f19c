package app

import (
	"time"

	"live-quiz-service/internal/domain"
)

// transitionFunc mutates a freshly read session in place and names the resulting event.
type transitionFunc func(session *domain.Session, quiz domain.Quiz, now time.Time) (domain.EventKind, error)

func startQuiz(session *domain.Session, quiz domain.Quiz, now time.Time) (domain.EventKind, error) {
	if session.Status != domain.StatusWaiting {
		return "", domain.ErrAlreadyStarted
	}
	first, ok := quiz.QuestionAt(0)
	if !ok {
		return "", domain.ErrNoQuestions
	}
	session.Status = domain.StatusActive
	session.CurrentQuestionIndex = 0
	session.ShowLeaderboard = false
	session.RevealAnswer = false
	armTimer(session, first, now)
	return domain.EventQuizStarted, nil
}

func showLeaderboard(session *domain.Session, quiz domain.Quiz, _ time.Time) (domain.EventKind, error) {
	if session.Status != domain.StatusActive {
		return "", domain.ErrSessionNotActive
	}
	// The final question goes straight to results.
	if isLastQuestion(session, quiz) {
		finish(session)
		return domain.EventQuizFinished, nil
	}
	session.ShowLeaderboard = true
	return domain.EventLeaderboardShown, nil
}

func nextQuestion(session *domain.Session, quiz domain.Quiz, now time.Time) (domain.EventKind, error) {
	if session.Status != domain.StatusActive {
		return "", domain.ErrSessionNotActive
	}
	if isLastQuestion(session, quiz) {
		finish(session)
		return domain.EventQuizFinished, nil
	}
	next, _ := quiz.QuestionAt(session.CurrentQuestionIndex + 1)
	session.CurrentQuestionIndex++
	session.ShowLeaderboard = false
	session.RevealAnswer = false
	armTimer(session, next, now)
	return domain.EventQuestionAdvanced, nil
}

func setRevealAnswer(session *domain.Session, reveal bool) (domain.EventKind, error) {
	if session.Status != domain.StatusActive {
		return "", domain.ErrSessionNotActive
	}
	session.RevealAnswer = reveal
	return domain.EventAnswerRevealed, nil
}

func endQuiz(session *domain.Session, _ domain.Quiz, _ time.Time) (domain.EventKind, error) {
	if session.Status == domain.StatusFinished {
		return "", domain.ErrSessionFinished
	}
	finish(session)
	session.EndedEarly = true
	return domain.EventQuizFinished, nil
}

func isLastQuestion(session *domain.Session, quiz domain.Quiz) bool {
	return session.CurrentQuestionIndex >= len(quiz.Questions)-1
}

func armTimer(session *domain.Session, question domain.Question, now time.Time) {
	start := now.UnixMilli()
	session.QuestionStartMs = start
	session.QuestionEndMs = start + question.TimeLimit().Milliseconds()
}

func finish(session *domain.Session) {
	session.Status = domain.StatusFinished
	session.ShowLeaderboard = false
	session.QuestionStartMs = 0
	session.QuestionEndMs = 0
}
