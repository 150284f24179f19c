package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// BuildHostView derives the host screen from current state. Scores are the stored totals.
func BuildHostView(session domain.Session, quiz domain.Quiz, participants []domain.Participant, answers []domain.Answer) domain.HostView {
	totals := totalTimes(answers)
	standings := make([]domain.Standing, 0, len(participants))
	for _, p := range participants {
		standings = append(standings, domain.Standing{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         p.Score,
			TotalTime:     totals[p.ID],
		})
	}
	rankStandings(standings)

	view := domain.HostView{
		Session:     session,
		Quiz:        quiz,
		Standings:   standings,
		AnswerStats: map[string]int{},
	}
	if current, ok := quiz.QuestionAt(session.CurrentQuestionIndex); ok {
		view.CurrentQuestion = &current
		if session.ShowLeaderboard {
			view.AnswerStats = tallyVotes(current, answers)
		}
	}
	return view
}

// BuildPlayerView derives what participantID sees. Until the host reveals the answer, points
// earned on the current question are subtracted from every displayed score.
func BuildPlayerView(session domain.Session, quiz domain.Quiz, participantID string, participants []domain.Participant, answers []domain.Answer) domain.PlayerView {
	current, hasCurrent := quiz.QuestionAt(session.CurrentQuestionIndex)

	pending := map[string]int{}
	var own *domain.Answer
	if hasCurrent {
		for i := range answers {
			a := answers[i]
			if a.QuestionID != current.ID {
				continue
			}
			pending[a.ParticipantID] += a.Score
			if a.ParticipantID == participantID {
				own = &answers[i]
			}
		}
	}

	totals := totalTimes(answers)
	standings := make([]domain.Standing, 0, len(participants))
	var self domain.Standing
	for _, p := range participants {
		visible := p.Score
		if !session.RevealAnswer {
			visible = max(0, p.Score-pending[p.ID])
		}
		st := domain.Standing{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         visible,
			TotalTime:     totals[p.ID],
		}
		if p.ID == participantID {
			self = st
		}
		standings = append(standings, st)
	}
	rankStandings(standings)

	view := domain.PlayerView{
		Session:        playerSession(session),
		QuizTitle:      quiz.Title,
		Participant:    self,
		Standings:      standings,
		AnswerStats:    map[string]int{},
		TotalQuestions: len(quiz.Questions),
	}
	if hasCurrent {
		view.CurrentQuestion = questionView(current, session.RevealAnswer)
		if session.ShowLeaderboard {
			view.AnswerStats = tallyVotes(current, answers)
		}
	}
	if own != nil {
		view.HasAnswered = true
		view.SubmittedAnswer = own.Answer
		view.LastTimeTaken = own.TimeTaken
	}
	return view
}

// rankStandings orders by score descending, then aggregate time ascending.
// Name and ID break remaining ties so every client renders the same order.
func rankStandings(standings []domain.Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalTime != b.TotalTime {
			return a.TotalTime < b.TotalTime
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ParticipantID < b.ParticipantID
	})
}

func totalTimes(answers []domain.Answer) map[string]float64 {
	totals := make(map[string]float64)
	for _, a := range answers {
		totals[a.ParticipantID] += a.TimeTaken
	}
	return totals
}

// tallyVotes counts answers per option of question, zero-filling unpicked options.
func tallyVotes(question domain.Question, answers []domain.Answer) map[string]int {
	stats := make(map[string]int, len(question.Options))
	for _, opt := range question.Options {
		stats[opt.Letter] = 0
	}
	for _, a := range answers {
		if a.QuestionID == question.ID {
			stats[a.Answer]++
		}
	}
	return stats
}

func questionView(q domain.Question, reveal bool) *domain.QuestionView {
	view := &domain.QuestionView{
		ID:               q.ID,
		OrderNumber:      q.OrderNumber,
		Text:             q.Text,
		ImageURL:         q.ImageURL,
		Options:          q.Options,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
	if reveal {
		view.CorrectAnswer = q.CorrectAnswer
	}
	return view
}

// playerSession strips the host identity from the session payload.
func playerSession(session domain.Session) domain.Session {
	session.HostID = ""
	return session
}
