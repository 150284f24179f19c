package domain

import "time"

// SessionStatus is the lifecycle state of a live quiz session.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// GracePeriod is the tolerance added to a question's end time before a submission counts as late.
const GracePeriod = 5 * time.Second

// Option is one selectable answer of a question, identified by its letter (A-D).
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Question models a multiple-choice question with 2-4 options and one correct letter.
type Question struct {
	ID               string   `json:"id"`
	QuizID           string   `json:"quizId"`
	OrderNumber      int      `json:"orderNumber"`
	Text             string   `json:"text"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	Options          []Option `json:"options"`
	CorrectAnswer    string   `json:"correctAnswer"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// HasOption reports whether letter is one of the question's options.
func (q Question) HasOption(letter string) bool {
	for _, opt := range q.Options {
		if opt.Letter == letter {
			return true
		}
	}
	return false
}

// TimeLimit returns the answer window as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Quiz is a titled collection of questions, ordered by OrderNumber ascending.
type Quiz struct {
	ID          string     `json:"id"`
	CreatorID   string     `json:"creatorId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// QuestionAt returns the question at index in play order.
func (q Quiz) QuestionAt(index int) (Question, bool) {
	if index < 0 || index >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[index], true
}

// Question looks a question up by ID, returning its play-order index.
func (q Quiz) Question(questionID string) (Question, int, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return q.Questions[i], i, true
		}
	}
	return Question{}, -1, false
}

// Session is one live run of a quiz driven by its host.
// QuestionStartMs and QuestionEndMs are epoch milliseconds; zero means unset.
type Session struct {
	ID                   string        `json:"id"`
	QuizID               string        `json:"quizId"`
	HostID               string        `json:"hostId"`
	JoinCode             string        `json:"joinCode"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	ShowLeaderboard      bool          `json:"showLeaderboard"`
	RevealAnswer         bool          `json:"revealAnswer"`
	EndedEarly           bool          `json:"endedEarly"`
	QuestionStartMs      int64         `json:"questionStartMs,omitempty"`
	QuestionEndMs        int64         `json:"questionEndMs,omitempty"`
	Version              int64         `json:"version"`
	CreatedAt            time.Time     `json:"createdAt"`
}

// HasTimer reports whether the current question window is armed.
func (s Session) HasTimer() bool {
	return s.QuestionStartMs != 0 && s.QuestionEndMs != 0
}

// Participant is an anonymous player in a session and their accumulated score.
type Participant struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Answer is the single scored submission of a participant for a question.
type Answer struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	IsCorrect     bool      `json:"isCorrect"`
	Score         int       `json:"score"`
	TimeTaken     float64   `json:"timeTaken"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	ParticipantID   string
	QuestionID      string
	SessionID       string
	Answer          string
	TimeTaken       float64
	ClientTimestamp int64
}

// Reason values carried by an unsuccessful AnswerResult.
const ReasonAlreadyAnswered = "already_answered"

// AnswerResult summarizes the outcome of a submission.
type AnswerResult struct {
	Success   bool   `json:"success"`
	Score     int    `json:"score"`
	IsCorrect bool   `json:"isCorrect"`
	Reason    string `json:"reason,omitempty"`
}

// JoinResult is the credential pair a player keeps for the rest of the session.
type JoinResult struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

// JoinLookup is the public summary returned when resolving a join code.
type JoinLookup struct {
	SessionID       string        `json:"sessionId"`
	Status          SessionStatus `json:"status"`
	QuestionStartMs int64         `json:"questionStartMs,omitempty"`
	QuestionEndMs   int64         `json:"questionEndMs,omitempty"`
}

// EventKind names a session change published on the change feed.
type EventKind string

const (
	EventSessionCreated    EventKind = "session.created"
	EventParticipantJoined EventKind = "participant.joined"
	EventQuizStarted       EventKind = "quiz.started"
	EventLeaderboardShown  EventKind = "leaderboard.shown"
	EventQuestionAdvanced  EventKind = "question.advanced"
	EventAnswerRevealed    EventKind = "answer.revealed"
	EventAnswerSubmitted   EventKind = "answer.submitted"
	EventQuizFinished      EventKind = "quiz.finished"
)

// SessionEvent tells subscribers that a session's views must be recomputed.
// ID is unique per event; Version alone repeats for joins and answers.
type SessionEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      EventKind `json:"kind"`
	Version   int64     `json:"version"`
	At        time.Time `json:"at"`
}
