package domain

// Standing is a participant's place on the scoreboard.
type Standing struct {
	ParticipantID string  `json:"participantId"`
	Name          string  `json:"name"`
	Score         int     `json:"score"`
	TotalTime     float64 `json:"totalTime"`
}

// QuestionView is a question as shown to players; CorrectAnswer stays empty until revealed.
type QuestionView struct {
	ID               string   `json:"id"`
	OrderNumber      int      `json:"orderNumber"`
	Text             string   `json:"text"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	Options          []Option `json:"options"`
	CorrectAnswer    string   `json:"correctAnswer,omitempty"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// HostView is everything the host screen renders, with true scores.
type HostView struct {
	Session         Session        `json:"session"`
	Quiz            Quiz           `json:"quiz"`
	Standings       []Standing     `json:"standings"`
	CurrentQuestion *Question      `json:"currentQuestion,omitempty"`
	AnswerStats     map[string]int `json:"answerStats"`
}

// PlayerView is the per-player projection with masked scores.
type PlayerView struct {
	Session         Session        `json:"session"`
	QuizTitle       string         `json:"quizTitle"`
	Participant     Standing       `json:"participant"`
	Standings       []Standing     `json:"standings"`
	CurrentQuestion *QuestionView  `json:"currentQuestion,omitempty"`
	AnswerStats     map[string]int `json:"answerStats"`
	HasAnswered     bool           `json:"hasAnswered"`
	SubmittedAnswer string         `json:"submittedAnswer,omitempty"`
	LastTimeTaken   float64        `json:"lastTimeTaken,omitempty"`
	TotalQuestions  int            `json:"totalQuestions"`
}
