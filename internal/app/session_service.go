package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SessionRepository abstracts the transactional store behind sessions, participants and answers.
// Implementations must make RecordAnswer and UpdateSession atomic.
type SessionRepository interface {
	// CreateSession stores a new session, failing with domain.ErrJoinCodeTaken if its code is in use.
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	GetSessionByJoinCode(ctx context.Context, joinCode string) (domain.Session, error)
	// UpdateSession writes session if the stored version still equals session.Version and
	// returns the stored record with its version incremented. A mismatch is domain.ErrVersionConflict.
	UpdateSession(ctx context.Context, session domain.Session) (domain.Session, error)

	AddParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)

	FindAnswer(ctx context.Context, participantID, questionID string) (domain.Answer, bool, error)
	ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)
	// RecordAnswer inserts answer and adds answer.Score to the participant in one atomic unit.
	// It fails with domain.ErrAlreadyAnswered when the (participant, question) pair exists.
	RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Participant, error)

	// DeleteSessionsBefore removes sessions created before cutoff with their participants and answers.
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// EventPublisher announces committed session changes to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
}

// EventSubscriber delivers change events for one session.
// The caller must invoke the returned cancel function to avoid leaks.
type EventSubscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionEvent, func(), error)
}

const (
	joinCodeAttempts = 10
	maxNameLength    = 40
)

// SessionService contains the live session use cases: orchestration, admission and projection.
type SessionService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	events   EventPublisher
	now      func() time.Time
	newID    func() string
	joinCode func() (string, error)
}

// Option customizes a SessionService.
type Option func(*SessionService)

// WithClock replaces time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// WithEventPublisher sets where committed changes are announced.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *SessionService) { s.events = p }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *SessionService) { s.newID = gen }
}

// WithJoinCodeGenerator replaces the random join code source.
func WithJoinCodeGenerator(gen func() (string, error)) Option {
	return func(s *SessionService) { s.joinCode = gen }
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, opts ...Option) *SessionService {
	s := &SessionService{
		sessions: sessions,
		quizzes:  quizzes,
		now:      time.Now,
		newID:    uuid.NewString,
		joinCode: GenerateJoinCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession opens a lobby for quizID owned by hostID and returns the stored session.
func (s *SessionService) CreateSession(ctx context.Context, quizID, hostID string) (domain.Session, error) {
	if hostID == "" {
		return domain.Session{}, domain.ErrUnauthorized
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	if quiz.CreatorID != hostID {
		return domain.Session{}, domain.ErrUnauthorized
	}

	session := domain.Session{
		ID:        s.newID(),
		QuizID:    quiz.ID,
		HostID:    hostID,
		Status:    domain.StatusWaiting,
		Version:   1,
		CreatedAt: s.now(),
	}
	for i := 0; i < joinCodeAttempts; i++ {
		code, err := s.joinCode()
		if err != nil {
			return domain.Session{}, err
		}
		session.JoinCode = code
		err = s.sessions.CreateSession(ctx, session)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		s.publish(ctx, session, domain.EventSessionCreated)
		return session, nil
	}
	return domain.Session{}, domain.ErrJoinCodeExhausted
}

// LookupJoinCode resolves a join code to the public session summary.
func (s *SessionService) LookupJoinCode(ctx context.Context, joinCode string) (domain.JoinLookup, error) {
	session, err := s.sessions.GetSessionByJoinCode(ctx, NormalizeJoinCode(joinCode))
	if err != nil {
		return domain.JoinLookup{}, err
	}
	return domain.JoinLookup{
		SessionID:       session.ID,
		Status:          session.Status,
		QuestionStartMs: session.QuestionStartMs,
		QuestionEndMs:   session.QuestionEndMs,
	}, nil
}

// JoinSession registers a player in a waiting session.
func (s *SessionService) JoinSession(ctx context.Context, joinCode, name string) (domain.JoinResult, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return domain.JoinResult{}, domain.ErrInvalidName
	}
	session, err := s.sessions.GetSessionByJoinCode(ctx, NormalizeJoinCode(joinCode))
	if err != nil {
		return domain.JoinResult{}, err
	}
	if session.Status != domain.StatusWaiting {
		return domain.JoinResult{}, domain.ErrAlreadyStarted
	}

	participant := domain.Participant{
		ID:        s.newID(),
		SessionID: session.ID,
		Name:      name,
		JoinedAt:  s.now(),
	}
	if err := s.sessions.AddParticipant(ctx, participant); err != nil {
		return domain.JoinResult{}, err
	}
	s.publish(ctx, session, domain.EventParticipantJoined)
	return domain.JoinResult{SessionID: session.ID, ParticipantID: participant.ID}, nil
}

// StartQuiz opens the first question.
func (s *SessionService) StartQuiz(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, startQuiz)
}

// ShowLeaderboard reveals standings, or finishes the quiz when the last question is on screen.
func (s *SessionService) ShowLeaderboard(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, showLeaderboard)
}

// NextQuestion advances to the following question, or finishes after the last one.
func (s *SessionService) NextQuestion(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, nextQuestion)
}

// SetRevealAnswer shows or hides the correct answer of the current question.
func (s *SessionService) SetRevealAnswer(ctx context.Context, sessionID, hostID string, reveal bool) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, func(session *domain.Session, quiz domain.Quiz, now time.Time) (domain.EventKind, error) {
		return setRevealAnswer(session, reveal)
	})
}

// EndQuiz terminates the session early.
func (s *SessionService) EndQuiz(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, endQuiz)
}

// transition runs one host command as a read-modify-write conditioned on the version it read.
func (s *SessionService) transition(ctx context.Context, sessionID, hostID string, apply transitionFunc) (domain.Session, error) {
	session, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return domain.Session{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Session{}, err
	}

	next := session
	kind, err := apply(&next, quiz, s.now())
	if err != nil {
		return domain.Session{}, err
	}
	updated, err := s.sessions.UpdateSession(ctx, next)
	if err != nil {
		return domain.Session{}, err
	}
	s.publish(ctx, updated, kind)
	return updated, nil
}

func (s *SessionService) hostSession(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if hostID == "" || session.HostID != hostID {
		return domain.Session{}, domain.ErrUnauthorized
	}
	return session, nil
}

// SubmitAnswer admits, scores and records one player answer.
// A repeated submission for the same question is reported through AnswerResult.Reason, not an error.
func (s *SessionService) SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) (domain.AnswerResult, error) {
	receivedAt := s.now()

	// Checked before anything else; RecordAnswer enforces it again atomically.
	if _, found, err := s.sessions.FindAnswer(ctx, submission.ParticipantID, submission.QuestionID); err != nil {
		return domain.AnswerResult{}, err
	} else if found {
		return alreadyAnswered(), nil
	}

	session, err := s.sessions.GetSession(ctx, submission.SessionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	participant, err := s.sessions.GetParticipant(ctx, submission.ParticipantID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if participant.SessionID != session.ID {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	question, index, ok := quiz.Question(submission.QuestionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	if session.Status != domain.StatusActive {
		return domain.AnswerResult{}, domain.ErrSessionNotActive
	}
	if index != session.CurrentQuestionIndex {
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}
	submission.Answer = strings.ToUpper(strings.TrimSpace(submission.Answer))
	if !question.HasOption(submission.Answer) {
		return domain.AnswerResult{}, domain.ErrOptionNotFound
	}

	answer := scoreAnswer(session, question, submission, receivedAt)
	answer.ID = s.newID()
	if _, err := s.sessions.RecordAnswer(ctx, answer); err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			return alreadyAnswered(), nil
		}
		return domain.AnswerResult{}, err
	}
	s.publish(ctx, session, domain.EventAnswerSubmitted)
	return domain.AnswerResult{Success: true, Score: answer.Score, IsCorrect: answer.IsCorrect}, nil
}

func alreadyAnswered() domain.AnswerResult {
	return domain.AnswerResult{Success: false, Reason: domain.ReasonAlreadyAnswered}
}

// HostView projects the session for its host with true scores.
func (s *SessionService) HostView(ctx context.Context, sessionID, hostID string) (domain.HostView, error) {
	session, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return domain.HostView{}, err
	}
	snap, err := s.loadSnapshot(ctx, session)
	if err != nil {
		return domain.HostView{}, err
	}
	return BuildHostView(snap.session, snap.quiz, snap.participants, snap.answers), nil
}

// PlayerView projects the session for one participant, hiding points on the open question.
func (s *SessionService) PlayerView(ctx context.Context, sessionID, participantID string) (domain.PlayerView, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.PlayerView{}, err
	}
	participant, err := s.sessions.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.PlayerView{}, err
	}
	if participant.SessionID != session.ID {
		return domain.PlayerView{}, domain.ErrParticipantNotFound
	}
	snap, err := s.loadSnapshot(ctx, session)
	if err != nil {
		return domain.PlayerView{}, err
	}
	return BuildPlayerView(snap.session, snap.quiz, participant.ID, snap.participants, snap.answers), nil
}

// Sweep deletes sessions older than retention.
func (s *SessionService) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	return s.sessions.DeleteSessionsBefore(ctx, s.now().Add(-retention))
}

type snapshot struct {
	session      domain.Session
	quiz         domain.Quiz
	participants []domain.Participant
	answers      []domain.Answer
}

func (s *SessionService) loadSnapshot(ctx context.Context, session domain.Session) (snapshot, error) {
	snap := snapshot{session: session}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quiz, err := s.quizzes.GetQuiz(gctx, session.QuizID)
		snap.quiz = quiz
		return err
	})
	g.Go(func() error {
		participants, err := s.sessions.ListParticipants(gctx, session.ID)
		snap.participants = participants
		return err
	})
	g.Go(func() error {
		answers, err := s.sessions.ListAnswers(gctx, session.ID)
		snap.answers = answers
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (s *SessionService) publish(ctx context.Context, session domain.Session, kind domain.EventKind) {
	if s.events == nil {
		return
	}
	event := domain.SessionEvent{
		ID:        s.newID(),
		SessionID: session.ID,
		Kind:      kind,
		Version:   session.Version,
		At:        s.now(),
	}
	// The change is already committed; a lost notification only delays the next refresh.
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("publish %s for session %s: %v", kind, session.ID, err)
	}
}
