package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// A single mutex serializes every write, which makes each method one atomic unit.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	joinCodes    map[string]string
	participants map[string]domain.Participant
	answers      map[answerKey]domain.Answer
}

type answerKey struct {
	participantID string
	questionID    string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]domain.Session),
		joinCodes:    make(map[string]string),
		participants: make(map[string]domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.joinCodes[session.JoinCode]; taken {
		return domain.ErrJoinCodeTaken
	}
	s.sessions[session.ID] = session
	s.joinCodes[session.JoinCode] = session.ID
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) GetSessionByJoinCode(_ context.Context, joinCode string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.joinCodes[joinCode]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *SessionStore) UpdateSession(_ context.Context, session domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return domain.Session{}, domain.ErrVersionConflict
	}
	session.Version++
	s.sessions[session.ID] = session
	return session, nil
}

func (s *SessionStore) AddParticipant(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[participant.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}
	s.participants[participant.ID] = participant
	return nil
}

func (s *SessionStore) GetParticipant(_ context.Context, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *SessionStore) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0)
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *SessionStore) FindAnswer(_ context.Context, participantID, questionID string) (domain.Answer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[answerKey{participantID, questionID}]
	return answer, ok, nil
}

func (s *SessionStore) ListAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0)
	for _, a := range s.answers {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *SessionStore) RecordAnswer(_ context.Context, answer domain.Answer) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{answer.ParticipantID, answer.QuestionID}
	if _, exists := s.answers[key]; exists {
		return domain.Participant{}, domain.ErrAlreadyAnswered
	}
	participant, ok := s.participants[answer.ParticipantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	participant.Score += answer.Score
	s.answers[key] = answer
	s.participants[participant.ID] = participant
	return participant, nil
}

func (s *SessionStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if !session.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		delete(s.joinCodes, session.JoinCode)
		removed++
	}
	for id, p := range s.participants {
		if _, ok := s.sessions[p.SessionID]; !ok {
			delete(s.participants, id)
		}
	}
	for key, a := range s.answers {
		if _, ok := s.sessions[a.SessionID]; !ok {
			delete(s.answers, key)
		}
	}
	return removed, nil
}
