package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 16

// SessionStore keeps sessions, participants and answers in Redis so several service
// instances can share one live session.
// Layout:
//
//	quiz:session:{id}                   session JSON
//	quiz:joincode:{code}                session id
//	quiz:session:{id}:participants      SET of participant ids
//	quiz:participant:{id}               participant JSON
//	quiz:participant:{id}:answers       HASH questionID -> answer JSON
//	quiz:sessions                       ZSET session id scored by creation time
//
// Multi-key writes run under WATCH/MULTI so check-then-write sequences are atomic.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore builds a store whose keys expire after ttl (the retention window); zero keeps them.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	codeKey := joinCodeKey(session.JoinCode)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, codeKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrJoinCodeTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, codeKey, session.ID, s.ttl)
			pipe.Set(ctx, sessionKey(session.ID), data, s.ttl)
			pipe.ZAdd(ctx, sessionsIndexKey, redis.Z{Score: float64(session.CreatedAt.Unix()), Member: session.ID})
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return domain.ErrJoinCodeTaken
		}
		return err
	}, codeKey)
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return getSession(ctx, s.client, sessionID)
}

func (s *SessionStore) GetSessionByJoinCode(ctx context.Context, joinCode string) (domain.Session, error) {
	id, err := s.client.Get(ctx, joinCodeKey(joinCode)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve join code: %w", err)
	}
	return s.GetSession(ctx, id)
}

func (s *SessionStore) UpdateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	key := sessionKey(session.ID)
	var updated domain.Session
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := getSession(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if stored.Version != session.Version {
			return domain.ErrVersionConflict
		}
		updated = session
		updated.Version++
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.Session{}, domain.ErrVersionConflict
	}
	if err != nil {
		return domain.Session{}, err
	}
	return updated, nil
}

// AddParticipant watches the session so a start committed concurrently aborts the join.
func (s *SessionStore) AddParticipant(ctx context.Context, participant domain.Participant) error {
	data, err := json.Marshal(participant)
	if err != nil {
		return fmt.Errorf("encode participant: %w", err)
	}
	key := sessionKey(participant.SessionID)
	membersKey := participantsKey(participant.SessionID)
	txf := func(tx *redis.Tx) error {
		session, err := getSession(ctx, tx, participant.SessionID)
		if err != nil {
			return err
		}
		if session.Status != domain.StatusWaiting {
			return domain.ErrAlreadyStarted
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, participantKey(participant.ID), data, s.ttl)
			pipe.SAdd(ctx, membersKey, participant.ID)
			if s.ttl > 0 {
				pipe.Expire(ctx, membersKey, s.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("add participant: %w", err)
}

func (s *SessionStore) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	return getParticipant(ctx, s.client, participantID)
}

func (s *SessionStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	ids, err := s.client.SMembers(ctx, participantsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = participantKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode participant: %w", err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *SessionStore) FindAnswer(ctx context.Context, participantID, questionID string) (domain.Answer, bool, error) {
	raw, err := s.client.HGet(ctx, answersKey(participantID), questionID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("find answer: %w", err)
	}
	var answer domain.Answer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return domain.Answer{}, false, fmt.Errorf("decode answer: %w", err)
	}
	return answer, true, nil
}

func (s *SessionStore) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	ids, err := s.client.SMembers(ctx, participantsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	cmds := make([]*redis.MapStringStringCmd, 0, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.HGetAll(ctx, answersKey(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	out := make([]domain.Answer, 0)
	for _, cmd := range cmds {
		for _, raw := range cmd.Val() {
			var a domain.Answer
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				return nil, fmt.Errorf("decode answer: %w", err)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// RecordAnswer watches the participant and its answer hash, so two racing submissions for the
// same question cannot both commit; the loser retries and then sees the existing answer.
func (s *SessionStore) RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Participant, error) {
	pKey := participantKey(answer.ParticipantID)
	aKey := answersKey(answer.ParticipantID)
	data, err := json.Marshal(answer)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("encode answer: %w", err)
	}

	var updated domain.Participant
	txf := func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, aKey, answer.QuestionID).Result()
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyAnswered
		}
		participant, err := getParticipant(ctx, tx, answer.ParticipantID)
		if err != nil {
			return err
		}
		participant.Score += answer.Score
		pData, err := json.Marshal(participant)
		if err != nil {
			return fmt.Errorf("encode participant: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, aKey, answer.QuestionID, data)
			pipe.Set(ctx, pKey, pData, redis.KeepTTL)
			if s.ttl > 0 {
				pipe.Expire(ctx, aKey, s.ttl)
			}
			return nil
		})
		if err == nil {
			updated = participant
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, pKey, aKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Participant{}, err
		}
		return updated, nil
	}
	return domain.Participant{}, fmt.Errorf("record answer: %w", err)
}

func (s *SessionStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, sessionsIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.deleteSession(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *SessionStore) deleteSession(ctx context.Context, sessionID string) error {
	keys := []string{sessionKey(sessionID), participantsKey(sessionID)}
	if session, err := s.GetSession(ctx, sessionID); err == nil {
		keys = append(keys, joinCodeKey(session.JoinCode))
	}
	members, err := s.client.SMembers(ctx, participantsKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	for _, id := range members {
		keys = append(keys, participantKey(id), answersKey(id))
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, sessionsIndexKey, sessionID)
		return nil
	})
	return err
}

func getSession(ctx context.Context, c getter, sessionID string) (domain.Session, error) {
	raw, err := c.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func getParticipant(ctx context.Context, c getter, participantID string) (domain.Participant, error) {
	raw, err := c.Get(ctx, participantKey(participantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant: %w", err)
	}
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant: %w", err)
	}
	return p, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

const sessionsIndexKey = "quiz:sessions"

func sessionKey(sessionID string) string {
	return "quiz:session:" + sessionID
}

func participantsKey(sessionID string) string {
	return "quiz:session:" + sessionID + ":participants"
}

func joinCodeKey(code string) string {
	return "quiz:joincode:" + code
}

func participantKey(participantID string) string {
	return "quiz:participant:" + participantID
}

func answersKey(participantID string) string {
	return "quiz:participant:" + participantID + ":answers"
}
