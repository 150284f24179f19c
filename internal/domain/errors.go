package domain

import (
	"errors"
	"fmt"
)

// Error classes. Specific errors below wrap one of these, so callers can match either with errors.Is.
var (
	// ErrUnauthorized is returned when the caller is not allowed to act on a session or quiz.
	ErrUnauthorized = errors.New("not authorized")
	// ErrNotFound is the class of all missing-record errors.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation does not fit the session's current status.
	ErrInvalidState = errors.New("invalid session state")
	// ErrInvalidArgument is returned for malformed client input.
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a participant is unknown or belongs to another session.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates a question ID is not part of the session's quiz.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrNoQuestions is returned when starting a session whose quiz is empty.
	ErrNoQuestions = fmt.Errorf("no questions for this quiz: %w", ErrNotFound)

	// ErrAlreadyStarted is returned when joining or starting a session that left the lobby.
	ErrAlreadyStarted = fmt.Errorf("quiz already started: %w", ErrInvalidState)
	// ErrSessionNotActive is returned when a gameplay command targets a session that is not running.
	ErrSessionNotActive = fmt.Errorf("quiz is not active: %w", ErrInvalidState)
	// ErrSessionFinished is returned when ending a session that is already over.
	ErrSessionFinished = fmt.Errorf("quiz already finished: %w", ErrInvalidState)
	// ErrQuestionClosed is returned when answering a question other than the current one.
	ErrQuestionClosed = fmt.Errorf("question is not open: %w", ErrInvalidState)

	// ErrOptionNotFound indicates a submitted option letter is not offered by the question.
	ErrOptionNotFound = fmt.Errorf("option not found: %w", ErrInvalidArgument)
	// ErrInvalidName is returned for an empty or oversized display name.
	ErrInvalidName = fmt.Errorf("display name must be 1-40 characters: %w", ErrInvalidArgument)
)

var (
	// ErrJoinCodeExhausted is returned when no unused join code was found; retrying is safe.
	ErrJoinCodeExhausted = errors.New("failed to generate unique join code")
	// ErrJoinCodeTaken is returned by stores when a join code is already assigned.
	ErrJoinCodeTaken = errors.New("join code already in use")
	// ErrVersionConflict is returned when a session changed between read and write.
	ErrVersionConflict = errors.New("session was modified concurrently")
	// ErrAlreadyAnswered is returned by stores when (participant, question) already has an answer.
	ErrAlreadyAnswered = errors.New("already answered")
)
