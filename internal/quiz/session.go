package quiz

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
)

type State int

const (
	StateUnanswered State = iota
	StateSubmitted
	StateComplete
	StateClosed
)

var stateNames = map[State]string{
	StateUnanswered: "unanswered",
	StateSubmitted:  "submitted",
	StateComplete:   "complete",
	StateClosed:     "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for k, v := range stateNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return errors.InvalidArgument("unknown session state %q", b)
}

var (
	ErrNoSelection      = errors.FailedPrecondition("no answer selected")
	ErrAlreadySubmitted = errors.FailedPrecondition("answer already submitted for this question")
	ErrNotSubmitted     = errors.FailedPrecondition("answer must be submitted before moving on")
	ErrHintUsed         = errors.FailedPrecondition("hint already used for this question")
	ErrNoDistractor     = errors.FailedPrecondition("no incorrect option left to remove")
	ErrNotComplete      = errors.FailedPrecondition("quiz is not complete yet")
	ErrClosed           = errors.FailedPrecondition("session is closed")
)

// View is a snapshot of a session as shown to the student.
type View struct {
	SessionID     string            `json:"session_id"`
	QuizID        string            `json:"quiz_id"`
	CourseCode    string            `json:"course_code"`
	Category      string            `json:"category"`
	Student       string            `json:"student,omitempty"`
	State         State             `json:"state"`
	Index         int               `json:"index"`
	Total         int               `json:"total"`
	Question      string            `json:"question"`
	Difficulty    domain.Difficulty `json:"difficulty,omitempty"`
	Options       []string          `json:"options"`
	Selected      string            `json:"selected,omitempty"`
	Feedback      string            `json:"feedback,omitempty"`
	CorrectAnswer string            `json:"correct_answer,omitempty"`
	CorrectCount  int               `json:"correct_count"`
	HintUsed      bool              `json:"hint_used"`
}

// Session drives one attempt through question, answer, feedback and advance. Operations
// are serialised; a checkpoint write finishes before the operation that issued it returns.
type Session struct {
	id      string
	student string
	quiz    domain.Quiz
	cards   []domain.Flashcard
	pool    []string
	e       *Engine

	mu       sync.Mutex
	rng      *rand.Rand
	state    State
	index    int
	correct  int
	hint     bool
	hints    int
	options  []string
	selected string
	feedback string
}

func (s *Session) ID() string { return s.id }

func (s *Session) QuizID() string { return s.quiz.QuizID }

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.view()
}

func (s *Session) view() View {
	c := s.card()
	v := View{
		SessionID:    s.id,
		QuizID:       s.quiz.QuizID,
		CourseCode:   s.quiz.CourseCode,
		Category:     s.quiz.Category,
		Student:      s.student,
		State:        s.state,
		Index:        s.index,
		Total:        len(s.cards),
		Question:     c.Question,
		Difficulty:   c.Difficulty,
		Options:      slices.Clone(s.options),
		Selected:     s.selected,
		Feedback:     s.feedback,
		CorrectCount: s.correct,
		HintUsed:     s.hint,
	}

	if s.state != StateUnanswered {
		v.CorrectAnswer = c.Answer
	}

	return v
}

func (s *Session) card() domain.Flashcard {
	return s.cards[s.index]
}

// Submit grades the selection against the current card. A correct answer is checkpointed
// before Submit returns.
func (s *Session) Submit(ctx context.Context, selected string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return s.view(), ErrClosed
	case StateUnanswered:
	default:
		return s.view(), ErrAlreadySubmitted
	}

	if selected == "" {
		return s.view(), ErrNoSelection
	}

	feedback, correct := Grade(selected, s.card().Answer)
	s.selected = selected
	s.feedback = feedback
	s.state = StateSubmitted

	if !correct {
		answersTotal.WithLabelValues("incorrect").Inc()
		return s.view(), nil
	}

	answersTotal.WithLabelValues("correct").Inc()
	s.correct++

	count := s.correct
	s.checkpoint(ctx, "correct_count", func(ctx context.Context) error {
		return s.e.store.SetQuizCorrectCount(ctx, s.quiz.QuizID, count)
	})

	return s.view(), nil
}

// Hint removes one random incorrect option from the current question. It is granted once per
// question and only before submitting.
func (s *Session) Hint(ctx context.Context) (removed string, v View, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return "", s.view(), ErrClosed
	case StateUnanswered:
	default:
		return "", s.view(), ErrAlreadySubmitted
	}

	if s.hint {
		s.e.notify(ctx, s.notice(domain.NoticeWarning, "Hint already used for this question"))
		return "", s.view(), ErrHintUsed
	}

	removed, ok := pickDistractor(s.options, s.card().Answer, s.rng)
	if !ok {
		return "", s.view(), ErrNoDistractor
	}

	s.options = slices.DeleteFunc(s.options, func(o string) bool { return o == removed })
	s.hint = true
	s.hints++
	hintsTotal.Inc()

	s.checkpoint(ctx, "hint_used", func(ctx context.Context) error {
		return s.e.store.SetQuizHintUsed(ctx, s.quiz.QuizID, true)
	})

	return removed, s.view(), nil
}

// Next advances to the following card, or marks the session complete after the last one.
func (s *Session) Next(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return s.view(), ErrClosed
	case StateSubmitted:
	case StateComplete:
		return s.view(), nil
	default:
		return s.view(), ErrNotSubmitted
	}

	if s.index >= len(s.cards)-1 {
		s.state = StateComplete
		return s.view(), nil
	}

	s.index++
	s.selected = ""
	s.feedback = ""
	s.hint = false
	s.state = StateUnanswered
	s.options = buildOptions(s.pool, s.card().Answer, s.rng)

	index := s.index
	s.checkpoint(ctx, "current_index", func(ctx context.Context) error {
		return s.e.store.SetQuizCurrentIndex(ctx, s.quiz.QuizID, index)
	})
	s.checkpoint(ctx, "hint_used", func(ctx context.Context) error {
		return s.e.store.SetQuizHintUsed(ctx, s.quiz.QuizID, false)
	})

	return s.view(), nil
}

// Confirm persists completion and closes the session. If the completion write fails the
// session stays complete and Confirm can be retried.
func (s *Session) Confirm(ctx context.Context) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return domain.Attempt{}, ErrClosed
	case StateComplete:
	default:
		return domain.Attempt{}, ErrNotComplete
	}

	err := s.checkpoint(ctx, "is_completed", func(ctx context.Context) error {
		return s.e.store.SetQuizCompletion(ctx, s.quiz.QuizID, true)
	})
	if err != nil {
		return domain.Attempt{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("save quiz completion failed, please retry"),
			errors.WithCause(err),
		)
	}

	s.checkpoint(ctx, "current_index", func(ctx context.Context) error {
		return s.e.store.SetQuizCurrentIndex(ctx, s.quiz.QuizID, 0)
	})
	s.index = 0
	s.state = StateClosed

	s.invalidateListings(ctx)

	a := domain.Attempt{
		QuizID:       s.quiz.QuizID,
		Student:      s.student,
		CorrectCount: s.correct,
		CardCount:    len(s.cards),
		HintsUsed:    s.hints,
		CompleteTime: time.Now(),
	}

	if s.e.eb != nil {
		s.e.eb.Publish(ctx, domain.EventQuizCompleted{
			Attempt:    a,
			CourseCode: s.quiz.CourseCode,
		})
	}

	sessionsTotal.WithLabelValues("completed").Inc()
	slog.InfoContext(ctx, "quiz: session completed",
		"session", s.id,
		"quiz", s.quiz.QuizID,
		"correct", s.correct,
		"cards", len(s.cards),
	)

	return a, nil
}

// Exit leaves the session. Writes already issued are not cancelled.
func (s *Session) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	s.state = StateClosed
	sessionsTotal.WithLabelValues("exited").Inc()
}

// restart begins a new attempt on a quiz whose record says it was completed.
func (s *Session) restart(ctx context.Context) {
	s.index = 0
	s.correct = 0
	s.hint = false

	s.checkpoint(ctx, "is_completed", func(ctx context.Context) error {
		return s.e.store.SetQuizCompletion(ctx, s.quiz.QuizID, false)
	})
	s.checkpoint(ctx, "correct_count", func(ctx context.Context) error {
		return s.e.store.SetQuizCorrectCount(ctx, s.quiz.QuizID, 0)
	})
	if s.quiz.CurrentIndex != 0 {
		s.checkpoint(ctx, "current_index", func(ctx context.Context) error {
			return s.e.store.SetQuizCurrentIndex(ctx, s.quiz.QuizID, 0)
		})
	}
	if s.quiz.HintUsed {
		s.checkpoint(ctx, "hint_used", func(ctx context.Context) error {
			return s.e.store.SetQuizHintUsed(ctx, s.quiz.QuizID, false)
		})
	}

	s.invalidateListings(ctx)
}

// invalidateListings drops cached listings of the course so they show the new completion
// state.
func (s *Session) invalidateListings(ctx context.Context) {
	if s.e.invalidator == nil {
		return
	}

	if err := s.e.invalidator.InvalidateQuizzes(ctx, s.quiz.CourseCode); err != nil {
		slog.WarnContext(ctx, "quiz: invalidate quiz listings failed",
			"course", s.quiz.CourseCode,
			"error", err,
		)
	}
}

// checkpoint writes one progress field. A failure raises an error notice and leaves local
// state as it is.
func (s *Session) checkpoint(ctx context.Context, field string, fn func(ctx context.Context) error) error {
	err := s.e.write(ctx, fn)
	if err == nil {
		return nil
	}

	writeFailuresTotal.WithLabelValues(field).Inc()
	slog.ErrorContext(ctx, "quiz: save progress failed",
		"session", s.id,
		"quiz", s.quiz.QuizID,
		"field", field,
		"error", err,
	)
	s.e.notify(ctx, s.notice(domain.NoticeError, "Failed to save progress ("+field+")"))

	return err
}

func (s *Session) notice(level domain.NoticeLevel, msg string) domain.Notice {
	return domain.Notice{
		Student: s.student,
		QuizID:  s.quiz.QuizID,
		Level:   level,
		Message: msg,
	}
}
