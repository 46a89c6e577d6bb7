package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
	"github.com/victornm/keiko/internal/event"
)

const defaultWriteTimeout = 10 * time.Second

type Config struct {
	Store Store
	// Notifier receives notices raised by sessions. Optional.
	Notifier Notifier
	// Invalidator drops cached listings once a quiz is completed. Optional.
	Invalidator Invalidator
	// EventBus receives quiz.completed. Optional.
	EventBus *event.Bus
	// Source seeds option shuffling and hint picks. Defaults to a randomly seeded PCG.
	Source       rand.Source
	WriteTimeout time.Duration
}

// Engine starts quiz sessions. It is safe for concurrent use.
type Engine struct {
	store        Store
	notifier     Notifier
	invalidator  Invalidator
	eb           *event.Bus
	writeTimeout time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEngine(c Config) *Engine {
	src := c.Source
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	e := &Engine{
		store:        c.Store,
		notifier:     c.Notifier,
		invalidator:  c.Invalidator,
		eb:           c.EventBus,
		writeTimeout: c.WriteTimeout,
		rng:          rand.New(src),
	}

	if e.writeTimeout <= 0 {
		e.writeTimeout = defaultWriteTimeout
	}

	return e
}

// Start loads a quiz and its flashcards and resumes from the persisted checkpoint.
func (e *Engine) Start(ctx context.Context, loc Locator, student string) (*Session, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	q, cards, err := e.load(ctx, loc)
	if err != nil {
		return nil, err
	}

	if len(cards) == 0 {
		return nil, errors.FailedPrecondition("quiz %s has no flashcards", q.QuizID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	s := &Session{
		id:      id.String(),
		student: student,
		quiz:    *q,
		cards:   cards,
		pool:    answerPool(cards),
		rng:     e.newRand(),
		e:       e,
		state:   StateUnanswered,
		index:   q.CurrentIndex,
		correct: q.CorrectCount,
		hint:    q.HintUsed,
	}

	if q.IsCompleted {
		s.restart(ctx)
	}

	if s.index < 0 {
		s.index = 0
	}
	if s.index >= len(cards) {
		s.index = len(cards) - 1
	}

	s.options = buildOptions(s.pool, s.card().Answer, s.rng)

	sessionsTotal.WithLabelValues("started").Inc()
	slog.InfoContext(ctx, "quiz: session started",
		"session", s.id,
		"quiz", q.QuizID,
		"student", student,
		"index", s.index,
		"cards", len(cards),
	)

	return s, nil
}

func (e *Engine) load(ctx context.Context, loc Locator) (*domain.Quiz, []domain.Flashcard, error) {
	if loc.QuizID == "" {
		q, err := e.store.FindQuiz(ctx, loc.CourseCode, loc.Category)
		if err != nil {
			return nil, nil, fmt.Errorf("quiz: find quiz %s: %w", loc, err)
		}

		cards, err := e.store.GetCardsByQuizID(ctx, q.QuizID)
		if err != nil {
			return nil, nil, fmt.Errorf("quiz: load flashcards of %s: %w", q.QuizID, err)
		}

		return q, cards, nil
	}

	var (
		q     *domain.Quiz
		cards []domain.Flashcard
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if q, err = e.store.GetQuiz(ctx, loc.QuizID); err != nil {
			return fmt.Errorf("quiz: load quiz %s: %w", loc.QuizID, err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if cards, err = e.store.GetCardsByQuizID(ctx, loc.QuizID); err != nil {
			return fmt.Errorf("quiz: load flashcards of %s: %w", loc.QuizID, err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	return q, cards, nil
}

func (e *Engine) newRand() *rand.Rand {
	e.mu.Lock()
	defer e.mu.Unlock()

	return rand.New(rand.NewPCG(e.rng.Uint64(), e.rng.Uint64()))
}

func (e *Engine) notify(ctx context.Context, n domain.Notice) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, n)
}

// write runs a checkpoint write detached from the caller's cancellation, so leaving a
// session does not abort writes already issued.
func (e *Engine) write(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	return fn(ctx)
}
