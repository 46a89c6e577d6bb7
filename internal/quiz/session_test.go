package quiz_test

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
	"github.com/victornm/keiko/internal/event"
	"github.com/victornm/keiko/internal/quiz"
	"github.com/victornm/keiko/internal/quiz/quiztest"
)

var arithmetic = []quiztest.Card{
	{Q: "1+1", A: "2"},
	{Q: "2+2", A: "4"},
	{Q: "3+3", A: "6"},
}

func TestSession_AnswerAndAdvance(t *testing.T) {
	f := setup(t)
	q := f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)

	s, err := f.engine.Start(context.Background(), quiz.ByQuizID(q.QuizID), "alice")
	require.NoError(t, err)

	v := s.View()
	assert.Equal(t, quiz.StateUnanswered, v.State)
	assert.Equal(t, "1+1", v.Question)
	assert.ElementsMatch(t, []string{"2", "4", "6"}, v.Options)
	assert.Empty(t, v.CorrectAnswer, "answer must stay hidden before submitting")

	v, err = s.Submit(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, quiz.StateSubmitted, v.State)
	assert.Equal(t, quiz.FeedbackCorrect, v.Feedback)
	assert.Equal(t, "2", v.CorrectAnswer)
	assert.Equal(t, 1, v.CorrectCount)
	assert.Equal(t, 1, f.store.Quiz("q1").CorrectCount, "correct count is persisted before submit returns")

	v, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quiz.StateUnanswered, v.State)
	assert.Equal(t, 1, v.Index)
	assert.Equal(t, "2+2", v.Question)
	assert.False(t, v.HintUsed)
	assert.Empty(t, v.Feedback)
	assert.Empty(t, v.Selected)
	assert.ElementsMatch(t, []string{"2", "4", "6"}, v.Options)

	assert.Equal(t, []quiztest.Write{
		{QuizID: "q1", Field: "correct_count", Value: 1},
		{QuizID: "q1", Field: "current_index", Value: 1},
		{QuizID: "q1", Field: "hint_used", Value: false},
	}, f.store.Writes())
}

func TestSession_Submit(t *testing.T) {
	tests := map[string]struct {
		act     func(t *testing.T, s *quiz.Session) (quiz.View, error)
		wantErr error
		assert  func(t *testing.T, v quiz.View, f *fixture)
	}{
		"incorrect answer leaves the count unchanged": {
			act: func(t *testing.T, s *quiz.Session) (quiz.View, error) {
				return s.Submit(context.Background(), "4")
			},
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, quiz.FeedbackIncorrect, v.Feedback)
				assert.Equal(t, "4", v.Selected)
				assert.Equal(t, "2", v.CorrectAnswer)
				assert.Zero(t, v.CorrectCount)
				assert.Empty(t, f.store.Writes())
			},
		},

		"empty selection is rejected": {
			act: func(t *testing.T, s *quiz.Session) (quiz.View, error) {
				return s.Submit(context.Background(), "")
			},
			wantErr: quiz.ErrNoSelection,
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, quiz.StateUnanswered, v.State)
			},
		},

		"second submit in the same question is rejected": {
			act: func(t *testing.T, s *quiz.Session) (quiz.View, error) {
				_, err := s.Submit(context.Background(), "4")
				require.NoError(t, err)
				return s.Submit(context.Background(), "2")
			},
			wantErr: quiz.ErrAlreadySubmitted,
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, "4", v.Selected)
				assert.Zero(t, v.CorrectCount)
			},
		},

		"next before submitting is rejected": {
			act: func(t *testing.T, s *quiz.Session) (quiz.View, error) {
				return s.Next(context.Background())
			},
			wantErr: quiz.ErrNotSubmitted,
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, 0, v.Index)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)

			s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
			require.NoError(t, err)

			v, err := tt.act(t, s)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, errors.HasCode(err, errors.CodeFailedPrecondition))
			} else {
				require.NoError(t, err)
			}

			tt.assert(t, v, f)
		})
	}
}

func TestSession_NextFromLastCardCompletes(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition", CurrentIndex: 2}, arithmetic...)

	s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)
	require.Equal(t, "3+3", s.View().Question)

	_, err = s.Submit(context.Background(), "6")
	require.NoError(t, err)

	v, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quiz.StateComplete, v.State)
	assert.Equal(t, 2, v.Index, "index must not move past the last card")

	for _, w := range f.store.Writes() {
		assert.NotEqual(t, "current_index", w.Field)
	}

	v, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quiz.StateComplete, v.State)
}

func TestSession_Confirm(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, quiztest.Card{Q: "1+1", A: "2"})

	var (
		mu        sync.Mutex
		completed []domain.EventQuizCompleted
	)
	f.bus.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		completed = append(completed, e.(domain.EventQuizCompleted))
		mu.Unlock()
		return nil
	})

	s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)

	_, err = s.Confirm(context.Background())
	require.ErrorIs(t, err, quiz.ErrNotComplete)

	_, err = s.Submit(context.Background(), "2")
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)

	a, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "q1", a.QuizID)
	assert.Equal(t, "alice", a.Student)
	assert.Equal(t, 1, a.CorrectCount)
	assert.Equal(t, 1, a.CardCount)

	stored := f.store.Quiz("q1")
	assert.True(t, stored.IsCompleted)
	assert.Zero(t, stored.CurrentIndex)
	assert.Equal(t, []string{"MATH101"}, f.invalidated.list())
	assert.Equal(t, quiz.StateClosed, s.View().State)

	_, err = s.Submit(context.Background(), "2")
	require.ErrorIs(t, err, quiz.ErrClosed)

	f.bus.Stop()
	require.Len(t, completed, 1)
	assert.Equal(t, "MATH101", completed[0].CourseCode)
}

func TestSession_ConfirmRetriesAfterFailedCompletionWrite(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, quiztest.Card{Q: "1+1", A: "2"})

	s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "2")
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)

	f.store.Fail("is_completed", stderrors.New("store unavailable"))
	_, err = s.Confirm(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnavailable))
	assert.Equal(t, quiz.StateComplete, s.View().State)
	assert.Empty(t, f.invalidated.list())
	require.NotEmpty(t, f.notices.List())
	assert.Equal(t, domain.NoticeError, f.notices.List()[0].Level)

	f.store.Fail("is_completed", nil)
	_, err = s.Confirm(context.Background())
	require.NoError(t, err)
	assert.True(t, f.store.Quiz("q1").IsCompleted)
}

func TestSession_Hint(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)

	s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)

	removed, v, err := s.Hint(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []string{"4", "6"}, removed)
	assert.Len(t, v.Options, 2)
	assert.Contains(t, v.Options, "2", "the correct answer is never removed")
	assert.NotContains(t, v.Options, removed)
	assert.True(t, v.HintUsed)
	assert.True(t, f.store.Quiz("q1").HintUsed)

	_, again, err := s.Hint(context.Background())
	require.ErrorIs(t, err, quiz.ErrHintUsed)
	assert.Equal(t, v.Options, again.Options, "a second hint has no effect")

	notices := f.notices.List()
	require.Len(t, notices, 1)
	assert.Equal(t, domain.NoticeWarning, notices[0].Level)
	assert.Equal(t, "alice", notices[0].Student)

	_, err = s.Submit(context.Background(), "2")
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)

	_, v, err = s.Hint(context.Background())
	require.NoError(t, err, "hint is available again on the next question")
	assert.Len(t, v.Options, 2)
}

func TestSession_HintRejections(t *testing.T) {
	t.Run("no incorrect option to remove", func(t *testing.T) {
		f := setup(t)
		f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "C", Category: "solo"}, quiztest.Card{Q: "only", A: "one"})

		s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
		require.NoError(t, err)

		_, v, err := s.Hint(context.Background())
		require.ErrorIs(t, err, quiz.ErrNoDistractor)
		assert.Equal(t, []string{"one"}, v.Options)
		assert.False(t, v.HintUsed)
	})

	t.Run("not after submitting", func(t *testing.T) {
		f := setup(t)
		f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)

		s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
		require.NoError(t, err)
		_, err = s.Submit(context.Background(), "4")
		require.NoError(t, err)

		_, v, err := s.Hint(context.Background())
		require.ErrorIs(t, err, quiz.ErrAlreadySubmitted)
		assert.Len(t, v.Options, 3)
	})
}

func TestSession_FailedWriteKeepsLocalState(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)
	f.store.Fail("correct_count", stderrors.New("timeout"))

	s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)

	v, err := s.Submit(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, 1, v.CorrectCount, "local counter is not rolled back")
	assert.Zero(t, f.store.Quiz("q1").CorrectCount)

	notices := f.notices.List()
	require.Len(t, notices, 1)
	assert.Equal(t, domain.NoticeError, notices[0].Level)
	assert.Equal(t, "q1", notices[0].QuizID)
}

func TestEngine_Resume(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)

	s, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "2")
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)
	_, _, err = s.Hint(context.Background())
	require.NoError(t, err)
	s.Exit()

	resumed, err := f.engine.Start(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)

	v := resumed.View()
	assert.Equal(t, 1, v.Index)
	assert.Equal(t, "2+2", v.Question)
	assert.Equal(t, 1, v.CorrectCount)
	assert.True(t, v.HintUsed)
	assert.ElementsMatch(t, []string{"2", "4", "6"}, v.Options, "removed options are not persisted")

	_, _, err = resumed.Hint(context.Background())
	require.ErrorIs(t, err, quiz.ErrHintUsed)
}

func TestEngine_Start(t *testing.T) {
	tests := map[string]struct {
		quiz    domain.Quiz
		cards   []quiztest.Card
		loc     quiz.Locator
		wantErr errors.Code
		assert  func(t *testing.T, v quiz.View, f *fixture)
	}{
		"by course and category": {
			quiz:  domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"},
			cards: arithmetic,
			loc:   quiz.ByCourse("MATH101", "addition"),
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, "q1", v.QuizID)
				assert.Equal(t, 3, v.Total)
			},
		},

		"unknown quiz": {
			quiz:    domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"},
			cards:   arithmetic,
			loc:     quiz.ByQuizID("missing"),
			wantErr: errors.CodeNotFound,
		},

		"unknown course": {
			quiz:    domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"},
			cards:   arithmetic,
			loc:     quiz.ByCourse("BIO", "cells"),
			wantErr: errors.CodeNotFound,
		},

		"empty locator": {
			quiz:    domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"},
			cards:   arithmetic,
			loc:     quiz.Locator{CourseCode: "MATH101"},
			wantErr: errors.CodeInvalidArgument,
		},

		"quiz without cards": {
			quiz:    domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"},
			loc:     quiz.ByQuizID("q1"),
			wantErr: errors.CodeFailedPrecondition,
		},

		"index past the last card is clamped": {
			quiz:  domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition", CurrentIndex: 9},
			cards: arithmetic,
			loc:   quiz.ByQuizID("q1"),
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, 2, v.Index)
			},
		},

		"completed quiz starts a new attempt": {
			quiz: domain.Quiz{
				QuizID: "q1", CourseCode: "MATH101", Category: "addition",
				CorrectCount: 3, IsCompleted: true, HintUsed: true,
			},
			cards: arithmetic,
			loc:   quiz.ByQuizID("q1"),
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, 0, v.Index)
				assert.Zero(t, v.CorrectCount)
				assert.False(t, v.HintUsed)

				stored := f.store.Quiz("q1")
				assert.False(t, stored.IsCompleted)
				assert.Zero(t, stored.CorrectCount)
				assert.False(t, stored.HintUsed)

				assert.Equal(t, []string{"MATH101"}, f.invalidated.list(), "cached listings should drop the completed flag")
			},
		},

		"resumed quiz leaves cached listings alone": {
			quiz:  domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition", CurrentIndex: 1},
			cards: arithmetic,
			loc:   quiz.ByQuizID("q1"),
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.Equal(t, 1, v.Index)
				assert.Empty(t, f.invalidated.list())
			},
		},

		"duplicate answers collapse into one option": {
			quiz:  domain.Quiz{QuizID: "q1", CourseCode: "GEO", Category: "capitals"},
			cards: []quiztest.Card{{Q: "France", A: "Paris"}, {Q: "Texas (city)", A: "Paris"}, {Q: "Italy", A: "Rome"}},
			loc:   quiz.ByQuizID("q1"),
			assert: func(t *testing.T, v quiz.View, f *fixture) {
				assert.ElementsMatch(t, []string{"Paris", "Rome"}, v.Options)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			f.store.Add(tt.quiz, tt.cards...)

			s, err := f.engine.Start(context.Background(), tt.loc, "alice")
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, errors.Convert(err).Code)
				return
			}

			require.NoError(t, err)
			tt.assert(t, s.View(), f)
		})
	}
}

func TestRegistry(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)

	r := quiz.NewRegistry(f.engine)

	s, err := r.Open(context.Background(), quiz.ByQuizID("q1"), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Exit(s.ID()))
	assert.Equal(t, quiz.StateClosed, s.View().State)
	assert.Zero(t, r.Len())

	_, err = r.Get(s.ID())
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.True(t, errors.HasCode(r.Exit(s.ID()), errors.CodeNotFound))
}

func TestRegistry_SweepIdleSessions(t *testing.T) {
	f := setup(t)
	f.store.Add(domain.Quiz{QuizID: "q1", CourseCode: "MATH101", Category: "addition"}, arithmetic...)

	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	r := quiz.NewRegistry(f.engine,
		quiz.WithSessionTTL(time.Hour),
		quiz.WithClock(clock.Now),
	)

	ctx := context.Background()

	var abandoned []*quiz.Session
	for range 100 {
		s, err := r.Open(ctx, quiz.ByQuizID("q1"), "alice")
		require.NoError(t, err)
		abandoned = append(abandoned, s)
	}

	clock.Advance(30 * time.Minute)
	active, err := r.Open(ctx, quiz.ByQuizID("q1"), "bob")
	require.NoError(t, err)
	require.Equal(t, 101, r.Len())

	assert.Zero(t, r.Sweep(ctx), "nothing is idle yet")

	clock.Advance(45 * time.Minute)
	// Touching the first abandoned session keeps it open.
	_, err = r.Get(abandoned[0].ID())
	require.NoError(t, err)

	assert.Equal(t, 99, r.Sweep(ctx))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, quiz.StateClosed, abandoned[1].View().State)
	assert.Equal(t, quiz.StateUnanswered, abandoned[0].View().State)
	assert.Equal(t, quiz.StateUnanswered, active.View().State)

	_, err = r.Get(abandoned[1].ID())
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 2, r.Sweep(ctx))
	assert.Zero(t, r.Len())
}

func TestRegistry_RunSweeperStopsWithContext(t *testing.T) {
	f := setup(t)
	r := quiz.NewRegistry(f.engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunSweeper(ctx, time.Millisecond)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	store       *quiztest.Store
	notices     *quiztest.Notices
	invalidated *invalidator
	bus         *event.Bus
	engine      *quiz.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:       quiztest.NewStore(),
		notices:     &quiztest.Notices{},
		invalidated: &invalidator{},
		bus:         event.NewBus(),
	}
	t.Cleanup(f.bus.Stop)

	f.engine = quiz.NewEngine(quiz.Config{
		Store:       f.store,
		Notifier:    f.notices,
		Invalidator: f.invalidated,
		EventBus:    f.bus,
		Source:      rand.NewPCG(1, 2),
	})

	return f
}

type invalidator struct {
	mu      sync.Mutex
	courses []string
}

func (i *invalidator) InvalidateQuizzes(_ context.Context, courseCode string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.courses = append(i.courses, courseCode)
	return nil
}

func (i *invalidator) list() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]string(nil), i.courses...)
}
