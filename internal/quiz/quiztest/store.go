// Package quiztest provides an in-memory quiz.Store for tests.
package quiztest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
)

// Write records one checkpoint write.
type Write struct {
	QuizID string
	Field  string
	Value  any
}

// Store keeps quizzes and cards in memory. Fail makes writes of a field return an error.
type Store struct {
	mu      sync.Mutex
	quizzes map[string]domain.Quiz
	cards   map[string][]domain.Flashcard
	failing map[string]error
	writes  []Write
}

func NewStore() *Store {
	return &Store{
		quizzes: make(map[string]domain.Quiz),
		cards:   make(map[string][]domain.Flashcard),
		failing: make(map[string]error),
	}
}

// Card is a question/answer shorthand for Add.
type Card struct {
	Q, A string
}

// Add stores a quiz with the given cards and returns it.
func (s *Store) Add(q domain.Quiz, cards ...Card) domain.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := make([]domain.Flashcard, 0, len(cards))
	for i, c := range cards {
		fc = append(fc, domain.Flashcard{
			CardID:     fmt.Sprintf("%s-c%d", q.QuizID, i),
			QuizID:     q.QuizID,
			Position:   i,
			Question:   c.Q,
			Answer:     c.A,
			CourseCode: q.CourseCode,
			Category:   q.Category,
			Difficulty: domain.DifficultyEasy,
		})
	}

	q.CardCount = len(fc)
	s.quizzes[q.QuizID] = q
	s.cards[q.QuizID] = fc
	return q
}

// AddCard appends a card to an existing quiz.
func (s *Store) AddCard(quizID string, c Card) (domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return domain.Flashcard{}, errors.NotFound("quiz not found: %s", quizID)
	}

	fc := domain.Flashcard{
		CardID:     fmt.Sprintf("%s-c%d", quizID, len(s.cards[quizID])),
		QuizID:     quizID,
		Position:   len(s.cards[quizID]),
		Question:   c.Q,
		Answer:     c.A,
		CourseCode: q.CourseCode,
		Category:   q.Category,
		Difficulty: domain.DifficultyMedium,
	}

	s.cards[quizID] = append(s.cards[quizID], fc)
	q.CardCount++
	s.quizzes[quizID] = q
	return fc, nil
}

// List returns the quizzes of a course ordered by category.
func (s *Store) List(courseCode string) []domain.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []domain.Quiz
	for _, q := range s.quizzes {
		if q.CourseCode == courseCode {
			list = append(list, q)
		}
	}

	slices.SortFunc(list, func(a, b domain.Quiz) int {
		return strings.Compare(a.Category, b.Category)
	})
	return list
}

// Fail makes every write of field return err. A nil err clears the failure.
func (s *Store) Fail(field string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failing, field)
		return
	}
	s.failing[field] = err
}

func (s *Store) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.writes)
}

func (s *Store) Quiz(id string) domain.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.quizzes[id]
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (*domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, errors.NotFound("quiz not found: %s", quizID)
	}
	return &q, nil
}

func (s *Store) FindQuiz(_ context.Context, courseCode, category string) (*domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.quizzes {
		if q.CourseCode == courseCode && q.Category == category {
			return &q, nil
		}
	}
	return nil, errors.NotFound("quiz not found: course=%s category=%s", courseCode, category)
}

func (s *Store) GetCardsByQuizID(_ context.Context, quizID string) ([]domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[quizID]; !ok {
		return nil, errors.NotFound("quiz not found: %s", quizID)
	}
	return slices.Clone(s.cards[quizID]), nil
}

func (s *Store) SetQuizCurrentIndex(_ context.Context, quizID string, index int) error {
	return s.update(quizID, "current_index", index, func(q *domain.Quiz) { q.CurrentIndex = index })
}

func (s *Store) SetQuizCorrectCount(_ context.Context, quizID string, count int) error {
	return s.update(quizID, "correct_count", count, func(q *domain.Quiz) { q.CorrectCount = count })
}

func (s *Store) SetQuizHintUsed(_ context.Context, quizID string, used bool) error {
	return s.update(quizID, "hint_used", used, func(q *domain.Quiz) { q.HintUsed = used })
}

func (s *Store) SetQuizCompletion(_ context.Context, quizID string, completed bool) error {
	return s.update(quizID, "is_completed", completed, func(q *domain.Quiz) { q.IsCompleted = completed })
}

func (s *Store) update(quizID, field string, value any, fn func(q *domain.Quiz)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failing[field]; err != nil {
		return err
	}

	q, ok := s.quizzes[quizID]
	if !ok {
		return errors.NotFound("quiz not found: %s", quizID)
	}

	fn(&q)
	s.quizzes[quizID] = q
	s.writes = append(s.writes, Write{QuizID: quizID, Field: field, Value: value})
	return nil
}

// Notices collects notices raised by sessions.
type Notices struct {
	mu   sync.Mutex
	list []domain.Notice
}

func (n *Notices) Notify(_ context.Context, notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.list = append(n.list, notice)
}

func (n *Notices) List() []domain.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	return slices.Clone(n.list)
}
