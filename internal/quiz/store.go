package quiz

import (
	"context"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
)

// Store is the card/quiz store a session reads from and checkpoints into. The setters are
// independent point updates with no atomicity across them.
type Store interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
	FindQuiz(ctx context.Context, courseCode, category string) (*domain.Quiz, error)
	GetCardsByQuizID(ctx context.Context, quizID string) ([]domain.Flashcard, error)

	SetQuizCurrentIndex(ctx context.Context, quizID string, index int) error
	SetQuizCorrectCount(ctx context.Context, quizID string, count int) error
	SetQuizHintUsed(ctx context.Context, quizID string, used bool) error
	SetQuizCompletion(ctx context.Context, quizID string, completed bool) error
}

// Notifier receives user-facing notices.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notice)
}

type NotifyFunc func(ctx context.Context, n domain.Notice)

func (f NotifyFunc) Notify(ctx context.Context, n domain.Notice) { f(ctx, n) }

// Invalidator drops cached quiz listings of a course.
type Invalidator interface {
	InvalidateQuizzes(ctx context.Context, courseCode string) error
}

// Locator identifies the quiz a session is started on, either by id or by course and
// category.
type Locator struct {
	QuizID     string `json:"quiz_id,omitempty"`
	CourseCode string `json:"course_code,omitempty"`
	Category   string `json:"category,omitempty"`
}

func ByQuizID(id string) Locator {
	return Locator{QuizID: id}
}

func ByCourse(courseCode, category string) Locator {
	return Locator{CourseCode: courseCode, Category: category}
}

func (l Locator) Validate() error {
	if l.QuizID != "" {
		return nil
	}
	if l.CourseCode == "" || l.Category == "" {
		return errors.InvalidArgument("either quiz_id or both course_code and category are required")
	}
	return nil
}

func (l Locator) String() string {
	if l.QuizID != "" {
		return "quiz=" + l.QuizID
	}
	return "course=" + l.CourseCode + " category=" + l.Category
}
