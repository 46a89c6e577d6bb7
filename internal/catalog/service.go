package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
)

const codeUniqueViolation = "23505"

type Config struct {
	DB *pgxpool.Pool
	// Cache holds quiz listings. Optional.
	Cache *Cache
}

// Service is the card/quiz store: authoring of quizzes and flashcards plus the point
// updates of quiz progress.
type Service struct {
	db    *pgxpool.Pool
	cache *Cache
}

func NewService(c Config) *Service {
	return &Service{
		db:    c.DB,
		cache: c.Cache,
	}
}

const selectQuiz = `
SELECT q.quiz_id, q.course_code, q.category,
       (SELECT COUNT(*) FROM flashcards f WHERE f.quiz_id = q.quiz_id) AS card_count,
       q.current_index, q.correct_count, q.hint_used, q.is_completed, q.create_time
FROM quizzes q`

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var q domain.Quiz
	err := row.Scan(&q.QuizID, &q.CourseCode, &q.Category, &q.CardCount,
		&q.CurrentIndex, &q.CorrectCount, &q.HintUsed, &q.IsCompleted, &q.CreateTime)
	return q, err
}

type CreateQuizRequest struct {
	CourseCode string
	Category   string
}

// CreateQuiz creates an empty quiz for a course category.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	req.CourseCode = strings.TrimSpace(req.CourseCode)
	req.Category = strings.TrimSpace(req.Category)
	if req.CourseCode == "" || req.Category == "" {
		return nil, errors.InvalidArgument("course_code and category are required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate quiz ID: %w", err)
	}

	const stmt = `
INSERT INTO quizzes (quiz_id, course_code, category)
VALUES ($1, $2, $3)
RETURNING create_time;`

	q := domain.Quiz{
		QuizID:     id.String(),
		CourseCode: req.CourseCode,
		Category:   req.Category,
	}

	err = s.db.QueryRow(ctx, stmt, q.QuizID, q.CourseCode, q.Category).Scan(&q.CreateTime)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("quiz already exists: course=%s category=%s", req.CourseCode, req.Category),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	s.invalidate(ctx, q.CourseCode)

	return &q, nil
}

type ListQuizzesRequest struct {
	CourseCode string
}

// ListQuizzes lists the quizzes of a course, served from the cache when possible.
func (s *Service) ListQuizzes(ctx context.Context, req ListQuizzesRequest) ([]domain.Quiz, error) {
	if req.CourseCode == "" {
		return nil, errors.InvalidArgument("course_code is required")
	}

	if s.cache != nil {
		quizzes, ok, err := s.cache.GetQuizzes(ctx, req.CourseCode)
		if err != nil {
			slog.WarnContext(ctx, "catalog: read listing cache failed", "course", req.CourseCode, "error", err)
		}
		if ok {
			return quizzes, nil
		}
	}

	rows, err := s.db.Query(ctx, selectQuiz+` WHERE q.course_code = $1 ORDER BY q.category;`, req.CourseCode)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	quizzes, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Quiz, error) {
		return scanQuiz(r)
	})
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetQuizzes(ctx, req.CourseCode, quizzes); err != nil {
			slog.WarnContext(ctx, "catalog: write listing cache failed", "course", req.CourseCode, "error", err)
		}
	}

	return quizzes, nil
}

func (s *Service) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	q, err := scanQuiz(s.db.QueryRow(ctx, selectQuiz+` WHERE q.quiz_id = $1;`, quizID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("quiz not found: %s", quizID)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	return &q, nil
}

func (s *Service) FindQuiz(ctx context.Context, courseCode, category string) (*domain.Quiz, error) {
	q, err := scanQuiz(s.db.QueryRow(ctx, selectQuiz+` WHERE q.course_code = $1 AND q.category = $2;`, courseCode, category))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("quiz not found: course=%s category=%s", courseCode, category)
	}
	if err != nil {
		return nil, fmt.Errorf("find quiz: %w", err)
	}

	return &q, nil
}

// GetCardsByQuizID returns the flashcards of a quiz in quiz order.
func (s *Service) GetCardsByQuizID(ctx context.Context, quizID string) ([]domain.Flashcard, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	const stmt = `
SELECT f.card_id, f.quiz_id, f.position, f.question, f.answer, q.course_code, q.category, f.difficulty
FROM flashcards f JOIN quizzes q ON q.quiz_id = f.quiz_id
WHERE f.quiz_id = $1
ORDER BY f.position;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}

	cards, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Flashcard, error) {
		var c domain.Flashcard
		err := r.Scan(&c.CardID, &c.QuizID, &c.Position, &c.Question, &c.Answer, &c.CourseCode, &c.Category, &c.Difficulty)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}

	return cards, nil
}

type AddFlashcardRequest struct {
	QuizID     string
	Question   string
	Answer     string
	Difficulty domain.Difficulty
}

// AddFlashcard appends a flashcard to the end of a quiz.
func (s *Service) AddFlashcard(ctx context.Context, req AddFlashcardRequest) (*domain.Flashcard, error) {
	if strings.TrimSpace(req.Question) == "" || req.Answer == "" {
		return nil, errors.InvalidArgument("question and answer are required")
	}
	if req.Difficulty == "" {
		req.Difficulty = domain.DifficultyMedium
	}
	if !req.Difficulty.Valid() {
		return nil, errors.InvalidArgument("unknown difficulty: %s", req.Difficulty)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate card ID: %w", err)
	}

	c := &domain.Flashcard{
		CardID:     id.String(),
		QuizID:     req.QuizID,
		Question:   req.Question,
		Answer:     req.Answer,
		Difficulty: req.Difficulty,
	}

	if err := s.insertFlashcard(ctx, c); err != nil {
		return nil, err
	}

	s.invalidate(ctx, c.CourseCode)

	return c, nil
}

func (s *Service) insertFlashcard(ctx context.Context, c *domain.Flashcard) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		lockQuizStmt = `SELECT course_code, category FROM quizzes WHERE quiz_id = $1 FOR UPDATE;`
		positionStmt = `SELECT COALESCE(MAX(position) + 1, 0) FROM flashcards WHERE quiz_id = $1;`
		insertStmt   = `
INSERT INTO flashcards (card_id, quiz_id, position, question, answer, difficulty)
VALUES ($1, $2, $3, $4, $5, $6);`
	)

	err = tx.QueryRow(ctx, lockQuizStmt, c.QuizID).Scan(&c.CourseCode, &c.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("quiz not found: %s", c.QuizID)
	}
	if err != nil {
		return fmt.Errorf("lock quiz: %w", err)
	}

	if err = tx.QueryRow(ctx, positionStmt, c.QuizID).Scan(&c.Position); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	if _, err = tx.Exec(ctx, insertStmt, c.CardID, c.QuizID, c.Position, c.Question, c.Answer, c.Difficulty); err != nil {
		return fmt.Errorf("insert flashcard: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Service) SetQuizCurrentIndex(ctx context.Context, quizID string, index int) error {
	if index < 0 {
		return errors.InvalidArgument("current_index must not be negative: %d", index)
	}
	return s.update(ctx, quizID, "current_index", index)
}

func (s *Service) SetQuizCorrectCount(ctx context.Context, quizID string, count int) error {
	if count < 0 {
		return errors.InvalidArgument("correct_count must not be negative: %d", count)
	}
	return s.update(ctx, quizID, "correct_count", count)
}

func (s *Service) SetQuizHintUsed(ctx context.Context, quizID string, used bool) error {
	return s.update(ctx, quizID, "hint_used", used)
}

func (s *Service) SetQuizCompletion(ctx context.Context, quizID string, completed bool) error {
	return s.update(ctx, quizID, "is_completed", completed)
}

// update writes a single progress column. column is always one of the constants above.
func (s *Service) update(ctx context.Context, quizID, column string, value any) error {
	stmt := fmt.Sprintf(`UPDATE quizzes SET %s = $2 WHERE quiz_id = $1;`, column)

	tag, err := s.db.Exec(ctx, stmt, quizID, value)
	if err != nil {
		return fmt.Errorf("update quiz %s: %w", column, err)
	}

	if tag.RowsAffected() == 0 {
		return errors.NotFound("quiz not found: %s", quizID)
	}

	return nil
}

// InvalidateQuizzes drops the cached listing of a course.
func (s *Service) InvalidateQuizzes(ctx context.Context, courseCode string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateQuizzes(ctx, courseCode)
}

func (s *Service) invalidate(ctx context.Context, courseCode string) {
	if err := s.InvalidateQuizzes(ctx, courseCode); err != nil {
		slog.WarnContext(ctx, "catalog: invalidate listing failed", "course", courseCode, "error", err)
	}
}
