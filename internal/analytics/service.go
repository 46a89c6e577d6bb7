package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/event"
)

var hundred = decimal.NewFromInt(100)

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

// Service records completed attempts and summarises them per quiz.
type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{
		eb: c.EventBus,
		db: c.DB,
	}

	s.eb.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
		return s.RecordAttempt(ctx, e.(domain.EventQuizCompleted).Attempt)
	})

	return s
}

func (s *Service) RecordAttempt(ctx context.Context, a domain.Attempt) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate attempt ID: %w", err)
	}

	const stmt = `
INSERT INTO attempts (attempt_id, quiz_id, student, correct_count, card_count, hints_used, complete_time)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	if _, err := s.db.Exec(ctx, stmt, id.String(), a.QuizID, a.Student, a.CorrectCount, a.CardCount, a.HintsUsed, a.CompleteTime); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	return nil
}

type GetSummaryRequest struct {
	QuizID string
}

func (s *Service) GetSummary(ctx context.Context, req GetSummaryRequest) (*domain.Summary, error) {
	const stmt = `
SELECT student, correct_count, card_count, hints_used, complete_time
FROM attempts
WHERE quiz_id = $1
ORDER BY complete_time DESC;`

	rows, err := s.db.Query(ctx, stmt, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Attempt, error) {
		a := domain.Attempt{QuizID: req.QuizID}
		err := r.Scan(&a.Student, &a.CorrectCount, &a.CardCount, &a.HintsUsed, &a.CompleteTime)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	sm := Summarize(req.QuizID, attempts)
	return &sm, nil
}

// Summarize aggregates attempts, most recent first. Accuracies are percentages rounded to two
// decimal places.
func Summarize(quizID string, attempts []domain.Attempt) domain.Summary {
	sm := domain.Summary{
		QuizID:          quizID,
		Attempts:        len(attempts),
		BestAccuracy:    decimal.Zero,
		AverageAccuracy: decimal.Zero,
		LastAccuracy:    decimal.Zero,
	}

	if len(attempts) == 0 {
		return sm
	}

	total := decimal.Zero
	for i, a := range attempts {
		acc := Accuracy(a.CorrectCount, a.CardCount)
		total = total.Add(acc)
		sm.HintsUsed += a.HintsUsed

		if acc.GreaterThan(sm.BestAccuracy) {
			sm.BestAccuracy = acc
		}

		if i == 0 || a.CompleteTime.After(sm.LastAttemptTime) {
			sm.LastAttemptTime = a.CompleteTime
			sm.LastAccuracy = acc
		}
	}

	sm.AverageAccuracy = total.Div(decimal.NewFromInt(int64(len(attempts)))).Round(2)
	return sm
}

// Accuracy returns correct/total as a percentage rounded to two decimal places.
func Accuracy(correct, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(int64(correct)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}
