package deck

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/victornm/keiko/internal/catalog"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
)

// Catalog is where decks are imported to. Both catalog.Service and client.Client satisfy it.
type Catalog interface {
	FindQuiz(ctx context.Context, courseCode, category string) (*domain.Quiz, error)
	GetCardsByQuizID(ctx context.Context, quizID string) ([]domain.Flashcard, error)
	CreateQuiz(ctx context.Context, req catalog.CreateQuizRequest) (*domain.Quiz, error)
	AddFlashcard(ctx context.Context, req catalog.AddFlashcardRequest) (*domain.Flashcard, error)
}

type Report struct {
	QuizzesCreated int
	QuizzesReused  int
	CardsAdded     int
	CardsSkipped   int
}

// Add sums o into r.
func (r *Report) Add(o Report) {
	r.QuizzesCreated += o.QuizzesCreated
	r.QuizzesReused += o.QuizzesReused
	r.CardsAdded += o.CardsAdded
	r.CardsSkipped += o.CardsSkipped
}

// Import creates the quizzes of d that do not exist yet and appends the cards a quiz does
// not already hold. Importing the same deck twice changes nothing.
func Import(ctx context.Context, c Catalog, d *Deck) (Report, error) {
	var r Report
	for _, q := range d.Quizzes {
		qr, err := importQuiz(ctx, c, d.CourseCode, q)
		if err != nil {
			return r, fmt.Errorf("deck: import %s/%s: %w", d.CourseCode, q.Category, err)
		}
		r.Add(qr)
	}

	slog.InfoContext(ctx, "deck: imported",
		"course_code", d.CourseCode,
		"quizzes_created", r.QuizzesCreated,
		"quizzes_reused", r.QuizzesReused,
		"cards_added", r.CardsAdded,
		"cards_skipped", r.CardsSkipped,
	)
	return r, nil
}

func importQuiz(ctx context.Context, c Catalog, courseCode string, dq Quiz) (Report, error) {
	var r Report

	q, err := c.FindQuiz(ctx, courseCode, dq.Category)
	switch {
	case err == nil:
		r.QuizzesReused++
	case errors.HasCode(err, errors.CodeNotFound):
		q, err = c.CreateQuiz(ctx, catalog.CreateQuizRequest{CourseCode: courseCode, Category: dq.Category})
		if errors.HasCode(err, errors.CodeAlreadyExists) {
			// Created concurrently.
			q, err = c.FindQuiz(ctx, courseCode, dq.Category)
		}
		if err != nil {
			return r, err
		}
		r.QuizzesCreated++
	default:
		return r, err
	}

	cards, err := c.GetCardsByQuizID(ctx, q.QuizID)
	if err != nil {
		return r, err
	}

	existing := make(map[[2]string]bool, len(cards))
	for _, fc := range cards {
		existing[[2]string{fc.Question, fc.Answer}] = true
	}

	for _, card := range dq.Cards {
		key := [2]string{card.Question, card.Answer}
		if existing[key] {
			r.CardsSkipped++
			continue
		}

		_, err := c.AddFlashcard(ctx, catalog.AddFlashcardRequest{
			QuizID:     q.QuizID,
			Question:   card.Question,
			Answer:     card.Answer,
			Difficulty: card.Difficulty,
		})
		if err != nil {
			return r, err
		}
		existing[key] = true
		r.CardsAdded++
	}

	return r, nil
}
