package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quiz is a course-scoped collection of flashcards together with the progress checkpoint of
// its current attempt.
type Quiz struct {
	QuizID       string    `json:"id"`
	CourseCode   string    `json:"course_code"`
	Category     string    `json:"category"`
	CardCount    int       `json:"card_count"`
	CurrentIndex int       `json:"current_index"`
	CorrectCount int       `json:"correct_count"`
	HintUsed     bool      `json:"hint_used"`
	IsCompleted  bool      `json:"is_completed"`
	CreateTime   time.Time `json:"create_time"`
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Flashcard struct {
	CardID     string     `json:"id"`
	QuizID     string     `json:"quiz_id"`
	Position   int        `json:"position"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	CourseCode string     `json:"course_code"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
}

// Attempt is one completed run through a quiz.
type Attempt struct {
	QuizID       string
	Student      string
	CorrectCount int
	CardCount    int
	HintsUsed    int
	CompleteTime time.Time
}

// Summary aggregates the attempts of a quiz. Accuracies are percentages.
type Summary struct {
	QuizID          string
	Attempts        int
	HintsUsed       int
	BestAccuracy    decimal.Decimal
	AverageAccuracy decimal.Decimal
	LastAccuracy    decimal.Decimal
	LastAttemptTime time.Time
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message raised by a quiz session.
type Notice struct {
	Student string      `json:"student"`
	QuizID  string      `json:"quiz_id"`
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Leaderboard ranks the students of a quiz by their best accuracy, highest first.
type Leaderboard struct {
	QuizID  string             `json:"quiz_id"`
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	Student  string  `json:"student"`
	Accuracy float64 `json:"accuracy"`
}
