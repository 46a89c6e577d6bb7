// Package deck loads flashcard decks from YAML files and imports them into a catalog.
//
// A deck file looks like:
//
//	course_code: JP101
//	quizzes:
//	  - category: greetings
//	    cards:
//	      - question: "こんにちは"
//	        answer: "Hello"
//	        difficulty: easy
package deck

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/victornm/keiko/internal/domain"
)

type Deck struct {
	CourseCode string `yaml:"course_code"`
	Quizzes    []Quiz `yaml:"quizzes"`
}

type Quiz struct {
	Category string `yaml:"category"`
	Cards    []Card `yaml:"cards"`
}

type Card struct {
	Question   string            `yaml:"question"`
	Answer     string            `yaml:"answer"`
	Difficulty domain.Difficulty `yaml:"difficulty"`
}

// Parse decodes and validates a deck. Cards without a difficulty default to medium.
func Parse(data []byte) (*Deck, error) {
	var d Deck
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	d.CourseCode = strings.TrimSpace(d.CourseCode)
	if d.CourseCode == "" {
		return nil, fmt.Errorf("course_code is required")
	}

	seen := make(map[string]bool, len(d.Quizzes))
	for i := range d.Quizzes {
		q := &d.Quizzes[i]
		q.Category = strings.TrimSpace(q.Category)
		if q.Category == "" {
			return nil, fmt.Errorf("quiz %d: category is required", i)
		}
		if seen[q.Category] {
			return nil, fmt.Errorf("quiz %d: duplicate category %q", i, q.Category)
		}
		seen[q.Category] = true

		for j := range q.Cards {
			c := &q.Cards[j]
			if c.Question == "" || c.Answer == "" {
				return nil, fmt.Errorf("quiz %q card %d: question and answer are required", q.Category, j)
			}
			if c.Difficulty == "" {
				c.Difficulty = domain.DifficultyMedium
			}
			if !c.Difficulty.Valid() {
				return nil, fmt.Errorf("quiz %q card %d: unknown difficulty %q", q.Category, j, c.Difficulty)
			}
		}
	}

	return &d, nil
}

func LoadFile(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// LoadDir loads every *.yaml and *.yml file of dir. Unreadable decks are logged and skipped.
func LoadDir(dir string) ([]*Deck, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}

	decks := make([]*Deck, 0, len(files))
	for _, file := range files {
		d, err := LoadFile(file)
		if err != nil {
			slog.Warn("deck: skip file", "file", file, "error", err)
			continue
		}
		decks = append(decks, d)
	}

	slog.Info("deck: loaded", "count", len(decks), "total_files", len(files))
	return decks, nil
}
