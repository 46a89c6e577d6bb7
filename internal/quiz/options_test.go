package quiz

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/keiko/internal/domain"
)

func TestGrade(t *testing.T) {
	tests := map[string]struct {
		selected, answer string
		wantFeedback     string
		wantCorrect      bool
	}{
		"exact match is correct":    {selected: "Paris", answer: "Paris", wantFeedback: FeedbackCorrect, wantCorrect: true},
		"case differs is incorrect": {selected: "paris", answer: "Paris", wantFeedback: FeedbackIncorrect},
		"other answer is incorrect": {selected: "Rome", answer: "Paris", wantFeedback: FeedbackIncorrect},
		"whitespace is significant": {selected: "Paris ", answer: "Paris", wantFeedback: FeedbackIncorrect},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			feedback, correct := Grade(tt.selected, tt.answer)
			assert.Equal(t, tt.wantFeedback, feedback)
			assert.Equal(t, tt.wantCorrect, correct)
		})
	}
}

func TestAnswerPool(t *testing.T) {
	cards := []domain.Flashcard{
		{Answer: "2"}, {Answer: "4"}, {Answer: "2"}, {Answer: "6"}, {Answer: "4"},
	}

	assert.Equal(t, []string{"2", "4", "6"}, answerPool(cards))
	assert.Empty(t, answerPool(nil))
}

func TestBuildOptions(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	t.Run("answer appears exactly once and every distinct answer is offered", func(t *testing.T) {
		pool := []string{"2", "4", "6", "8"}
		for i := 0; i < 200; i++ {
			opts := buildOptions(pool, "6", rng)
			require.Len(t, opts, len(pool))
			require.Equal(t, 1, count(opts, "6"))
			require.ElementsMatch(t, pool, opts)
		}
	})

	t.Run("answer missing from the pool is appended", func(t *testing.T) {
		opts := buildOptions([]string{"a", "b"}, "c", rng)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, opts)
	})

	t.Run("pool is not modified", func(t *testing.T) {
		pool := []string{"a", "b", "c"}
		buildOptions(pool, "a", rng)
		assert.Equal(t, []string{"a", "b", "c"}, pool)
	})

	t.Run("single answer yields a single option", func(t *testing.T) {
		assert.Equal(t, []string{"x"}, buildOptions([]string{"x"}, "x", rng))
	})

	t.Run("every ordering shows up", func(t *testing.T) {
		seen := make(map[string]int)
		for i := 0; i < 600; i++ {
			seen[strings.Join(buildOptions([]string{"a", "b", "c"}, "a", rng), "")]++
		}
		assert.Len(t, seen, 6)
	})
}

func TestPickDistractor(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 100; i++ {
		d, ok := pickDistractor([]string{"2", "4", "6"}, "4", rng)
		require.True(t, ok)
		require.NotEqual(t, "4", d)
		require.Contains(t, []string{"2", "6"}, d)
	}

	_, ok := pickDistractor([]string{"4"}, "4", rng)
	assert.False(t, ok)
}

func count(list []string, s string) int {
	n := 0
	for _, v := range list {
		if v == s {
			n++
		}
	}
	return n
}
