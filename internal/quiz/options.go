package quiz

import (
	"math/rand/v2"
	"slices"

	"github.com/victornm/keiko/internal/domain"
)

const (
	FeedbackCorrect   = "Correct!"
	FeedbackIncorrect = "Incorrect answer!"
)

// Grade compares a selection with the card's answer. The match is exact and case-sensitive.
func Grade(selected, answer string) (feedback string, correct bool) {
	if selected == answer {
		return FeedbackCorrect, true
	}
	return FeedbackIncorrect, false
}

// answerPool returns the distinct answers of the quiz in order of first occurrence.
// Distractors are drawn from this pool rather than generated.
func answerPool(cards []domain.Flashcard) []string {
	seen := make(map[string]struct{}, len(cards))
	pool := make([]string, 0, len(cards))
	for _, c := range cards {
		if _, ok := seen[c.Answer]; ok {
			continue
		}
		seen[c.Answer] = struct{}{}
		pool = append(pool, c.Answer)
	}
	return pool
}

// buildOptions returns a uniformly shuffled copy of pool that contains answer exactly once.
func buildOptions(pool []string, answer string, rng *rand.Rand) []string {
	options := slices.Clone(pool)
	if !slices.Contains(options, answer) {
		options = append(options, answer)
	}

	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return options
}

// pickDistractor chooses a random option other than answer. It returns false when the
// options hold nothing but the answer.
func pickDistractor(options []string, answer string, rng *rand.Rand) (string, bool) {
	candidates := make([]string, 0, len(options))
	for _, o := range options {
		if o != answer {
			candidates = append(candidates, o)
		}
	}

	if len(candidates) == 0 {
		return "", false
	}

	return candidates[rng.IntN(len(candidates))], true
}
