package session

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/interviewprep/interviewprep/internal/model"
)

// SelectQuestions picks the questions for a session. Custom questions are
// used as given. Otherwise the bank is filtered by profession, Big3
// questions lead in their configured order when enabled (and are left out
// entirely when not), and the rest is shuffled to fill QuestionCount.
func SelectQuestions(bank []model.Question, cfg model.InterviewConfig, rng *rand.Rand) []model.Question {
	if len(cfg.Questions) > 0 {
		return slices.Clone(cfg.Questions)
	}
	if cfg.QuestionCount <= 0 {
		return nil
	}

	var big3, rest []model.Question
	for _, q := range bank {
		if cfg.Profession != "" && !q.HasTag(cfg.Profession) {
			continue
		}
		switch {
		case q.Big3 && cfg.Big3:
			big3 = append(big3, q)
		case q.Big3:
		default:
			rest = append(rest, q)
		}
	}

	slices.SortStableFunc(big3, func(a, b model.Question) int {
		return cmp.Compare(order(a), order(b))
	})

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	selected := append(big3, rest...)
	if len(selected) > cfg.QuestionCount {
		selected = selected[:cfg.QuestionCount]
	}
	return selected
}

func order(q model.Question) int {
	if q.Big3Order == nil {
		return 0
	}
	return *q.Big3Order
}
