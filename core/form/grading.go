package form

import (
	"math"
	"sort"

	"github.com/trezcool/fomu/core"
)

type (
	// QuestionResult is the grading outcome for a single keyed question.
	QuestionResult struct {
		Key       string
		Expected  string
		Submitted string
		Correct   bool
	}

	GradingResult struct {
		Questions []QuestionResult
		Correct   int
		Total     int
		Percent   int // rounded
	}
)

// Grade scores submitted answers against an answer key.
// Only keys present in the answer key are graded; both sides are
// normalized (trimmed, lowercased) before an exact comparison; a missing
// submitted answer counts as blank. Grade never fails.
func Grade(answerKey, answers map[string]string) GradingResult {
	res := GradingResult{Total: len(answerKey)}
	if res.Total == 0 {
		return res
	}

	keys := make([]string, 0, len(answerKey))
	for key := range answerKey {
		keys = append(keys, key)
	}
	sort.Strings(keys) // stable report order; grading itself is commutative

	for _, key := range keys {
		expected := answerKey[key]
		submitted := answers[key] // absent -> ""
		correct := core.CleanString(submitted, true) == core.CleanString(expected, true)
		if correct {
			res.Correct++
		}
		res.Questions = append(res.Questions, QuestionResult{
			Key:       key,
			Expected:  expected,
			Submitted: submitted,
			Correct:   correct,
		})
	}

	res.Percent = int(math.Round(100 * float64(res.Correct) / float64(res.Total)))
	return res
}
