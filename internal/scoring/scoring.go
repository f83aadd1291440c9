package scoring

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ruangujian/ruangujian-backend/internal/model"
)

// Score grades a completed answer map against an exam's question set and
// returns an integer percentage 0–100.
//
// Every question contributes at most 1 unit toward a maximum equal to the
// question count. Fractional per-question credits (true/false tables,
// matching, classification) are summed first; only the final percentage is
// rounded. Essays always earn 0 but still count in the denominator.
// Malformed stored answers earn 0 for that question, never an error.
func Score(questions []model.Question, answers map[string]string) int {
	if len(questions) == 0 {
		return 0
	}

	var earned float64
	for i := range questions {
		q := &questions[i]
		ans, ok := answers[q.ID.String()]
		if !ok || ans == "" {
			continue
		}
		earned += earnedFor(q, ans)
	}

	return int(math.Round(earned / float64(len(questions)) * 100))
}

// earnedFor returns the credit in [0,1] a single stored answer earns.
func earnedFor(q *model.Question, ans string) float64 {
	switch q.Type {
	case model.QuestionSingleChoice, model.QuestionTrueFalse:
		if ans == q.CorrectKey {
			return 1
		}
	case model.QuestionMultiChoice:
		return scoreMultiChoice(q.CorrectKey, ans)
	case model.QuestionTrueFalseTable:
		return scoreTrueFalseTable(q.Statements, ans)
	case model.QuestionShortAnswer:
		if q.CorrectKey != "" && normalize(ans) == normalize(q.CorrectKey) {
			return 1
		}
	case model.QuestionMatching:
		return scoreMatching(q.MatchingPairs, ans)
	case model.QuestionSequencing:
		return scoreSequencing(q.CorrectSequence, ans)
	case model.QuestionClassification:
		return scoreClassification(q.ClassificationMapping, ans)
	case model.QuestionEssay:
		// Manual grading only.
	}
	return 0
}

// scoreMultiChoice compares two JSON arrays of option-index strings as
// sets. Exact equality only, no partial credit.
func scoreMultiChoice(key, ans string) float64 {
	var correct, selected []string
	if err := json.Unmarshal([]byte(key), &correct); err != nil {
		return 0
	}
	if err := json.Unmarshal([]byte(ans), &selected); err != nil {
		return 0
	}
	if len(correct) != len(selected) {
		return 0
	}
	sort.Strings(correct)
	sort.Strings(selected)
	for i := range correct {
		if correct[i] != selected[i] {
			return 0
		}
	}
	return 1
}

// scoreTrueFalseTable awards positional partial credit across statements.
func scoreTrueFalseTable(statements []model.Statement, ans string) float64 {
	if len(statements) == 0 {
		return 0
	}
	var given []string
	if err := json.Unmarshal([]byte(ans), &given); err != nil {
		return 0
	}
	matches := 0
	for i, s := range statements {
		if i < len(given) && given[i] == s.CorrectAnswer {
			matches++
		}
	}
	return float64(matches) / float64(len(statements))
}

// scoreMatching awards partial credit per correctly paired left index.
func scoreMatching(pairs []model.MatchingPair, ans string) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var picked map[string]string
	if err := json.Unmarshal([]byte(ans), &picked); err != nil {
		return 0
	}
	matches := 0
	for i, p := range pairs {
		if picked[strconv.Itoa(i)] == p.Right {
			matches++
		}
	}
	return float64(matches) / float64(len(pairs))
}

// scoreSequencing requires the exact correct order, with no partial credit.
func scoreSequencing(correct []int, ans string) float64 {
	if len(correct) == 0 {
		return 0
	}
	var given []int
	if err := json.Unmarshal([]byte(ans), &given); err != nil {
		return 0
	}
	if len(given) != len(correct) {
		return 0
	}
	for i := range correct {
		if given[i] != correct[i] {
			return 0
		}
	}
	return 1
}

// scoreClassification awards partial credit per item mapped to its correct
// category. The denominator is the number of items in the key.
func scoreClassification(mapping map[string]int, ans string) float64 {
	if len(mapping) == 0 {
		return 0
	}
	var given map[string]int
	if err := json.Unmarshal([]byte(ans), &given); err != nil {
		return 0
	}
	matches := 0
	for item, cat := range mapping {
		if got, ok := given[item]; ok && got == cat {
			matches++
		}
	}
	return float64(matches) / float64(len(mapping))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
