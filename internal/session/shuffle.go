package session

import (
	"hash/fnv"
	"math/rand"

	"github.com/ruangujian/ruangujian-backend/internal/model"
)

// DisplayOption is a choice as presented to the student. OriginalIndex is
// the option's position in the authored question; answers always encode
// original indices, so shuffling the display never corrupts grading.
type DisplayOption struct {
	model.QuestionOption
	OriginalIndex int `json:"original_index"`
}

// ProcessedQuestion is the student-facing view of one question with its
// display-order option permutation applied. The Options field shadows the
// embedded one.
type ProcessedQuestion struct {
	model.QuestionForStudent
	Options []DisplayOption `json:"options,omitempty"`
}

// orderSeed derives a stable shuffle seed per (exam, student) so the
// question and option order survives reconnects and page reloads.
func orderSeed(examID string, studentID int) int64 {
	h := fnv.New64a()
	h.Write([]byte(examID))
	h.Write([]byte{byte(studentID), byte(studentID >> 8), byte(studentID >> 16), byte(studentID >> 24)})
	return int64(h.Sum64())
}

// Process builds the per-student question view: answer keys stripped,
// question order and option order optionally shuffled with the given rng.
func Process(questions []model.Question, randomizeQuestions, randomizeOptions bool, rng *rand.Rand) []ProcessedQuestion {
	out := make([]ProcessedQuestion, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		pq := ProcessedQuestion{QuestionForStudent: q.ForStudent()}
		pq.QuestionForStudent.Options = nil
		for idx, opt := range q.Options {
			pq.Options = append(pq.Options, DisplayOption{QuestionOption: opt, OriginalIndex: idx})
		}
		if randomizeOptions && len(pq.Options) > 1 {
			rng.Shuffle(len(pq.Options), func(a, b int) {
				pq.Options[a], pq.Options[b] = pq.Options[b], pq.Options[a]
			})
		}
		out = append(out, pq)
	}
	if randomizeQuestions && len(out) > 1 {
		rng.Shuffle(len(out), func(a, b int) {
			out[a], out[b] = out[b], out[a]
		})
	}
	return out
}
