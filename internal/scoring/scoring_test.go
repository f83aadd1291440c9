package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/ruangujian/ruangujian-backend/internal/model"
)

func q(id string, typ model.QuestionType, mutate func(*model.Question)) model.Question {
	question := model.Question{
		ID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)),
		Type: typ,
		Text: "soal " + id,
	}
	if mutate != nil {
		mutate(&question)
	}
	return question
}

func answerFor(question model.Question, ans string) map[string]string {
	return map[string]string{question.ID.String(): ans}
}

func TestScore_SingleChoice(t *testing.T) {
	single := q("pg1", model.QuestionSingleChoice, func(qu *model.Question) {
		qu.CorrectKey = "2"
	})

	tests := []struct {
		name string
		ans  string
		want int
	}{
		{name: "correct original index", ans: "2", want: 100},
		{name: "wrong index", ans: "0", want: 0},
		{name: "empty answer", ans: "", want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score([]model.Question{single}, answerFor(single, tc.ans))
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScore_MultiChoiceExactSet(t *testing.T) {
	multi := q("mc1", model.QuestionMultiChoice, func(qu *model.Question) {
		qu.CorrectKey = `["0","2"]`
	})

	tests := []struct {
		name string
		ans  string
		want int
	}{
		{name: "same set different order", ans: `["2","0"]`, want: 100},
		{name: "subset earns nothing", ans: `["0"]`, want: 0},
		{name: "superset earns nothing", ans: `["0","2","3"]`, want: 0},
		{name: "malformed json earns nothing", ans: `["0",`, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score([]model.Question{multi}, answerFor(multi, tc.ans))
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScore_TrueFalseTablePartialCredit(t *testing.T) {
	table := q("bst1", model.QuestionTrueFalseTable, func(qu *model.Question) {
		qu.Statements = []model.Statement{
			{Text: "a", CorrectAnswer: "true"},
			{Text: "b", CorrectAnswer: "false"},
			{Text: "c", CorrectAnswer: "true"},
			{Text: "d", CorrectAnswer: "true"},
			{Text: "e", CorrectAnswer: "false"},
		}
	})

	// 3 of 5 positional matches on a single-question exam → 60.
	got := Score([]model.Question{table}, answerFor(table, `["true","false","true","false","true"]`))
	if got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}

	// Short answer array only matches what it covers.
	got = Score([]model.Question{table}, answerFor(table, `["true"]`))
	if got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
}

func TestScore_ShortAnswerNormalized(t *testing.T) {
	short := q("is1", model.QuestionShortAnswer, func(qu *model.Question) {
		qu.CorrectKey = "Jakarta"
	})

	tests := []struct {
		name string
		ans  string
		want int
	}{
		{name: "exact", ans: "Jakarta", want: 100},
		{name: "case insensitive", ans: "JAKARTA", want: 100},
		{name: "trimmed", ans: "  jakarta  ", want: 100},
		{name: "wrong", ans: "Bandung", want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score([]model.Question{short}, answerFor(short, tc.ans))
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScore_MatchingPartialCredit(t *testing.T) {
	matching := q("jd1", model.QuestionMatching, func(qu *model.Question) {
		qu.MatchingPairs = []model.MatchingPair{
			{Left: "Apel", Right: "Merah"},
			{Left: "Pisang", Right: "Kuning"},
		}
	})

	tests := []struct {
		name string
		ans  string
		want int
	}{
		{name: "all pairs", ans: `{"0":"Merah","1":"Kuning"}`, want: 100},
		{name: "half pairs", ans: `{"0":"Merah","1":"Merah"}`, want: 50},
		{name: "malformed", ans: `{"0":`, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score([]model.Question{matching}, answerFor(matching, tc.ans))
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScore_SequencingExactOrder(t *testing.T) {
	seq := q("sq1", model.QuestionSequencing, func(qu *model.Question) {
		qu.SequenceItems = []string{"satu", "dua", "tiga"}
		qu.CorrectSequence = []int{2, 0, 1}
	})

	tests := []struct {
		name string
		ans  string
		want int
	}{
		{name: "exact order", ans: `[2,0,1]`, want: 100},
		{name: "right set wrong order", ans: `[0,2,1]`, want: 0},
		{name: "wrong length", ans: `[2,0]`, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score([]model.Question{seq}, answerFor(seq, tc.ans))
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScore_ClassificationPartialCredit(t *testing.T) {
	class := q("cl1", model.QuestionClassification, func(qu *model.Question) {
		qu.ClassificationItems = []string{"kucing", "bayam", "ayam", "wortel"}
		qu.ClassificationCategories = []string{"hewan", "sayur"}
		qu.ClassificationMapping = map[string]int{"0": 0, "1": 1, "2": 0, "3": 1}
	})

	tests := []struct {
		name string
		ans  string
		want int
	}{
		{name: "all mapped", ans: `{"0":0,"1":1,"2":0,"3":1}`, want: 100},
		{name: "three of four", ans: `{"0":0,"1":1,"2":0,"3":0}`, want: 75},
		{name: "missing items score by key size", ans: `{"0":0}`, want: 25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score([]model.Question{class}, answerFor(class, tc.ans))
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScore_EssayCountsInDenominator(t *testing.T) {
	single := q("pg2", model.QuestionSingleChoice, func(qu *model.Question) {
		qu.CorrectKey = "1"
	})
	essay := q("es1", model.QuestionEssay, nil)

	answers := map[string]string{
		single.ID.String(): "1",
		essay.ID.String():  "jawaban panjang",
	}

	// 1 of 2 units earned; the essay dilutes but never contributes.
	got := Score([]model.Question{single, essay}, answers)
	if got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestScore_RoundsFinalPercentageOnly(t *testing.T) {
	// Two table questions of 1/3 and 1/3 credit: summed 2/3 of 2 units
	// → 33.33% → 33. Rounding per question first would give 0.33+0.33
	// rounded independently; the engine must not do that.
	mk := func(id string) model.Question {
		return q(id, model.QuestionTrueFalseTable, func(qu *model.Question) {
			qu.Statements = []model.Statement{
				{Text: "a", CorrectAnswer: "true"},
				{Text: "b", CorrectAnswer: "true"},
				{Text: "c", CorrectAnswer: "true"},
			}
		})
	}
	one, two := mk("r1"), mk("r2")
	answers := map[string]string{
		one.ID.String(): `["true","false","false"]`,
		two.ID.String(): `["true","false","false"]`,
	}

	got := Score([]model.Question{one, two}, answers)
	if got != 33 {
		t.Fatalf("expected 33, got %d", got)
	}
}

func TestScore_Deterministic(t *testing.T) {
	table := q("det1", model.QuestionTrueFalseTable, func(qu *model.Question) {
		qu.Statements = []model.Statement{
			{Text: "a", CorrectAnswer: "true"},
			{Text: "b", CorrectAnswer: "false"},
		}
	})
	answers := answerFor(table, `["true","true"]`)

	first := Score([]model.Question{table}, answers)
	for i := 0; i < 100; i++ {
		if got := Score([]model.Question{table}, answers); got != first {
			t.Fatalf("score changed between calls: %d != %d", got, first)
		}
	}
}

func TestScore_EmptyExam(t *testing.T) {
	if got := Score(nil, nil); got != 0 {
		t.Fatalf("expected 0 for empty exam, got %d", got)
	}
}
