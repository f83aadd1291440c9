package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats. The values are a
// de facto wire format shared with the exam authoring side and stored
// attempts; they must not be renamed.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "PILIHAN_GANDA"
	QuestionMultiChoice    QuestionType = "PILIHAN_GANDA_KOMPLEKS"
	QuestionTrueFalse      QuestionType = "BENAR_SALAH"
	QuestionTrueFalseTable QuestionType = "BENAR_SALAH_TABEL"
	QuestionShortAnswer    QuestionType = "ISIAN_SINGKAT"
	QuestionEssay          QuestionType = "ESSAY"
	QuestionMatching       QuestionType = "MENJODOHKAN"
	QuestionSequencing     QuestionType = "SEQUENCING"
	QuestionClassification QuestionType = "CLASSIFICATION"
)

// QuestionOption is a selectable choice for single/multi choice questions.
type QuestionOption struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Statement is one row of a true/false table question. CorrectAnswer is
// "true" or "false", positionally aligned with the student's JSON-array
// answer.
type Statement struct {
	Text          string `json:"text"`
	CorrectAnswer string `json:"correct_answer"`
}

// MatchingPair defines one left prompt and its correct right value.
type MatchingPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Question is a full exam question including its answer key. Only the
// scoring engine and the session controller ever see this shape; students
// receive QuestionForStudent.
//
// Answer-string encodings per type (stored in attempts, must be preserved):
//   - PILIHAN_GANDA / BENAR_SALAH:  original option index as plain string
//   - PILIHAN_GANDA_KOMPLEKS:       JSON array of original index strings
//   - BENAR_SALAH_TABEL:            JSON array of "true"/"false", positional
//   - ISIAN_SINGKAT / ESSAY:        free text
//   - MENJODOHKAN:                  JSON object left-index -> right value
//   - SEQUENCING:                   JSON array of original item indices
//   - CLASSIFICATION:               JSON object item-index -> category index
type Question struct {
	ID                       uuid.UUID        `json:"id"`
	ExamID                   uuid.UUID        `json:"exam_id"`
	Type                     QuestionType     `json:"type"`
	Text                     string           `json:"text"`
	Passage                  string           `json:"passage,omitempty"`
	ImageURL                 string           `json:"image_url,omitempty"`
	Options                  []QuestionOption `json:"options,omitempty"`
	Statements               []Statement      `json:"statements,omitempty"`
	MatchingPairs            []MatchingPair   `json:"matching_pairs,omitempty"`
	SequenceItems            []string         `json:"sequence_items,omitempty"`
	CorrectSequence          []int            `json:"correct_sequence,omitempty"`
	ClassificationItems      []string         `json:"classification_items,omitempty"`
	ClassificationCategories []string         `json:"classification_categories,omitempty"`
	ClassificationMapping    map[string]int   `json:"classification_mapping,omitempty"`
	CorrectKey               string           `json:"correct_key,omitempty"`
	OrderNum                 int              `json:"order_num"`
}

// QuestionForStudent is a question stripped of everything that would reveal
// the answer: the key, statement verdicts, the correct sequence and the
// classification mapping. Matching right values are listed separately so
// their pairing stays hidden.
type QuestionForStudent struct {
	ID                       uuid.UUID        `json:"id"`
	Type                     QuestionType     `json:"type"`
	Text                     string           `json:"text"`
	Passage                  string           `json:"passage,omitempty"`
	ImageURL                 string           `json:"image_url,omitempty"`
	Options                  []QuestionOption `json:"options,omitempty"`
	StatementTexts           []string         `json:"statement_texts,omitempty"`
	MatchingLeft             []string         `json:"matching_left,omitempty"`
	MatchingRight            []string         `json:"matching_right,omitempty"`
	SequenceItems            []string         `json:"sequence_items,omitempty"`
	ClassificationItems      []string         `json:"classification_items,omitempty"`
	ClassificationCategories []string         `json:"classification_categories,omitempty"`
	OrderNum                 int              `json:"order_num"`
}

// ForStudent strips the answer key from a question.
func (q *Question) ForStudent() QuestionForStudent {
	out := QuestionForStudent{
		ID:                       q.ID,
		Type:                     q.Type,
		Text:                     q.Text,
		Passage:                  q.Passage,
		ImageURL:                 q.ImageURL,
		Options:                  q.Options,
		SequenceItems:            q.SequenceItems,
		ClassificationItems:      q.ClassificationItems,
		ClassificationCategories: q.ClassificationCategories,
		OrderNum:                 q.OrderNum,
	}
	for _, s := range q.Statements {
		out.StatementTexts = append(out.StatementTexts, s.Text)
	}
	for _, p := range q.MatchingPairs {
		out.MatchingLeft = append(out.MatchingLeft, p.Left)
		out.MatchingRight = append(out.MatchingRight, p.Right)
	}
	return out
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Type                     string           `json:"type" binding:"required,oneof=PILIHAN_GANDA PILIHAN_GANDA_KOMPLEKS BENAR_SALAH BENAR_SALAH_TABEL ISIAN_SINGKAT ESSAY MENJODOHKAN SEQUENCING CLASSIFICATION"`
	Text                     string           `json:"text" binding:"required,min=1,max=4000"`
	Passage                  string           `json:"passage" binding:"omitempty,max=20000"`
	ImageURL                 string           `json:"image_url" binding:"omitempty,url"`
	Options                  []QuestionOption `json:"options" binding:"omitempty,dive"`
	Statements               []Statement      `json:"statements" binding:"omitempty,dive"`
	MatchingPairs            []MatchingPair   `json:"matching_pairs" binding:"omitempty,dive"`
	SequenceItems            []string         `json:"sequence_items" binding:"omitempty"`
	CorrectSequence          []int            `json:"correct_sequence" binding:"omitempty"`
	ClassificationItems      []string         `json:"classification_items" binding:"omitempty"`
	ClassificationCategories []string         `json:"classification_categories" binding:"omitempty"`
	ClassificationMapping    map[string]int   `json:"classification_mapping" binding:"omitempty"`
	CorrectKey               string           `json:"correct_key" binding:"omitempty,max=4000"`
	OrderNum                 int              `json:"order_num" binding:"min=0"`
}
