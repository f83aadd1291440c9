package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ruangujian/ruangujian-backend/internal/model"
)

// QuestionRepository handles question data access. The type-specific payload
// fields live in JSONB columns; pgx marshals them through encoding/json.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, exam_id, question_type, question_text, passage, image_url,
	options, statements, matching_pairs, sequence_items, correct_sequence,
	classification_items, classification_categories, classification_mapping,
	correct_key, order_num`

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Passage, &q.ImageURL,
			&q.Options, &q.Statements, &q.MatchingPairs, &q.SequenceItems, &q.CorrectSequence,
			&q.ClassificationItems, &q.ClassificationCategories, &q.ClassificationMapping,
			&q.CorrectKey, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_type, question_text, passage, image_url,
		        options, statements, matching_pairs, sequence_items, correct_sequence,
		        classification_items, classification_categories, classification_mapping,
		        correct_key, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		q.ExamID, q.Type, q.Text, q.Passage, q.ImageURL,
		q.Options, q.Statements, q.MatchingPairs, q.SequenceItems, q.CorrectSequence,
		q.ClassificationItems, q.ClassificationCategories, q.ClassificationMapping,
		q.CorrectKey, q.OrderNum,
	).Scan(&q.ID)
}

// CountByExam returns the number of questions attached to an exam.
func (r *QuestionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID).Scan(&n)
	return n, err
}
