package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ruangujian/ruangujian-backend/internal/model"
)

// AttemptResult joins an attempt with the student's identity for the
// admin results listing.
type AttemptResult struct {
	StudentID      int       `json:"student_id"`
	Name           string    `json:"name"`
	NISN           string    `json:"nisn"`
	Score          int       `json:"score"`
	ViolationCount int       `json:"violation_count"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// AttemptRepository handles persisted exam attempts. One row per
// (exam, student); re-submission upserts, keeping the latest record.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Upsert writes a single attempt. Used as the row-by-row fallback when the
// bulk path fails.
func (r *AttemptRepository) Upsert(ctx context.Context, a *model.Attempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempts (id, exam_id, student_id, answers, score, violation_count, submitted_at, is_submitted)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET answers = EXCLUDED.answers,
		     score = EXCLUDED.score,
		     violation_count = EXCLUDED.violation_count,
		     submitted_at = EXCLUDED.submitted_at,
		     is_submitted = EXCLUDED.is_submitted`,
		a.ID, a.ExamID, a.StudentID, string(answers),
		a.Score, a.ViolationCount, a.SubmittedAt, a.IsSubmitted,
	)
	return err
}

// BulkUpsert writes a batch of attempts in one round trip via UNNEST.
func (r *AttemptRepository) BulkUpsert(ctx context.Context, batch []*model.Attempt) error {
	n := len(batch)
	ids := make([]uuid.UUID, 0, n)
	examIDs := make([]uuid.UUID, 0, n)
	studentIDs := make([]int, 0, n)
	answers := make([]string, 0, n)
	scores := make([]int, 0, n)
	violations := make([]int, 0, n)
	submittedAts := make([]time.Time, 0, n)
	flags := make([]bool, 0, n)

	for _, a := range batch {
		raw, err := json.Marshal(a.Answers)
		if err != nil {
			return err
		}
		ids = append(ids, a.ID)
		examIDs = append(examIDs, a.ExamID)
		studentIDs = append(studentIDs, a.StudentID)
		answers = append(answers, string(raw))
		scores = append(scores, a.Score)
		violations = append(violations, a.ViolationCount)
		submittedAts = append(submittedAts, a.SubmittedAt)
		flags = append(flags, a.IsSubmitted)
	}

	query := `
		INSERT INTO attempts (id, exam_id, student_id, answers, score, violation_count, submitted_at, is_submitted)
		SELECT u.id, u.exam_id, u.student_id, u.answers::jsonb, u.score, u.violation_count, u.submitted_at, u.is_submitted
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::int[],
			$4::text[],
			$5::int[],
			$6::int[],
			$7::timestamptz[],
			$8::bool[]
		) AS u (id, exam_id, student_id, answers, score, violation_count, submitted_at, is_submitted)
		ON CONFLICT (exam_id, student_id) DO UPDATE
		SET answers = EXCLUDED.answers,
		    score = EXCLUDED.score,
		    violation_count = EXCLUDED.violation_count,
		    submitted_at = EXCLUDED.submitted_at,
		    is_submitted = EXCLUDED.is_submitted
	`
	_, err := r.pool.Exec(ctx, query,
		ids, examIDs, studentIDs, answers, scores, violations, submittedAts, flags)
	return err
}

// GetByExamAndStudent retrieves one student's attempt on an exam.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, answers, score, violation_count, submitted_at, is_submitted
		 FROM attempts WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &answers, &a.Score, &a.ViolationCount, &a.SubmittedAt, &a.IsSubmitted)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByStudent retrieves all of a student's attempts, newest first. Answers
// are not loaded; the lobby only needs the summary.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, score, violation_count, submitted_at, is_submitted
		 FROM attempts WHERE student_id = $1
		 ORDER BY submitted_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Score, &a.ViolationCount, &a.SubmittedAt, &a.IsSubmitted); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByExam retrieves the results page for one exam.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]AttemptResult, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT a.student_id, s.name, s.nisn, a.score, a.violation_count, a.submitted_at
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.exam_id = $1
		 ORDER BY s.name
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.StudentID, &res.Name, &res.NISN, &res.Score, &res.ViolationCount, &res.SubmittedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// SubmittedStudentIDs returns the students who already submitted an exam.
// Feeds the monitor snapshot alongside the live Redis progress hash.
func (r *AttemptRepository) SubmittedStudentIDs(ctx context.Context, examID uuid.UUID) (map[int]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id FROM attempts WHERE exam_id = $1 AND is_submitted`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
