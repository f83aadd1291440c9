package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ruangujian/ruangujian-backend/internal/model"
)

// ViolationRepository handles the durable proctoring violation log.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// CopyBatch inserts a batch of violation events with COPY.
func (r *ViolationRepository) CopyBatch(ctx context.Context, batch []*model.ViolationEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{
			v.ExamID, v.StudentID, v.Reason, v.Count, v.OccurredAt,
		})
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "student_id", "reason", "violation_count", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single violation event. Fallback for CopyBatch.
func (r *ViolationRepository) Insert(ctx context.Context, v *model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_id, reason, violation_count, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.ExamID, v.StudentID, v.Reason, v.Count, v.OccurredAt,
	)
	return err
}

// CountsByExam returns the number of logged violations per student.
func (r *ViolationRepository) CountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var sid, count int
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}

// ListByStudent returns one student's violation log for an exam,
// chronological.
func (r *ViolationRepository) ListByStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, student_id, reason, violation_count, occurred_at
		 FROM exam_violations
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY occurred_at`, examID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var v model.ViolationEvent
		if err := rows.Scan(&v.ExamID, &v.StudentID, &v.Reason, &v.Count, &v.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, v)
	}
	return events, rows.Err()
}
