package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ruangujian/ruangujian-backend/internal/config"
	"github.com/ruangujian/ruangujian-backend/internal/model"
	"github.com/ruangujian/ruangujian-backend/internal/repository"
)

// MonitorService feeds the proctor dashboard: point-in-time snapshots from
// the Redis progress hash overlaid with durable PostgreSQL state, and a
// Pub/Sub subscription for live updates.
type MonitorService struct {
	attemptRepo   *repository.AttemptRepository
	violationRepo *repository.ViolationRepository
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(
	attemptRepo *repository.AttemptRepository,
	violationRepo *repository.ViolationRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *MonitorService {
	return &MonitorService{
		attemptRepo:   attemptRepo,
		violationRepo: violationRepo,
		rdb:           rdb,
		log:           log.With().Str("component", "monitor_service").Logger(),
	}
}

// MonitorSnapshot is one full dashboard refresh.
type MonitorSnapshot struct {
	Students        []model.StudentProgress `json:"students"`
	SubmittedCount  int                     `json:"submitted_count"`
	TotalViolations int                     `json:"total_violations"`
}

// Snapshot assembles the dashboard state for one exam. The live hash, the
// submitted set and the violation counts are fetched concurrently; the hash
// is critical, the PostgreSQL overlays are best effort.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	var (
		entries      map[string]string
		submitted    map[int]bool
		violations   map[int]int
		entriesErr   error
		submittedErr error
		violationErr error
		wg           sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		entries, entriesErr = s.rdb.HGetAll(ctx, config.CacheKey.ExamProgressKey(examID.String())).Result()
	}()
	go func() {
		defer wg.Done()
		submitted, submittedErr = s.attemptRepo.SubmittedStudentIDs(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		violations, violationErr = s.violationRepo.CountsByExam(ctx, examID)
	}()
	wg.Wait()

	if entriesErr != nil {
		return nil, fmt.Errorf("read progress hash: %w", entriesErr)
	}
	if submittedErr != nil {
		s.log.Warn().Err(submittedErr).Msg("Submitted overlay unavailable")
		submitted = map[int]bool{}
	}
	if violationErr != nil {
		s.log.Warn().Err(violationErr).Msg("Violation overlay unavailable")
		violations = map[int]int{}
	}

	snapshot := &MonitorSnapshot{Students: make([]model.StudentProgress, 0, len(entries))}
	for _, raw := range entries {
		var p model.StudentProgress
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.log.Warn().Err(err).Msg("Skipping malformed progress entry")
			continue
		}
		if submitted[p.StudentID] {
			p.Status = model.ProgressSubmitted
		}
		if logged := violations[p.StudentID]; logged > p.ViolationCount {
			p.ViolationCount = logged
		}
		snapshot.Students = append(snapshot.Students, p)
	}

	for _, p := range snapshot.Students {
		if p.Status == model.ProgressSubmitted {
			snapshot.SubmittedCount++
		}
		snapshot.TotalViolations += p.ViolationCount
	}
	return snapshot, nil
}

// Subscribe opens the live update channel for an exam. The caller owns the
// returned PubSub and must Close it.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}

// ViolationLog returns one student's durable violation history for an exam.
func (s *MonitorService) ViolationLog(ctx context.Context, examID uuid.UUID, studentID int) ([]model.ViolationEvent, error) {
	return s.violationRepo.ListByStudent(ctx, examID, studentID)
}
