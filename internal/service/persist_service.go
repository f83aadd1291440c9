package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ruangujian/ruangujian-backend/internal/config"
	"github.com/ruangujian/ruangujian-backend/internal/model"
)

// PersistService is the Redis-backed outbound side of a session. Attempts
// and violations go to worker queues for durable PostgreSQL writes; live
// progress goes to a per-exam hash plus a Pub/Sub fanout for the monitor.
type PersistService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewPersistService creates a new PersistService.
func NewPersistService(rdb *redis.Client, log zerolog.Logger) *PersistService {
	return &PersistService{
		rdb: rdb,
		log: log.With().Str("component", "persist_service").Logger(),
	}
}

// SubmitAttempt queues the finished attempt for the persistence worker and
// caches it for immediate result reads. The session's autosave and active
// exam markers are cleared in the same pipeline.
func (s *PersistService) SubmitAttempt(ctx context.Context, attempt model.Attempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	examID := attempt.ExamID.String()
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw)
	pipe.Set(ctx, config.CacheKey.StudentAttemptKey(examID, attempt.StudentID), raw, 0)
	pipe.Del(ctx, config.CacheKey.StudentAnswersKey(examID, attempt.StudentID))
	pipe.Del(ctx, config.CacheKey.StudentSessionStartKey(examID, attempt.StudentID))
	pipe.Del(ctx, config.CacheKey.StudentActiveExamKey(attempt.StudentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue attempt: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID).
		Int("student_id", attempt.StudentID).
		Int("score", attempt.Score).
		Msg("Attempt queued for persistence")
	return nil
}

// PushProgress updates the live monitor hash and fans the entry out over
// Pub/Sub. Best effort: failures are logged and swallowed, the hash refresh
// on the next heartbeat repairs any gap.
func (s *PersistService) PushProgress(ctx context.Context, progress model.StudentProgress) {
	raw, err := json.Marshal(progress)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal progress")
		return
	}

	examID := progress.ExamID.String()
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.ExamProgressKey(examID), strconv.Itoa(progress.StudentID), raw)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().
			Err(err).
			Str("exam_id", examID).
			Int("student_id", progress.StudentID).
			Msg("Failed to push progress")
	}
}

// RecordViolation queues a violation event for the persistence worker.
// Best effort: the in-session count is authoritative either way.
func (s *PersistService) RecordViolation(ctx context.Context, event model.ViolationEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal violation")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		s.log.Warn().
			Err(err).
			Str("exam_id", event.ExamID.String()).
			Int("student_id", event.StudentID).
			Str("reason", event.Reason).
			Msg("Failed to queue violation")
	}
}
