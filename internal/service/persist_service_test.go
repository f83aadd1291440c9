package service

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ruangujian/ruangujian-backend/internal/config"
	"github.com/ruangujian/ruangujian-backend/internal/model"
)

func newTestPersist(t *testing.T) (*PersistService, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewPersistService(rdb, zerolog.Nop()), mr, rdb
}

func TestSubmitAttemptQueuesAndClearsSession(t *testing.T) {
	svc, mr, rdb := newTestPersist(t)
	ctx := context.Background()

	examID := uuid.New()
	studentID := 42

	// session leftovers that submission must clear
	answersKey := config.CacheKey.StudentAnswersKey(examID.String(), studentID)
	startKey := config.CacheKey.StudentSessionStartKey(examID.String(), studentID)
	activeKey := config.CacheKey.StudentActiveExamKey(studentID)
	mr.HSet(answersKey, uuid.NewString(), "2")
	mr.Set(startKey, strconv.FormatInt(time.Now().Unix(), 10))
	mr.Set(activeKey, examID.String())

	attempt := model.Attempt{
		ExamID:         examID,
		StudentID:      studentID,
		StudentName:    "Budi Santoso",
		Answers:        map[string]string{uuid.NewString(): "2"},
		Score:          80,
		ViolationCount: 1,
		SubmittedAt:    time.Now(),
		IsSubmitted:    true,
	}
	if err := svc.SubmitAttempt(ctx, attempt); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	queued, err := rdb.LRange(ctx, config.WorkerKey.PersistAttemptsQueue, 0, -1).Result()
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("queue length = %d, want 1", len(queued))
	}
	var got model.Attempt
	if err := json.Unmarshal([]byte(queued[0]), &got); err != nil {
		t.Fatalf("unmarshal queued attempt: %v", err)
	}
	if got.ExamID != examID || got.StudentID != studentID || got.Score != 80 {
		t.Errorf("queued attempt = %+v", got)
	}

	if !mr.Exists(config.CacheKey.StudentAttemptKey(examID.String(), studentID)) {
		t.Error("attempt cache missing after submit")
	}
	for _, key := range []string{answersKey, startKey, activeKey} {
		if mr.Exists(key) {
			t.Errorf("key %s survived submit", key)
		}
	}
}

func TestPushProgressUpdatesHashAndPublishes(t *testing.T) {
	svc, mr, rdb := newTestPersist(t)
	ctx := context.Background()

	examID := uuid.New()
	sub := rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	progress := model.StudentProgress{
		ExamID:         examID,
		StudentID:      7,
		StudentName:    "Siti Rahayu",
		AnsweredCount:  3,
		TotalQuestions: 10,
		Status:         model.ProgressInProgress,
		LastActive:     time.Now(),
	}
	svc.PushProgress(ctx, progress)

	raw := mr.HGet(config.CacheKey.ExamProgressKey(examID.String()), "7")
	if raw == "" {
		t.Fatal("progress hash entry missing")
	}
	var got model.StudentProgress
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal progress: %v", err)
	}
	if got.AnsweredCount != 3 || got.Status != model.ProgressInProgress {
		t.Errorf("stored progress = %+v", got)
	}

	select {
	case msg := <-sub.Channel():
		var published model.StudentProgress
		if err := json.Unmarshal([]byte(msg.Payload), &published); err != nil {
			t.Fatalf("unmarshal published progress: %v", err)
		}
		if published.StudentID != 7 {
			t.Errorf("published studentID = %d, want 7", published.StudentID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message on monitor channel")
	}
}

func TestRecordViolationQueuesEvent(t *testing.T) {
	svc, _, rdb := newTestPersist(t)
	ctx := context.Background()

	event := model.ViolationEvent{
		ExamID:     uuid.New(),
		StudentID:  9,
		Reason:     "tab_switch",
		Signal:     "visibility_hidden",
		Count:      2,
		OccurredAt: time.Now(),
	}
	svc.RecordViolation(ctx, event)

	n, err := rdb.LLen(ctx, config.WorkerKey.PersistViolationsQueue).Result()
	if err != nil {
		t.Fatalf("queue length: %v", err)
	}
	if n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
	raw, _ := rdb.LIndex(ctx, config.WorkerKey.PersistViolationsQueue, 0).Result()
	var got model.ViolationEvent
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal violation: %v", err)
	}
	if got.Reason != "tab_switch" || got.Count != 2 {
		t.Errorf("queued violation = %+v", got)
	}
}
