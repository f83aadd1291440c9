package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ruangujian/ruangujian-backend/internal/config"
	"github.com/ruangujian/ruangujian-backend/internal/model"
	"github.com/ruangujian/ruangujian-backend/internal/repository"
	"github.com/ruangujian/ruangujian-backend/internal/session"
)

// Session domain errors.
var (
	ErrInvalidEntryToken = errors.New("invalid entry token")
	ErrAlreadySubmitted  = errors.New("exam already submitted")
	ErrNoActiveSession   = errors.New("no active session for this exam")
)

// LobbyStatus is the overlay state of an exam in the student lobby.
type LobbyStatus string

const (
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyExam is one exam as displayed in the student lobby.
type LobbyExam struct {
	model.Exam
	LobbyStatus LobbyStatus `json:"lobby_status"`
	Score       *int        `json:"score,omitempty"`
}

// SessionService owns the live session controllers, one per
// (exam, student). Join and reconnect both land on GetOrCreate; autosaved
// answers and the start time live in Redis so a session survives a server
// restart with its clock intact.
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*session.Controller

	catalog     *CatalogService
	persist     *PersistService
	studentRepo *repository.StudentRepository
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	cfg         *config.Config
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	catalog *CatalogService,
	persist *PersistService,
	studentRepo *repository.StudentRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:    make(map[string]*session.Controller),
		catalog:     catalog,
		persist:     persist,
		studentRepo: studentRepo,
		attemptRepo: attemptRepo,
		rdb:         rdb,
		cfg:         cfg,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

func sessionKey(examID uuid.UUID, studentID int) string {
	return examID.String() + ":" + strconv.Itoa(studentID)
}

// Lobby returns the published exams with the student's attempt overlay.
func (s *SessionService) Lobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.catalog.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}

	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	attemptMap := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		attemptMap[attempts[i].ExamID] = &attempts[i]
	}

	activeExam, err := s.rdb.Get(ctx, config.CacheKey.StudentActiveExamKey(studentID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get active exam: %w", err)
	}

	lobby := make([]LobbyExam, 0, len(exams))
	for i := range exams {
		entry := LobbyExam{Exam: exams[i], LobbyStatus: LobbyStatusAvailable}
		if a, ok := attemptMap[exams[i].ID]; ok && a.IsSubmitted {
			entry.LobbyStatus = LobbyStatusCompleted
			score := a.Score
			entry.Score = &score
		} else if activeExam == exams[i].ID.String() {
			entry.LobbyStatus = LobbyStatusInProgress
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// Join admits a student into a published exam. Re-joining an in-progress
// session is idempotent; a submitted exam is rejected. The start time is
// anchored in Redis on first join so the countdown never resets.
func (s *SessionService) Join(ctx context.Context, examID uuid.UUID, studentID int, entryToken string) (*model.ExamPayload, error) {
	exam, err := s.catalog.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	if exam.EntryToken != entryToken {
		return nil, ErrInvalidEntryToken
	}

	if err := s.rejectSubmitted(ctx, examID, studentID); err != nil {
		return nil, err
	}

	// SetNX anchors the start; a second join keeps the original clock.
	startKey := config.CacheKey.StudentSessionStartKey(examID.String(), studentID)
	created, err := s.rdb.SetNX(ctx, startKey, time.Now().Unix(), 0).Result()
	if err != nil {
		return nil, fmt.Errorf("anchor start time: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.StudentActiveExamKey(studentID), examID.String(), 0).Err(); err != nil {
		return nil, fmt.Errorf("mark active exam: %w", err)
	}

	if created {
		s.log.Info().
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Msg("Student joined exam")
	}

	return s.catalog.GetPayload(ctx, examID)
}

// GetOrCreate returns the live controller for (exam, student), building one
// from Redis state when this is the first attach since a join or a restart.
func (s *SessionService) GetOrCreate(ctx context.Context, examID uuid.UUID, studentID int, platform string) (*session.Controller, error) {
	key := sessionKey(examID, studentID)

	s.mu.Lock()
	if ctrl, ok := s.sessions[key]; ok {
		s.mu.Unlock()
		if ctrl.State() == session.StateSubmitted {
			return nil, ErrAlreadySubmitted
		}
		return ctrl, nil
	}
	s.mu.Unlock()

	if err := s.rejectSubmitted(ctx, examID, studentID); err != nil {
		return nil, err
	}

	remaining, err := s.remainingSeconds(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	student, err := s.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	def, err := s.catalog.GetDefinition(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}

	ctrl, err := session.New(*def, *student, s.persist, session.Config{
		Platform:         platform,
		MaxViolations:    s.cfg.MaxViolations,
		RemainingSeconds: remaining,
	}, s.log)
	if err != nil {
		return nil, fmt.Errorf("build session: %w", err)
	}

	saved, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load autosaved answers: %w", err)
	}
	if len(saved) > 0 {
		ctrl.RestoreAnswers(saved)
	}

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		// Lost the race to a concurrent attach; keep theirs.
		s.mu.Unlock()
		ctrl.Close()
		return existing, nil
	}
	s.sessions[key] = ctrl
	s.mu.Unlock()

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Int("remaining_sec", remaining).
		Int("restored_answers", len(saved)).
		Msg("Session controller created")
	return ctrl, nil
}

// Get returns the live controller, or nil when none is registered.
func (s *SessionService) Get(examID uuid.UUID, studentID int) *session.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey(examID, studentID)]
}

// Autosave mirrors one answer into Redis for reload and restart recovery.
// Best effort alongside the in-memory store.
func (s *SessionService) Autosave(ctx context.Context, examID uuid.UUID, studentID int, questionID, answer string) {
	key := config.CacheKey.StudentAnswersKey(examID.String(), studentID)
	if err := s.rdb.HSet(ctx, key, questionID, answer).Err(); err != nil {
		s.log.Warn().
			Err(err).
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Msg("Autosave failed")
	}
}

// Evict removes a controller from the registry and releases its resources.
// Called after submission once the final events are flushed.
func (s *SessionService) Evict(examID uuid.UUID, studentID int) {
	key := sessionKey(examID, studentID)
	s.mu.Lock()
	ctrl, ok := s.sessions[key]
	if ok {
		delete(s.sessions, key)
	}
	s.mu.Unlock()
	if ok {
		ctrl.Close()
	}
}

// CloseAll releases every live controller. Shutdown path; in-progress
// sessions recover from Redis on the next start.
func (s *SessionService) CloseAll() {
	s.mu.Lock()
	ctrls := make([]*session.Controller, 0, len(s.sessions))
	for _, c := range s.sessions {
		ctrls = append(ctrls, c)
	}
	s.sessions = make(map[string]*session.Controller)
	s.mu.Unlock()

	for _, c := range ctrls {
		c.Close()
	}
	if len(ctrls) > 0 {
		s.log.Info().Int("count", len(ctrls)).Msg("Closed live sessions")
	}
}

// rejectSubmitted blocks re-entry into a finished exam. Redis first (covers
// the window before the worker lands the row), PostgreSQL as the durable
// check.
func (s *SessionService) rejectSubmitted(ctx context.Context, examID uuid.UUID, studentID int) error {
	exists, err := s.rdb.Exists(ctx, config.CacheKey.StudentAttemptKey(examID.String(), studentID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("check cached attempt: %w", err)
	}
	if exists > 0 {
		return ErrAlreadySubmitted
	}

	attempt, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("check attempt: %w", err)
	}
	if attempt.IsSubmitted {
		return ErrAlreadySubmitted
	}
	return nil
}

// remainingSeconds derives the countdown from the Redis start anchor.
func (s *SessionService) remainingSeconds(ctx context.Context, examID uuid.UUID, studentID int) (int, error) {
	startKey := config.CacheKey.StudentSessionStartKey(examID.String(), studentID)
	val, err := s.rdb.Get(ctx, startKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNoActiveSession
		}
		return 0, fmt.Errorf("get start time: %w", err)
	}
	startUnix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid start time in cache: %w", err)
	}

	exam, err := s.catalog.GetByID(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("get exam: %w", err)
	}

	end := time.Unix(startUnix, 0).Add(time.Duration(exam.DurationMinutes) * time.Minute)
	remaining := int(time.Until(end).Seconds())
	if remaining < 1 {
		remaining = 1
	}
	return remaining, nil
}

// RecoveryState is what a reloading client needs before it reattaches to
// the stream: the autosaved answers and the authoritative countdown.
type RecoveryState struct {
	ExamID           uuid.UUID         `json:"examId"`
	StudentID        int               `json:"studentId"`
	AutosavedAnswers map[string]string `json:"autosavedAnswers"`
	RemainingSeconds int               `json:"remainingSeconds"`
}

// State returns the recovery state for an in-progress session. Served over
// HTTP so the client can rebuild its UI before the WebSocket reattach.
func (s *SessionService) State(ctx context.Context, examID uuid.UUID, studentID int) (*RecoveryState, error) {
	if err := s.rejectSubmitted(ctx, examID, studentID); err != nil {
		return nil, err
	}
	remaining, err := s.remainingSeconds(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load autosaved answers: %w", err)
	}
	return &RecoveryState{
		ExamID:           examID,
		StudentID:        studentID,
		AutosavedAnswers: answers,
		RemainingSeconds: remaining,
	}, nil
}

// CachedAttempt returns the student's submitted attempt from Redis, falling
// back to PostgreSQL. Used by the results endpoint right after submission.
func (s *SessionService) CachedAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.StudentAttemptKey(examID.String(), studentID)).Bytes()
	if err == nil {
		var a model.Attempt
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("unmarshal cached attempt: %w", err)
		}
		return &a, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cached attempt: %w", err)
	}

	a, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}
