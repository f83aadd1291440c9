package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ruangujian/ruangujian-backend/internal/model"
	"github.com/ruangujian/ruangujian-backend/internal/proctor"
	"github.com/ruangujian/ruangujian-backend/internal/scoring"
)

// State is the session lifecycle. Transitions are strictly forward:
// LOCKED → ACTIVE → SUBMITTING → SUBMITTED.
type State string

const (
	StateLocked     State = "LOCKED"
	StateActive     State = "ACTIVE"
	StateSubmitting State = "SUBMITTING"
	StateSubmitted  State = "SUBMITTED"
)

// Submit triggers, recorded on the submitted event.
const (
	TriggerManual    = "manual"
	TriggerViolation = "violation"
	TriggerTimeout   = "timeout"
)

// ErrNoQuestions rejects a session before it ever reaches LOCKED.
var ErrNoQuestions = errors.New("exam has no questions")

// Persistence is the controller's outbound side. SubmitAttempt is the only
// call whose failure the session surfaces (as sync-pending); progress and
// violation pushes are fire-and-forget.
type Persistence interface {
	SubmitAttempt(ctx context.Context, attempt model.Attempt) error
	PushProgress(ctx context.Context, progress model.StudentProgress)
	RecordViolation(ctx context.Context, event model.ViolationEvent)
}

// EventType names the server→client session events.
type EventType string

const (
	EventState        EventType = "state"
	EventTick         EventType = "tick"
	EventSaved        EventType = "saved"
	EventMarked       EventType = "marked"
	EventViolation    EventType = "violation"
	EventDisqualified EventType = "disqualified"
	EventSubmitReview EventType = "submit_review"
	EventSubmitted    EventType = "submitted"
)

// Event is one session notification, consumed by the WebSocket stream.
type Event struct {
	Type        EventType `json:"type"`
	Snapshot    *Snapshot `json:"snapshot,omitempty"`
	QuestionID  string    `json:"question_id,omitempty"`
	Marked      bool      `json:"marked,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Count       int       `json:"count,omitempty"`
	Remaining   int       `json:"remaining,omitempty"`
	Filled      int       `json:"filled,omitempty"`
	Total       int       `json:"total,omitempty"`
	Score       int       `json:"score,omitempty"`
	Trigger     string    `json:"trigger,omitempty"`
	SyncPending bool      `json:"sync_pending,omitempty"`
}

// Snapshot is the full reload-recovery projection of a session.
type Snapshot struct {
	ExamID     string              `json:"exam_id"`
	Title      string              `json:"title"`
	State      State               `json:"state"`
	Questions  []ProcessedQuestion `json:"questions"`
	Index      int                 `json:"index"`
	Remaining  int                 `json:"remaining"`
	Answers    map[string]string   `json:"answers"`
	Marked     []string            `json:"marked"`
	Violations int                 `json:"violations"`
	Score      int                 `json:"score,omitempty"`
}

// Config tunes a controller. Zero values fall back to production defaults.
type Config struct {
	// Platform is the client-reported platform string ("ios", "android",
	// anything else is desktop). Drives the proctoring capability set.
	Platform string
	// Proctor overrides the monitor timing; zero uses
	// proctor.DefaultConfig(MaxViolations).
	Proctor proctor.Config
	// MaxViolations is only consulted when Proctor is zero.
	MaxViolations int
	// TickInterval defaults to one second.
	TickInterval time.Duration
	// RemainingSeconds resumes a recovered session; zero means the full
	// exam duration.
	RemainingSeconds int
	// PersistTimeout bounds the synchronous attempt submit, default 5s.
	PersistTimeout time.Duration
}

// Controller is the authoritative state machine for one student's exam
// session. It owns the shuffled question view, the answer store, the
// countdown clock and the proctoring monitor, and converges every
// submission path on a single idempotent latch.
type Controller struct {
	mu  sync.Mutex
	log zerolog.Logger

	def      model.ExamDefinition
	student  model.Student
	view     []ProcessedQuestion
	validIDs map[string]struct{}

	answers *AnswerStore
	monitor *proctor.Monitor
	clock   *Clock
	persist Persistence

	state          State
	index          int
	remaining      int
	score          int
	persistTimeout time.Duration

	events chan Event
}

// New builds a LOCKED session controller. The processed question view is
// computed once here with a per-(exam, student) stable seed, so order
// survives reconnects.
func New(def model.ExamDefinition, student model.Student, persist Persistence, cfg Config, log zerolog.Logger) (*Controller, error) {
	if len(def.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	rng := rand.New(rand.NewSource(orderSeed(def.ID.String(), student.ID)))
	remaining := cfg.RemainingSeconds
	if remaining <= 0 {
		remaining = def.DurationMinutes * 60
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	pcfg := cfg.Proctor
	if pcfg.MaxViolations == 0 && pcfg.SettleDelay == 0 {
		pcfg = proctor.DefaultConfig(cfg.MaxViolations)
	}

	c := &Controller{
		log: log.With().
			Str("component", "session").
			Str("exam_id", def.ID.String()).
			Int("student_id", student.ID).
			Logger(),
		def:            def,
		student:        student,
		view:           Process(def.Questions, def.RandomizeQuestions, def.RandomizeOptions, rng),
		validIDs:       make(map[string]struct{}, len(def.Questions)),
		persist:        persist,
		state:          StateLocked,
		remaining:      remaining,
		persistTimeout: persistTimeout,
		events:         make(chan Event, 64),
	}
	for i := range def.Questions {
		c.validIDs[def.Questions[i].ID.String()] = struct{}{}
	}
	c.answers = NewAnswerStore(c.onSaved)
	c.monitor = proctor.NewMonitor(pcfg, proctor.CapabilitiesFor(cfg.Platform), c.log, c.onViolation, c.onExceeded)
	c.clock = NewClock(remaining, tick, c.onTick, c.onExpire)
	return c, nil
}

// Events is the session's notification stream. Slow consumers lose events;
// the snapshot always carries the authoritative state.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RestoreAnswers loads autosaved answers into a not-yet-started session.
func (c *Controller) RestoreAnswers(answers map[string]string) {
	c.mu.Lock()
	if c.state != StateLocked {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.answers.Restore(answers)
}

// Start moves LOCKED → ACTIVE: arms the proctor, starts the countdown and
// emits the opening snapshot. No-op in any other state.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.state != StateLocked {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	c.mu.Unlock()

	c.monitor.Arm()
	c.clock.Start()
	c.log.Info().Int("questions", len(c.def.Questions)).Msg("session started")
	c.emit(Event{Type: EventState, Snapshot: c.snapshot()})
	c.pushProgress(model.ProgressInProgress)
}

// SetAnswer stores an answer. No-op outside ACTIVE or for unknown question
// IDs; the saved notification and progress heartbeat fire on success.
func (c *Controller) SetAnswer(questionID, answer string) {
	if c.State() != StateActive {
		return
	}
	if _, ok := c.validIDs[questionID]; !ok {
		return
	}
	c.answers.SetAnswer(questionID, answer)
}

// ToggleMark flips the review flag for a question. No-op outside ACTIVE.
func (c *Controller) ToggleMark(questionID string) {
	if c.State() != StateActive {
		return
	}
	if _, ok := c.validIDs[questionID]; !ok {
		return
	}
	marked := c.answers.ToggleMark(questionID)
	c.emit(Event{Type: EventMarked, QuestionID: questionID, Marked: marked})
}

// Goto moves the cursor, clamped to the question range. Only in ACTIVE.
func (c *Controller) Goto(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return
	}
	if index < 0 {
		index = 0
	}
	if max := len(c.view) - 1; index > max {
		index = max
	}
	c.index = index
}

// Next advances the cursor by one.
func (c *Controller) Next() {
	c.mu.Lock()
	i := c.index + 1
	c.mu.Unlock()
	c.Goto(i)
}

// Prev moves the cursor back by one.
func (c *Controller) Prev() {
	c.mu.Lock()
	i := c.index - 1
	c.mu.Unlock()
	c.Goto(i)
}

// HandleSignal forwards a raw proctoring signal. Dropped outside ACTIVE.
func (c *Controller) HandleSignal(sig proctor.Signal) {
	if c.State() != StateActive {
		return
	}
	c.monitor.HandleSignal(sig)
}

// UpdateViewport forwards a viewport resize to the keyboard heuristic.
func (c *Controller) UpdateViewport(viewportHeight, windowHeight float64) {
	if c.State() != StateActive {
		return
	}
	c.monitor.UpdateViewport(viewportHeight, windowHeight)
}

// RequestSubmit emits the confirmation summary without changing state.
func (c *Controller) RequestSubmit() {
	if c.State() != StateActive {
		return
	}
	c.emit(Event{
		Type:   EventSubmitReview,
		Filled: c.answers.FilledCount(),
		Total:  len(c.def.Questions),
	})
}

// Submit finishes the session on the student's confirmation.
func (c *Controller) Submit() {
	c.submit(TriggerManual)
}

// Snapshot returns the reload-recovery projection.
func (c *Controller) Snapshot() *Snapshot {
	return c.snapshot()
}

// Close releases the clock and monitor. Used on registry eviction; a live
// session should end through submit instead.
func (c *Controller) Close() {
	c.clock.Stop()
	c.monitor.Suspend()
}

// submit is the single convergence point for manual, violation-forced and
// timeout-forced submission. The ACTIVE → SUBMITTING transition is the
// idempotency latch; every later call returns immediately.
func (c *Controller) submit(trigger string) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	c.clock.Stop()
	c.monitor.Suspend()

	answers := c.answers.Snapshot()
	violations := c.monitor.Count()
	score := scoring.Score(c.def.Questions, answers)

	attempt := model.Attempt{
		ID:             uuid.New(),
		ExamID:         c.def.ID,
		StudentID:      c.student.ID,
		StudentName:    c.student.Name,
		Answers:        answers,
		Score:          score,
		ViolationCount: violations,
		SubmittedAt:    time.Now().UTC(),
		IsSubmitted:    true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
	err := c.persist.SubmitAttempt(ctx, attempt)
	cancel()
	if err != nil {
		// The session still completes; the attempt stays queued for a
		// later sync and the client shows a pending warning.
		c.log.Warn().Err(err).Str("trigger", trigger).Msg("attempt sync pending")
	}

	c.mu.Lock()
	c.state = StateSubmitted
	c.score = score
	c.mu.Unlock()

	c.log.Info().
		Str("trigger", trigger).
		Int("score", score).
		Int("violations", violations).
		Msg("session submitted")
	c.emit(Event{
		Type:        EventSubmitted,
		Trigger:     trigger,
		Score:       score,
		Count:       violations,
		SyncPending: err != nil,
	})
	c.pushProgress(model.ProgressSubmitted)
}

func (c *Controller) onSaved(questionID string) {
	c.emit(Event{Type: EventSaved, QuestionID: questionID})
	c.pushProgress(model.ProgressInProgress)
}

func (c *Controller) onViolation(reason string, count int) {
	c.emit(Event{Type: EventViolation, Reason: reason, Count: count})
	ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
	defer cancel()
	c.persist.RecordViolation(ctx, model.ViolationEvent{
		ExamID:     c.def.ID,
		StudentID:  c.student.ID,
		Reason:     reason,
		Count:      count,
		OccurredAt: time.Now().UTC(),
	})
	c.pushProgress(model.ProgressInProgress)
}

func (c *Controller) onExceeded(count int) {
	c.emit(Event{Type: EventDisqualified, Count: count})
	c.submit(TriggerViolation)
}

func (c *Controller) onTick(remaining int) {
	c.mu.Lock()
	c.remaining = remaining
	c.mu.Unlock()
	c.emit(Event{Type: EventTick, Remaining: remaining})
}

func (c *Controller) onExpire() {
	c.submit(TriggerTimeout)
}

func (c *Controller) snapshot() *Snapshot {
	c.mu.Lock()
	state := c.state
	index := c.index
	remaining := c.remaining
	score := c.score
	c.mu.Unlock()

	return &Snapshot{
		ExamID:     c.def.ID.String(),
		Title:      c.def.Title,
		State:      state,
		Questions:  c.view,
		Index:      index,
		Remaining:  remaining,
		Answers:    c.answers.Snapshot(),
		Marked:     c.answers.Marked(),
		Violations: c.monitor.Count(),
		Score:      score,
	}
}

// emit never blocks: a slow or absent consumer drops events and recovers
// from the snapshot on reconnect.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Debug().Str("event", string(ev.Type)).Msg("event dropped")
	}
}

func (c *Controller) pushProgress(status model.ProgressStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
	defer cancel()
	c.persist.PushProgress(ctx, model.StudentProgress{
		ExamID:         c.def.ID,
		StudentID:      c.student.ID,
		StudentName:    c.student.Name,
		AnsweredCount:  c.answers.FilledCount(),
		TotalQuestions: len(c.def.Questions),
		ViolationCount: c.monitor.Count(),
		Status:         status,
		LastActive:     time.Now().UTC(),
	})
}
