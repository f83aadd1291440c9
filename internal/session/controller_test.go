package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ruangujian/ruangujian-backend/internal/model"
	"github.com/ruangujian/ruangujian-backend/internal/proctor"
)

type fakePersist struct {
	mu         sync.Mutex
	attempts   []model.Attempt
	progress   []model.StudentProgress
	violations []model.ViolationEvent
	submitErr  error
}

func (f *fakePersist) SubmitAttempt(_ context.Context, attempt model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakePersist) PushProgress(_ context.Context, p model.StudentProgress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, p)
}

func (f *fakePersist) RecordViolation(_ context.Context, v model.ViolationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, v)
}

func (f *fakePersist) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *fakePersist) lastAttempt(t *testing.T) model.Attempt {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.attempts) == 0 {
		t.Fatal("no attempt persisted")
	}
	return f.attempts[len(f.attempts)-1]
}

func singleChoice(key string, optionCount int) model.Question {
	q := model.Question{
		ID:         uuid.New(),
		Type:       model.QuestionSingleChoice,
		Text:       "soal",
		CorrectKey: key,
	}
	for i := 0; i < optionCount; i++ {
		q.Options = append(q.Options, model.QuestionOption{Text: string(rune('A' + i))})
	}
	return q
}

func testDefinition(questions ...model.Question) model.ExamDefinition {
	return model.ExamDefinition{
		Exam: model.Exam{
			ID:              uuid.New(),
			Title:           "Ujian Matematika",
			DurationMinutes: 30,
		},
		Questions: questions,
	}
}

func testStudent() model.Student {
	return model.Student{ID: 7, Name: "Budi"}
}

func fastConfig() Config {
	return Config{
		TickInterval: 2 * time.Millisecond,
		Proctor: proctor.Config{
			MaxViolations:     3,
			SettleDelay:       2 * time.Millisecond,
			TypingGraceDelay:  2 * time.Millisecond,
			KeyboardHideDelay: 2 * time.Millisecond,
		},
		PersistTimeout: time.Second,
	}
}

func newTestController(t *testing.T, def model.ExamDefinition, cfg Config) (*Controller, *fakePersist) {
	t.Helper()
	persist := &fakePersist{}
	c, err := New(def, testStudent(), persist, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, persist
}

func drainEvents(c *Controller) []Event {
	var out []Event
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, typ EventType) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func TestNewRejectsEmptyExam(t *testing.T) {
	_, err := New(testDefinition(), testStudent(), &fakePersist{}, fastConfig(), zerolog.Nop())
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestMutationsIgnoredBeforeStart(t *testing.T) {
	q := singleChoice("0", 4)
	c, _ := newTestController(t, testDefinition(q), fastConfig())

	c.SetAnswer(q.ID.String(), "0")
	c.ToggleMark(q.ID.String())
	c.Submit()

	snap := c.Snapshot()
	if snap.State != StateLocked {
		t.Fatalf("expected LOCKED, got %s", snap.State)
	}
	if len(snap.Answers) != 0 || len(snap.Marked) != 0 {
		t.Fatalf("locked session accepted mutations: %+v", snap)
	}
}

func TestSetAnswerEmitsSavedAndHeartbeat(t *testing.T) {
	q := singleChoice("1", 4)
	c, persist := newTestController(t, testDefinition(q), fastConfig())
	c.Start()
	drainEvents(c)

	c.SetAnswer(q.ID.String(), "1")
	c.SetAnswer("not-a-question", "0")

	events := drainEvents(c)
	if !hasEvent(events, EventSaved) {
		t.Fatalf("expected saved event, got %v", events)
	}
	snap := c.Snapshot()
	if snap.Answers[q.ID.String()] != "1" {
		t.Fatalf("answer not stored: %v", snap.Answers)
	}
	if len(snap.Answers) != 1 {
		t.Fatalf("unknown question id accepted: %v", snap.Answers)
	}

	persist.mu.Lock()
	defer persist.mu.Unlock()
	if len(persist.progress) == 0 {
		t.Fatal("expected a progress heartbeat")
	}
	last := persist.progress[len(persist.progress)-1]
	if last.AnsweredCount != 1 || last.TotalQuestions != 1 || last.Status != model.ProgressInProgress {
		t.Fatalf("unexpected heartbeat: %+v", last)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	q := singleChoice("0", 4)
	c, persist := newTestController(t, testDefinition(q), fastConfig())
	c.Start()
	c.SetAnswer(q.ID.String(), "0")

	c.Submit()
	c.Submit()
	c.Submit()

	if got := persist.attemptCount(); got != 1 {
		t.Fatalf("expected one persisted attempt, got %d", got)
	}
	if st := c.State(); st != StateSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", st)
	}
	attempt := persist.lastAttempt(t)
	if attempt.Score != 100 || !attempt.IsSubmitted {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
}

func TestExpiryRacingManualSubmit(t *testing.T) {
	q := singleChoice("0", 4)
	def := testDefinition(q)
	def.DurationMinutes = 0
	cfg := fastConfig()
	cfg.RemainingSeconds = 1 // expires after a single fast tick

	c, persist := newTestController(t, def, cfg)
	c.Start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Submit()
		}()
	}
	wg.Wait()
	time.Sleep(30 * time.Millisecond)

	if got := persist.attemptCount(); got != 1 {
		t.Fatalf("expected one attempt from racing submits, got %d", got)
	}
	if st := c.State(); st != StateSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", st)
	}
}

func TestViolationThresholdForcesSubmission(t *testing.T) {
	q := singleChoice("0", 4)
	c, persist := newTestController(t, testDefinition(q), fastConfig())
	c.Start()
	c.SetAnswer(q.ID.String(), "0")
	drainEvents(c)

	// Three violations leave the session active.
	for i := 0; i < 3; i++ {
		c.HandleSignal(proctor.SignalVisibilityHidden)
	}
	if st := c.State(); st != StateActive {
		t.Fatalf("three violations must not end the session, got %s", st)
	}

	// The fourth crosses the limit and forces submission.
	c.HandleSignal(proctor.SignalBlur)

	if st := c.State(); st != StateSubmitted {
		t.Fatalf("expected SUBMITTED after fourth violation, got %s", st)
	}
	events := drainEvents(c)
	if !hasEvent(events, EventDisqualified) {
		t.Fatalf("expected disqualified event, got %v", events)
	}

	attempt := persist.lastAttempt(t)
	if attempt.ViolationCount != 4 {
		t.Fatalf("expected violation count 4, got %d", attempt.ViolationCount)
	}
	if attempt.Answers[q.ID.String()] != "0" {
		t.Fatalf("answers lost on forced submit: %v", attempt.Answers)
	}

	// The dead session ignores everything.
	c.SetAnswer(q.ID.String(), "3")
	c.HandleSignal(proctor.SignalBlur)
	if snap := c.Snapshot(); snap.Answers[q.ID.String()] != "0" || snap.Violations != 4 {
		t.Fatalf("submitted session mutated: %+v", snap)
	}
}

func TestBlurWhileTypingNotCounted(t *testing.T) {
	q := singleChoice("0", 4)
	c, persist := newTestController(t, testDefinition(q), fastConfig())
	c.Start()

	c.HandleSignal(proctor.SignalFieldFocus)
	c.HandleSignal(proctor.SignalBlur)

	if snap := c.Snapshot(); snap.Violations != 0 {
		t.Fatalf("blur while typing counted: %d", snap.Violations)
	}

	// Grace expires; the same blur now counts exactly once.
	c.HandleSignal(proctor.SignalFieldBlur)
	time.Sleep(20 * time.Millisecond)
	c.HandleSignal(proctor.SignalBlur)

	if snap := c.Snapshot(); snap.Violations != 1 {
		t.Fatalf("expected one violation, got %d", snap.Violations)
	}
	persist.mu.Lock()
	defer persist.mu.Unlock()
	if len(persist.violations) != 1 || persist.violations[0].Reason != proctor.ReasonWindowBlur {
		t.Fatalf("unexpected violation records: %+v", persist.violations)
	}
}

func TestShuffledOptionsKeepOriginalIndices(t *testing.T) {
	q := singleChoice("3", 6)
	def := testDefinition(q)
	def.RandomizeOptions = true
	c, persist := newTestController(t, def, fastConfig())
	c.Start()

	snap := c.Snapshot()
	view := snap.Questions[0]
	if len(view.Options) != 6 {
		t.Fatalf("expected 6 display options, got %d", len(view.Options))
	}
	seen := make(map[int]bool)
	var correctDisplayed bool
	for _, opt := range view.Options {
		if seen[opt.OriginalIndex] {
			t.Fatalf("duplicate original index %d", opt.OriginalIndex)
		}
		seen[opt.OriginalIndex] = true
		if opt.OriginalIndex == 3 && opt.Text == "D" {
			correctDisplayed = true
		}
	}
	if !correctDisplayed {
		t.Fatal("shuffle lost the original option payloads")
	}

	// Answering via the original index grades correctly whatever the
	// display order.
	c.SetAnswer(q.ID.String(), "3")
	c.Submit()
	if attempt := persist.lastAttempt(t); attempt.Score != 100 {
		t.Fatalf("expected 100 after shuffled answer, got %d", attempt.Score)
	}
}

func TestShuffleStableAcrossRebuilds(t *testing.T) {
	var questions []model.Question
	for i := 0; i < 10; i++ {
		questions = append(questions, singleChoice("0", 4))
	}
	def := testDefinition(questions...)
	def.RandomizeQuestions = true
	def.RandomizeOptions = true

	first, _ := newTestController(t, def, fastConfig())
	second, _ := newTestController(t, def, fastConfig())

	a := first.Snapshot().Questions
	b := second.Snapshot().Questions
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("question order differs at %d across rebuilds", i)
		}
		for j := range a[i].Options {
			if a[i].Options[j].OriginalIndex != b[i].Options[j].OriginalIndex {
				t.Fatalf("option order differs for question %d", i)
			}
		}
	}
}

func TestSubmitFailureStillCompletes(t *testing.T) {
	q := singleChoice("0", 4)
	persist := &fakePersist{submitErr: errors.New("redis down")}
	c, err := New(testDefinition(q), testStudent(), persist, fastConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	c.Start()
	drainEvents(c)

	c.Submit()

	if st := c.State(); st != StateSubmitted {
		t.Fatalf("submit failure blocked completion: %s", st)
	}
	var submitted *Event
	for _, ev := range drainEvents(c) {
		if ev.Type == EventSubmitted {
			e := ev
			submitted = &e
		}
	}
	if submitted == nil || !submitted.SyncPending {
		t.Fatalf("expected sync-pending submitted event, got %+v", submitted)
	}
}

func TestRestoreAnswersBeforeStart(t *testing.T) {
	q1 := singleChoice("0", 4)
	q2 := singleChoice("2", 4)
	c, _ := newTestController(t, testDefinition(q1, q2), fastConfig())

	c.RestoreAnswers(map[string]string{q1.ID.String(): "0"})
	c.Start()

	snap := c.Snapshot()
	if snap.Answers[q1.ID.String()] != "0" {
		t.Fatalf("restored answer missing: %v", snap.Answers)
	}
}

func TestGotoClampsToRange(t *testing.T) {
	c, _ := newTestController(t, testDefinition(singleChoice("0", 4), singleChoice("1", 4)), fastConfig())
	c.Start()

	c.Goto(99)
	if snap := c.Snapshot(); snap.Index != 1 {
		t.Fatalf("expected clamp to last question, got %d", snap.Index)
	}
	c.Goto(-5)
	if snap := c.Snapshot(); snap.Index != 0 {
		t.Fatalf("expected clamp to first question, got %d", snap.Index)
	}
	c.Next()
	c.Next()
	c.Next()
	if snap := c.Snapshot(); snap.Index != 1 {
		t.Fatalf("next past the end must clamp, got %d", snap.Index)
	}
	c.Prev()
	if snap := c.Snapshot(); snap.Index != 0 {
		t.Fatalf("prev should step back, got %d", snap.Index)
	}
}
