package proctor

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recorder struct {
	mu         sync.Mutex
	violations []string
	counts     []int
	exceeded   []int
}

func (r *recorder) onViolation(reason string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, reason)
	r.counts = append(r.counts, count)
}

func (r *recorder) onExceeded(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceeded = append(r.exceeded, count)
}

func (r *recorder) snapshot() ([]string, []int, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.violations...),
		append([]int(nil), r.counts...),
		append([]int(nil), r.exceeded...)
}

func testConfig() Config {
	return Config{
		MaxViolations:     3,
		SettleDelay:       5 * time.Millisecond,
		TypingGraceDelay:  5 * time.Millisecond,
		KeyboardHideDelay: 5 * time.Millisecond,
	}
}

func newTestMonitor(t *testing.T, caps Capabilities) (*Monitor, *recorder) {
	t.Helper()
	rec := &recorder{}
	m := NewMonitor(testConfig(), caps, zerolog.Nop(), rec.onViolation, rec.onExceeded)
	return m, rec
}

func settle() { time.Sleep(25 * time.Millisecond) }

func TestClassifyTable(t *testing.T) {
	desktop := CapabilitiesFor("")
	ios := CapabilitiesFor("ios")

	tests := []struct {
		name  string
		sig   Signal
		flags Flags
		caps  Capabilities
		want  Decision
	}{
		{name: "hidden counts", sig: SignalVisibilityHidden, caps: desktop, want: DecisionViolation},
		{name: "hidden while typing defers", sig: SignalVisibilityHidden, flags: Flags{IsTyping: true}, caps: desktop, want: DecisionDefer},
		{name: "hidden with keyboard defers", sig: SignalVisibilityHidden, flags: Flags{KeyboardLikelyVisible: true}, caps: desktop, want: DecisionDefer},
		{name: "blur counts", sig: SignalBlur, caps: desktop, want: DecisionViolation},
		{name: "blur while typing ignored", sig: SignalBlur, flags: Flags{IsTyping: true}, caps: desktop, want: DecisionIgnore},
		{name: "fullscreen exit counts", sig: SignalFullscreenExit, caps: desktop, want: DecisionViolation},
		{name: "fullscreen exit ignored without api", sig: SignalFullscreenExit, caps: ios, want: DecisionIgnore},
		{name: "pagehide ignored on desktop", sig: SignalPageHide, caps: desktop, want: DecisionIgnore},
		{name: "pagehide defers on ios", sig: SignalPageHide, caps: ios, want: DecisionDefer},
		{name: "focus restores", sig: SignalFocus, caps: desktop, want: DecisionRestore},
		{name: "pageshow restores", sig: SignalPageShow, caps: ios, want: DecisionRestore},
		{name: "contextmenu suppressed", sig: SignalContextMenu, caps: desktop, want: DecisionSuppress},
		{name: "popstate suppressed", sig: SignalPopstate, caps: desktop, want: DecisionSuppress},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.sig, tc.flags, tc.caps)
			if got.Decision != tc.want {
				t.Fatalf("expected decision %d, got %d", tc.want, got.Decision)
			}
		})
	}
}

func TestMonitorInactiveIgnoresEverything(t *testing.T) {
	m, rec := newTestMonitor(t, CapabilitiesFor(""))

	m.HandleSignal(SignalBlur)
	m.HandleSignal(SignalVisibilityHidden)
	m.RecordViolation(ReasonTabHidden)

	if got := m.Count(); got != 0 {
		t.Fatalf("expected 0 violations before arming, got %d", got)
	}
	if v, _, _ := rec.snapshot(); len(v) != 0 {
		t.Fatalf("expected no callbacks, got %v", v)
	}
}

func TestMonitorBlurWhileTyping(t *testing.T) {
	m, rec := newTestMonitor(t, CapabilitiesFor(""))
	m.Arm()

	m.HandleSignal(SignalFieldFocus)
	m.HandleSignal(SignalBlur)

	if got := m.Count(); got != 0 {
		t.Fatalf("blur while typing must not count, got %d", got)
	}

	// After the typing grace expires, the same blur counts exactly once.
	m.HandleSignal(SignalFieldBlur)
	settle()
	m.HandleSignal(SignalBlur)

	violations, counts, _ := rec.snapshot()
	if len(violations) != 1 || violations[0] != ReasonWindowBlur || counts[0] != 1 {
		t.Fatalf("expected single window_blur violation, got %v %v", violations, counts)
	}
}

func TestMonitorRestoreCancelsDeferred(t *testing.T) {
	m, _ := newTestMonitor(t, CapabilitiesFor(""))
	m.Arm()

	// Hidden while typing is deferred; focus inside the settle window
	// cancels it.
	m.HandleSignal(SignalFieldFocus)
	m.HandleSignal(SignalVisibilityHidden)
	m.HandleSignal(SignalFocus)
	settle()

	if got := m.Count(); got != 0 {
		t.Fatalf("restored suspicion must not count, got %d", got)
	}
}

func TestMonitorDeferredMaturesIntoViolation(t *testing.T) {
	m, rec := newTestMonitor(t, CapabilitiesFor("ios"))
	m.Arm()

	m.HandleSignal(SignalPageHide)
	settle()

	violations, _, _ := rec.snapshot()
	if len(violations) != 1 || violations[0] != ReasonPageHidden {
		t.Fatalf("expected matured page_hidden violation, got %v", violations)
	}
}

func TestMonitorPageShowCancelsPageHide(t *testing.T) {
	m, _ := newTestMonitor(t, CapabilitiesFor("ios"))
	m.Arm()

	m.HandleSignal(SignalPageHide)
	m.HandleSignal(SignalPageShow)
	settle()

	if got := m.Count(); got != 0 {
		t.Fatalf("quick pagehide/pageshow bounce must not count, got %d", got)
	}
}

func TestMonitorThreshold(t *testing.T) {
	m, rec := newTestMonitor(t, CapabilitiesFor(""))
	m.Arm()

	for i := 0; i < 3; i++ {
		m.HandleSignal(SignalVisibilityHidden)
	}
	if m.State() != StateArmed {
		t.Fatalf("three violations must leave the monitor armed, state=%s", m.State())
	}
	if _, _, exceeded := rec.snapshot(); len(exceeded) != 0 {
		t.Fatalf("threshold fired early: %v", exceeded)
	}

	// The fourth violation crosses the limit.
	m.HandleSignal(SignalBlur)

	if m.State() != StateSuspended {
		t.Fatalf("expected SUSPENDED after exceeding limit, state=%s", m.State())
	}
	if got := m.Count(); got != 4 {
		t.Fatalf("expected final count 4, got %d", got)
	}
	_, _, exceeded := rec.snapshot()
	if len(exceeded) != 1 || exceeded[0] != 4 {
		t.Fatalf("expected one threshold callback with count 4, got %v", exceeded)
	}

	// Suspended is terminal: further signals never count.
	m.HandleSignal(SignalVisibilityHidden)
	m.RecordViolation(ReasonTabHidden)
	if got := m.Count(); got != 4 {
		t.Fatalf("suspended monitor must not count, got %d", got)
	}
}

func TestMonitorSuppressedSignalsNeverCount(t *testing.T) {
	m, _ := newTestMonitor(t, CapabilitiesFor(""))
	m.Arm()

	for i := 0; i < 10; i++ {
		m.HandleSignal(SignalContextMenu)
		m.HandleSignal(SignalPopstate)
	}
	settle()

	if got := m.Count(); got != 0 {
		t.Fatalf("suppressed signals counted: %d", got)
	}
}

func TestMonitorKeyboardHeuristic(t *testing.T) {
	m, _ := newTestMonitor(t, CapabilitiesFor("android"))
	m.Arm()

	// Keyboard opens: viewport shrinks below 75% of the window.
	m.UpdateViewport(400, 800)
	m.HandleSignal(SignalBlur)
	m.HandleSignal(SignalFocus)
	settle()

	if got := m.Count(); got != 0 {
		t.Fatalf("blur with keyboard visible and prompt refocus counted: %d", got)
	}

	// Keyboard closes and the hide debounce passes; blur now counts.
	m.UpdateViewport(800, 800)
	settle()
	m.HandleSignal(SignalBlur)

	if got := m.Count(); got != 1 {
		t.Fatalf("expected blur to count after keyboard hid, got %d", got)
	}
}

func TestMonitorViewportIgnoredWithoutCapability(t *testing.T) {
	m, _ := newTestMonitor(t, CapabilitiesFor(""))
	m.Arm()

	m.UpdateViewport(400, 800)
	m.HandleSignal(SignalBlur)

	if got := m.Count(); got != 1 {
		t.Fatalf("desktop viewport resize must not set the keyboard flag, got count %d", got)
	}
}

func TestMonitorSuspendDropsPending(t *testing.T) {
	m, _ := newTestMonitor(t, CapabilitiesFor("ios"))
	m.Arm()

	m.HandleSignal(SignalPageHide)
	m.Suspend()
	settle()

	if got := m.Count(); got != 0 {
		t.Fatalf("pending suspicion matured after suspend: %d", got)
	}
}
