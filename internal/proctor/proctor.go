package proctor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the monitor lifecycle. Transitions are one-way:
// INACTIVE → ARMED → SUSPENDED.
type State int

const (
	StateInactive State = iota
	StateArmed
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateArmed:
		return "ARMED"
	case StateSuspended:
		return "SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// Signal is a raw browser event forwarded by the exam client. The monitor
// owns all interpretation; the client never decides what counts.
type Signal string

const (
	SignalVisibilityHidden  Signal = "visibility_hidden"
	SignalVisibilityVisible Signal = "visibility_visible"
	SignalBlur              Signal = "blur"
	SignalFocus             Signal = "focus"
	SignalFullscreenExit    Signal = "fullscreen_exit"
	SignalPopstate          Signal = "popstate"
	SignalPageHide          Signal = "pagehide"
	SignalPageShow          Signal = "pageshow"
	SignalContextMenu       Signal = "contextmenu"
	SignalFieldFocus        Signal = "field_focus"
	SignalFieldBlur         Signal = "field_blur"
)

// Violation reasons surfaced to the session and the live monitor.
const (
	ReasonTabHidden      = "tab_hidden"
	ReasonWindowBlur     = "window_blur"
	ReasonFullscreenExit = "fullscreen_exit"
	ReasonPageHidden     = "page_hidden"
)

// Flags are the heuristic inputs that distinguish an actual exit from
// ordinary on-screen keyboard churn. The monitor owns them; they are inputs
// to Classify, never outputs.
type Flags struct {
	IsTyping              bool
	KeyboardLikelyVisible bool
}

// Decision is the classification outcome for one signal.
type Decision int

const (
	// DecisionIgnore drops the signal without trace.
	DecisionIgnore Decision = iota
	// DecisionSuppress drops a signal the client must also neutralize
	// (context menu, history pop). Logged, never counted.
	DecisionSuppress
	// DecisionRestore cancels any pending deferred suspicion.
	DecisionRestore
	// DecisionDefer holds the suspicion for a settle window; it matures
	// into a violation unless a restore signal arrives first.
	DecisionDefer
	// DecisionViolation counts immediately.
	DecisionViolation
)

// Verdict pairs a decision with the violation reason it would record.
type Verdict struct {
	Decision Decision
	Reason   string
}

// Classify maps a raw signal to a verdict given the current heuristic flags
// and the client's capabilities. It is pure: all timing lives in the
// Monitor, so the table below is testable without real clocks.
func Classify(sig Signal, flags Flags, caps Capabilities) Verdict {
	switch sig {
	case SignalVisibilityHidden:
		if flags.IsTyping || flags.KeyboardLikelyVisible {
			return Verdict{DecisionDefer, ReasonTabHidden}
		}
		return Verdict{DecisionViolation, ReasonTabHidden}
	case SignalBlur:
		// Focus moving into an answer field fires blur on the window.
		if flags.IsTyping {
			return Verdict{Decision: DecisionIgnore}
		}
		if flags.KeyboardLikelyVisible {
			return Verdict{DecisionDefer, ReasonWindowBlur}
		}
		return Verdict{DecisionViolation, ReasonWindowBlur}
	case SignalFullscreenExit:
		if !caps.SupportsFullscreenAPI {
			return Verdict{Decision: DecisionIgnore}
		}
		// Opening the keyboard collapses fullscreen on some Androids.
		if flags.IsTyping || flags.KeyboardLikelyVisible {
			return Verdict{DecisionDefer, ReasonFullscreenExit}
		}
		return Verdict{DecisionViolation, ReasonFullscreenExit}
	case SignalPageHide:
		if caps.UsesPageHideForBackgrounding {
			return Verdict{DecisionDefer, ReasonPageHidden}
		}
		return Verdict{Decision: DecisionIgnore}
	case SignalVisibilityVisible, SignalFocus, SignalPageShow:
		return Verdict{Decision: DecisionRestore}
	case SignalPopstate, SignalContextMenu:
		return Verdict{Decision: DecisionSuppress}
	}
	return Verdict{Decision: DecisionIgnore}
}

// Config tunes the monitor's timing heuristics. The delays mirror the settle
// windows mobile browsers need around on-screen keyboard transitions.
type Config struct {
	// MaxViolations is the strike limit. Exceeding it, not reaching it,
	// suspends the monitor and fires the threshold callback.
	MaxViolations int
	// SettleDelay is how long a deferred suspicion waits for a restore
	// signal before maturing into a violation.
	SettleDelay time.Duration
	// TypingGraceDelay keeps IsTyping set briefly after a field blur so
	// focus hops between answer fields stay invisible.
	TypingGraceDelay time.Duration
	// KeyboardHideDelay debounces the keyboard-visible flag on viewport
	// grow, since the viewport bounces while the keyboard animates away.
	KeyboardHideDelay time.Duration
}

// DefaultConfig returns production timing for the given strike limit.
func DefaultConfig(maxViolations int) Config {
	return Config{
		MaxViolations:     maxViolations,
		SettleDelay:       500 * time.Millisecond,
		TypingGraceDelay:  300 * time.Millisecond,
		KeyboardHideDelay: 300 * time.Millisecond,
	}
}

// firing captures a recorded violation so callbacks run outside the lock.
type firing struct {
	reason   string
	count    int
	exceeded bool
}

// Monitor tracks proctoring state for a single exam session. All methods
// are safe for concurrent use. Callbacks are invoked outside the monitor
// lock, so they may call back into the monitor.
type Monitor struct {
	mu   sync.Mutex
	cfg  Config
	caps Capabilities
	log  zerolog.Logger

	state State
	flags Flags
	count int

	pending       *time.Timer
	pendingReason string
	typingReset   *time.Timer
	keyboardHide  *time.Timer

	onViolation func(reason string, count int)
	onExceeded  func(count int)
}

// NewMonitor builds a monitor in INACTIVE. onViolation fires on every
// recorded violation; onExceeded fires once when the count passes
// cfg.MaxViolations.
func NewMonitor(cfg Config, caps Capabilities, log zerolog.Logger, onViolation func(reason string, count int), onExceeded func(count int)) *Monitor {
	return &Monitor{
		cfg:         cfg,
		caps:        caps,
		log:         log.With().Str("component", "proctor").Logger(),
		state:       StateInactive,
		onViolation: onViolation,
		onExceeded:  onExceeded,
	}
}

// Arm activates signal processing. Valid only from INACTIVE.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInactive {
		return
	}
	m.state = StateArmed
	m.log.Debug().Msg("proctor armed")
}

// Suspend permanently stops the monitor and drops any pending suspicion.
func (m *Monitor) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspendLocked()
}

func (m *Monitor) suspendLocked() {
	if m.state == StateSuspended {
		return
	}
	m.state = StateSuspended
	m.cancelPendingLocked()
	if m.typingReset != nil {
		m.typingReset.Stop()
		m.typingReset = nil
	}
	if m.keyboardHide != nil {
		m.keyboardHide.Stop()
		m.keyboardHide = nil
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Count returns the violations recorded so far. Never decreases.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// HandleSignal processes one raw client signal. Field focus signals only
// mutate the typing flag; everything else goes through Classify.
func (m *Monitor) HandleSignal(sig Signal) {
	m.mu.Lock()

	switch sig {
	case SignalFieldFocus:
		if m.typingReset != nil {
			m.typingReset.Stop()
			m.typingReset = nil
		}
		m.flags.IsTyping = true
		m.mu.Unlock()
		return
	case SignalFieldBlur:
		m.scheduleTypingResetLocked()
		m.mu.Unlock()
		return
	}

	var fired *firing
	v := Classify(sig, m.flags, m.caps)
	switch v.Decision {
	case DecisionIgnore:
	case DecisionSuppress:
		m.log.Debug().Str("signal", string(sig)).Msg("signal suppressed")
	case DecisionRestore:
		m.cancelPendingLocked()
	case DecisionDefer:
		m.deferLocked(v.Reason)
	case DecisionViolation:
		fired = m.recordLocked(v.Reason)
	}
	m.mu.Unlock()

	m.dispatch(fired)
}

// UpdateViewport feeds a visualViewport resize. A viewport shrunk below 75%
// of the window height means the on-screen keyboard is likely open.
func (m *Monitor) UpdateViewport(viewportHeight, windowHeight float64) {
	if !m.caps.ExposesVisualViewport || windowHeight <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateSuspended {
		return
	}

	visible := viewportHeight < windowHeight*0.75
	if visible {
		if m.keyboardHide != nil {
			m.keyboardHide.Stop()
			m.keyboardHide = nil
		}
		m.flags.KeyboardLikelyVisible = true
		return
	}
	if !m.flags.KeyboardLikelyVisible || m.keyboardHide != nil {
		return
	}
	m.keyboardHide = time.AfterFunc(m.cfg.KeyboardHideDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.keyboardHide = nil
		m.flags.KeyboardLikelyVisible = false
	})
}

// RecordViolation counts a violation directly, bypassing classification.
// No-op unless the monitor is ARMED.
func (m *Monitor) RecordViolation(reason string) {
	m.mu.Lock()
	fired := m.recordLocked(reason)
	m.mu.Unlock()
	m.dispatch(fired)
}

// deferLocked holds a suspicion for the settle window. An earlier pending
// suspicion wins; a restore signal cancels it.
func (m *Monitor) deferLocked(reason string) {
	if m.state != StateArmed || m.pending != nil {
		return
	}
	m.pendingReason = reason
	m.pending = time.AfterFunc(m.cfg.SettleDelay, func() {
		m.mu.Lock()
		if m.pending == nil {
			m.mu.Unlock()
			return
		}
		m.pending = nil
		fired := m.recordLocked(m.pendingReason)
		m.mu.Unlock()
		m.dispatch(fired)
	})
}

func (m *Monitor) cancelPendingLocked() {
	if m.pending == nil {
		return
	}
	m.pending.Stop()
	m.pending = nil
	m.pendingReason = ""
}

func (m *Monitor) scheduleTypingResetLocked() {
	if m.typingReset != nil {
		m.typingReset.Stop()
	}
	m.typingReset = time.AfterFunc(m.cfg.TypingGraceDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.typingReset = nil
		m.flags.IsTyping = false
	})
}

func (m *Monitor) recordLocked(reason string) *firing {
	if m.state != StateArmed {
		return nil
	}
	m.count++
	f := &firing{reason: reason, count: m.count}
	m.log.Warn().Str("reason", reason).Int("count", f.count).Msg("violation recorded")
	if f.count > m.cfg.MaxViolations {
		f.exceeded = true
		m.suspendLocked()
	}
	return f
}

func (m *Monitor) dispatch(f *firing) {
	if f == nil {
		return
	}
	if m.onViolation != nil {
		m.onViolation(f.reason, f.count)
	}
	if f.exceeded && m.onExceeded != nil {
		m.onExceeded(f.count)
	}
}
