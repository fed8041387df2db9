package attempt

import (
	"time"

	"github.com/smquiz/quiz-backend/internal/config"
)

// Signal is an environment change reported by the client while an attempt
// is on screen.
type Signal string

const (
	SignalVisibilityHidden  Signal = "visibility_hidden"
	SignalVisibilityVisible Signal = "visibility_visible"
	SignalWindowBlur        Signal = "window_blur"
	SignalWindowFocus       Signal = "window_focus"
	SignalFullscreenExit    Signal = "fullscreen_exit"
	SignalFullscreenEnter   Signal = "fullscreen_enter"
)

// ParseSignal validates a signal name received from the client.
func ParseSignal(s string) (Signal, bool) {
	switch sig := Signal(s); sig {
	case SignalVisibilityHidden, SignalVisibilityVisible,
		SignalWindowBlur, SignalWindowFocus,
		SignalFullscreenExit, SignalFullscreenEnter:
		return sig, true
	}
	return "", false
}

// BlockedAction is a suppressed clipboard, context menu or shortcut event.
// Blocked actions are recorded but never counted as violations.
type BlockedAction string

const (
	BlockedCopy        BlockedAction = "copy"
	BlockedCut         BlockedAction = "cut"
	BlockedPaste       BlockedAction = "paste"
	BlockedContextMenu BlockedAction = "context_menu"
	BlockedShortcut    BlockedAction = "shortcut"
)

// ParseBlocked validates a blocked action name received from the client.
func ParseBlocked(s string) (BlockedAction, bool) {
	switch b := BlockedAction(s); b {
	case BlockedCopy, BlockedCut, BlockedPaste, BlockedContextMenu, BlockedShortcut:
		return b, true
	}
	return "", false
}

// Monitor turns environment signals into violations. It only listens while
// armed, which the session keeps in step with the in-progress phase.
//
// Hidden and blur are counted independently, so a tab switch that fires
// both costs two warnings unless a debounce window is configured.
type Monitor struct {
	armed            bool
	fullscreenCounts bool
	debounce         time.Duration
	last             time.Time
}

// NewMonitor creates a disarmed monitor following policy p.
func NewMonitor(p config.Policy) *Monitor {
	return &Monitor{
		fullscreenCounts: p.FullscreenExitIsViolation,
		debounce:         p.ViolationDebounce,
	}
}

// Arm starts counting signals.
func (m *Monitor) Arm() { m.armed = true }

// Disarm stops counting signals for good.
func (m *Monitor) Disarm() { m.armed = false }

// Armed reports whether signals are being counted.
func (m *Monitor) Armed() bool { return m.armed }

// Observe reports whether sig, seen at now, is a violation.
func (m *Monitor) Observe(sig Signal, now time.Time) bool {
	if !m.armed || !m.counts(sig) {
		return false
	}
	if m.debounce > 0 && !m.last.IsZero() && now.Sub(m.last) < m.debounce {
		return false
	}
	m.last = now
	return true
}

func (m *Monitor) counts(sig Signal) bool {
	switch sig {
	case SignalVisibilityHidden, SignalWindowBlur:
		return true
	case SignalFullscreenExit:
		return m.fullscreenCounts
	}
	return false
}
