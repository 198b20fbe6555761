package translate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

// Phase is the progress of a translation run.
type Phase string

// Phases in the order a run passes through them.
const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseThinking   Phase = "thinking"
	PhaseStreaming  Phase = "streaming"
)

// FormatElapsed renders whole seconds as "Xm Ys", or "Ys" under a minute.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	m, s := seconds/60, seconds%60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// Session accumulates the state of one translation run. It is safe for
// concurrent readers while the run writes to it.
type Session struct {
	clock library.Clock

	mu        sync.RWMutex
	phase     Phase
	started   time.Time
	finished  time.Time
	tokens    int
	reasoning strings.Builder
	output    strings.Builder
	err       string
}

// NewSession starts a session whose output continues existing. Non-empty
// existing text is followed by a blank line before new content.
func NewSession(clock library.Clock, existing string) *Session {
	s := &Session{clock: clock, phase: PhaseIdle}
	if existing != "" {
		s.output.WriteString(existing)
		s.output.WriteString("\n\n")
	}
	return s
}

// Snapshot is a point-in-time copy of a Session.
type Snapshot struct {
	Phase          Phase  `json:"phase"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Elapsed        string `json:"elapsed"`
	Tokens         int    `json:"tokens"`
	Reasoning      string `json:"reasoning"`
	Output         string `json:"output"`
	Error          string `json:"error,omitempty"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secs := int(s.elapsedLocked() / time.Second)
	return Snapshot{
		Phase:          s.phase,
		ElapsedSeconds: secs,
		Elapsed:        FormatElapsed(secs),
		Tokens:         s.tokens,
		Reasoning:      s.reasoning.String(),
		Output:         s.output.String(),
		Error:          s.err,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Tokens returns the number of content chunks received.
func (s *Session) Tokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// Output returns the accumulated output including any existing text.
func (s *Session) Output() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output.String()
}

// Reasoning returns the accumulated reasoning text.
func (s *Session) Reasoning() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reasoning.String()
}

// Elapsed returns the time since the run started, frozen once it finishes.
func (s *Session) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.started.IsZero() {
		return 0
	}
	end := s.finished
	if end.IsZero() {
		end = s.clock.Now()
	}
	return end.Sub(s.started)
}

func (s *Session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = s.clock.Now()
	s.phase = PhaseConnecting
}

func (s *Session) setPhase(p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == p {
		return false
	}
	s.phase = p
	return true
}

func (s *Session) addReasoning(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasoning.WriteString(text)
}

func (s *Session) addContent(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output.WriteString(text)
	s.tokens++
	return s.tokens
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = s.clock.Now()
	s.phase = PhaseIdle
	if err != nil {
		s.err = err.Error()
	}
}
