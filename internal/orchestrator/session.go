package orchestrator

import (
	"errors"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/reaper"
	"github.com/throw-if-null/yolo/internal/script"
)

// Session is the state of one run. It owns every transient file it creates
// and removes them in cleanup; the patched artifact is never among them.
type Session struct {
	ID         string
	Mode       api.RunMode
	Script     script.Script
	MarkerPath string
	Target     reaper.Target

	state     State
	history   []State
	artifacts []string
	span      trace.Span
	log       *logging.Logger
}

func newSession(id string, span trace.Span, log *logging.Logger) *Session {
	return &Session{ID: id, Mode: api.ModeInteractive, state: Idle, history: []State{Idle}, span: span, log: log}
}

func (s *Session) State() State { return s.state }

// History lists every state the session has entered, in order.
func (s *Session) History() []State { return append([]State(nil), s.history...) }

func (s *Session) transition(to State) {
	if !canTransition(s.state, to) {
		s.log.Warnf("session %s: unexpected transition %s -> %s", s.ID, s.state, to)
	}
	s.log.Debugf("session %s: %s -> %s", s.ID, s.state, to)
	s.span.AddEvent("state."+to.String(), trace.WithAttributes(attribute.String("state.from", s.state.String())))
	s.state = to
	s.history = append(s.history, to)
}

// own registers path for removal during cleanup.
func (s *Session) own(path string) {
	s.artifacts = append(s.artifacts, path)
}

// cleanup removes owned artifacts. Failures are logged only.
func (s *Session) cleanup() {
	s.transition(Cleanup)
	for _, p := range s.artifacts {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warnf("could not remove %s: %v", p, err)
		}
	}
	s.artifacts = nil
}
