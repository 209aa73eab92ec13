package agui

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"agentrun/internal/chat"
	"agentrun/pkg/logger"
)

// Transcript is a recorded conversation: one list of raw AG-UI events per run.
type Transcript struct {
	Turns [][]map[string]any `yaml:"turns" json:"turns"`
}

// LoadTranscript reads a YAML or JSON transcript file.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return ParseTranscript(data)
}

// ParseTranscript parses YAML (or JSON) transcript data.
func ParseTranscript(data []byte) (*Transcript, error) {
	var t Transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	if len(t.Turns) == 0 {
		return nil, fmt.Errorf("parse transcript: no turns")
	}
	return &t, nil
}

// ScriptOption configures a ScriptSource.
type ScriptOption func(*ScriptSource)

// WithSynchronous delivers events on the goroutine calling Run.
func WithSynchronous(sync bool) ScriptOption {
	return func(s *ScriptSource) { s.synchronous = sync }
}

// WithDelay pauses between events.
func WithDelay(d time.Duration) ScriptOption {
	return func(s *ScriptSource) { s.delay = d }
}

// WithLogger sets the logger used for dropped events.
func WithLogger(l *zerolog.Logger) ScriptOption {
	return func(s *ScriptSource) { s.logger = l }
}

// ScriptSource is an EventSource that plays back a Transcript.
// Each Run plays the next turn; once exhausted the last turn repeats.
type ScriptSource struct {
	transcript  *Transcript
	synchronous bool
	delay       time.Duration
	logger      *zerolog.Logger

	mu     sync.Mutex
	turn   int
	epoch  uint64
	inputs []RunInput
	resets int
}

// NewScriptSource creates a source for t.
func NewScriptSource(t *Transcript, opts ...ScriptOption) *ScriptSource {
	s := &ScriptSource{transcript: t}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.For("agui.script")
	}
	return s
}

// Run plays the next turn into sink.
func (s *ScriptSource) Run(ctx context.Context, input RunInput, sink Sink) {
	s.mu.Lock()
	idx := s.turn
	if idx >= len(s.transcript.Turns) {
		idx = len(s.transcript.Turns) - 1
	}
	s.turn++
	epoch := s.epoch
	s.inputs = append(s.inputs, cloneInput(input))
	s.mu.Unlock()

	events := s.transcript.Turns[idx]
	if s.synchronous {
		s.play(ctx, epoch, events, sink)
		return
	}
	go s.play(ctx, epoch, events, sink)
}

func (s *ScriptSource) play(ctx context.Context, epoch uint64, events []map[string]any, sink Sink) {
	for _, raw := range events {
		if ctx.Err() != nil || !s.current(epoch) {
			return
		}
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.delay):
			}
		}
		ev, err := DecodeEvent(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping transcript event")
			continue
		}
		sink(ev)
	}
}

func (s *ScriptSource) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// Reset stops any playback in progress.
func (s *ScriptSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.resets++
}

// Inputs returns copies of every RunInput received so far.
func (s *ScriptSource) Inputs() []RunInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunInput, len(s.inputs))
	copy(out, s.inputs)
	return out
}

// Resets returns how many times Reset was called.
func (s *ScriptSource) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func cloneInput(in RunInput) RunInput {
	in.Messages = chat.CloneMessages(in.Messages)
	if in.Tools != nil {
		in.Tools = append([]Tool(nil), in.Tools...)
	}
	if in.Context != nil {
		in.Context = append([]chat.ContextItem(nil), in.Context...)
	}
	return in
}
