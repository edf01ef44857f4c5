package asr

import (
	"context"
	"sync"

	"github.com/agalue/voice-assistant/internal/errkind"
	"github.com/agalue/voice-assistant/internal/types"
)

// Scripted is an in-memory ASR engine that returns a queued sequence of
// transcripts (or errors) on successive calls to Transcribe. It is the
// reference test implementation called for in SPEC_FULL.md §9.
type Scripted struct {
	mu        sync.Mutex
	queue     []scriptedResult
	language  string
	Warmed    bool
}

type scriptedResult struct {
	transcript types.Transcript
	err        error
}

// NewScripted creates a Scripted engine with an empty queue.
func NewScripted() *Scripted {
	return &Scripted{}
}

// QueueText enqueues a successful transcript result.
func (s *Scripted) QueueText(text string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scriptedResult{transcript: types.Transcript{
		Text:             text,
		EngineConfidence: confidence,
	}})
}

// QueueError enqueues a failing result.
func (s *Scripted) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scriptedResult{err: err})
}

// Transcribe pops the next queued result, or returns AsrError::NoSpeech if
// the queue is empty.
func (s *Scripted) Transcribe(ctx context.Context, utterance types.Utterance, _ Hints) (types.Transcript, error) {
	select {
	case <-ctx.Done():
		return types.Transcript{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return types.Transcript{}, &errkind.AsrError{Kind: errkind.AsrNoSpeech}
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	if next.err != nil {
		return types.Transcript{}, next.err
	}
	next.transcript.StartTimestamp = utterance.Start
	return next.transcript, nil
}

func (s *Scripted) SetLanguage(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = tag
}

func (s *Scripted) Warmup(ctx context.Context) error {
	s.Warmed = true
	return nil
}

var _ Engine = (*Scripted)(nil)
