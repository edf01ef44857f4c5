// Package asr defines the ASREngine adapter contract (C3) and provides two
// implementations: a sherpa-onnx/Whisper backed engine for production, and
// an in-memory scripted engine for tests.
package asr

import (
	"context"

	"github.com/agalue/voice-assistant/internal/types"
)

// Hints carries advisory decoding hints (e.g. a biased vocabulary); empty
// for now but kept as a distinct type so the contract can grow.
type Hints struct {
	Vocabulary []string
}

// Engine is the narrow adapter contract every ASR implementation satisfies.
// Transcribe MUST be safe to call from a worker goroutine and blocks for the
// duration of decoding.
type Engine interface {
	Transcribe(ctx context.Context, utterance types.Utterance, hints Hints) (types.Transcript, error)
	SetLanguage(tag string)
	Warmup(ctx context.Context) error
}
