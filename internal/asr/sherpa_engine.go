package asr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agalue/voice-assistant/internal/errkind"
	"github.com/agalue/voice-assistant/internal/sherpa"
	"github.com/agalue/voice-assistant/internal/types"
	"go.uber.org/zap"
)

// SherpaConfig configures the Whisper-backed recognizer.
type SherpaConfig struct {
	Encoder    string
	Decoder    string
	Tokens     string
	SampleRate int
	Language   string
	Provider   string
	NumThreads int
	Debug      bool
}

// SherpaEngine wraps sherpa-onnx's offline Whisper recognizer behind the
// Engine contract. Grounded on the teacher's internal/stt/recognizer.go
// Whisper half, split out of its VAD-bundled responsibilities.
type SherpaEngine struct {
	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
	sampleRate int
	language   string
	log        *zap.Logger
}

// NewSherpaEngine constructs the offline Whisper recognizer.
func NewSherpaEngine(cfg SherpaConfig, log *zap.Logger) (*SherpaEngine, error) {
	rc := &sherpa.OfflineRecognizerConfig{}
	rc.ModelConfig.Whisper.Encoder = cfg.Encoder
	rc.ModelConfig.Whisper.Decoder = cfg.Decoder
	language := cfg.Language
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	rc.ModelConfig.Whisper.Language = language
	rc.ModelConfig.Whisper.Task = "transcribe"
	rc.ModelConfig.Whisper.TailPaddings = -1
	rc.ModelConfig.Tokens = cfg.Tokens
	rc.ModelConfig.NumThreads = cfg.NumThreads
	rc.ModelConfig.Provider = cfg.Provider
	rc.DecodingMethod = "greedy_search"
	if cfg.Debug {
		rc.ModelConfig.Debug = 1
	}

	recognizer := sherpa.NewOfflineRecognizer(rc)
	if recognizer == nil {
		return nil, &errkind.AsrError{Kind: errkind.AsrModelNotLoaded}
	}
	return &SherpaEngine{recognizer: recognizer, sampleRate: cfg.SampleRate, language: cfg.Language, log: log}, nil
}

// Transcribe decodes one utterance. Blocking; safe from a worker goroutine.
func (e *SherpaEngine) Transcribe(ctx context.Context, utterance types.Utterance, _ Hints) (types.Transcript, error) {
	select {
	case <-ctx.Done():
		return types.Transcript{}, ctx.Err()
	default:
	}

	samples := int16ToFloat32(utterance.Samples())
	if len(samples) == 0 {
		return types.Transcript{}, &errkind.AsrError{Kind: errkind.AsrNoSpeech}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recognizer == nil {
		return types.Transcript{}, &errkind.AsrError{Kind: errkind.AsrModelNotLoaded}
	}

	stream := sherpa.NewOfflineStream(e.recognizer)
	if stream == nil {
		return types.Transcript{}, &errkind.AsrError{Kind: errkind.AsrDecoder}
	}
	defer sherpa.DeleteOfflineStream(stream)

	start := time.Now()
	stream.AcceptWaveform(e.sampleRate, samples)
	e.recognizer.Decode(stream)
	result := stream.GetResult()
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return types.Transcript{}, &errkind.AsrError{Kind: errkind.AsrNoSpeech}
	}

	_ = result
	return types.Transcript{
		Text:             text,
		EngineConfidence: -1,
		LanguageTag:      e.language,
		DurationMs:       time.Since(start).Milliseconds(),
		StartTimestamp:   utterance.Start,
	}, nil
}

// SetLanguage is advisory; sherpa's Whisper binding is configured at
// construction time, so this does not change the decoding language. It only
// changes the LanguageTag reported on later transcripts and logs the hint.
func (e *SherpaEngine) SetLanguage(tag string) {
	e.language = tag
	if e.log != nil {
		e.log.Debug("asr language hint", zap.String("tag", tag))
	}
}

// Warmup is idempotent; a real deployment would run one empty decode here.
func (e *SherpaEngine) Warmup(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Close releases the underlying sherpa resources.
func (e *SherpaEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(e.recognizer)
		e.recognizer = nil
	}
}

func int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768.0
	}
	return out
}
