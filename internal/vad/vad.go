// Package vad implements the VAD+Framer component (C2): it consumes
// PcmFrame values and emits Utterance values using an adaptive energy
// threshold, start/end frame counters and an absolute phrase time limit.
package vad

import (
	"context"
	"time"

	"github.com/agalue/voice-assistant/internal/errkind"
	"github.com/agalue/voice-assistant/internal/types"
	"go.uber.org/zap"
)

// Config holds the Framer's tunable parameters, sourced from the audio
// configuration group (§6).
type Config struct {
	SampleRate        int
	KStart            int           // consecutive above-threshold frames to start speech
	KEnd              int           // consecutive below-threshold frames to end speech
	MinUtteranceMs    int64         // utterances shorter than this are discarded silently
	PhraseTimeLimit   time.Duration // absolute cap on one utterance
	Timeout           time.Duration // time with no detected start before CaptureTimeout
	InitialThreshold  float64       // seed energy threshold from calibration
	EmaAlpha          float64       // EMA weight for threshold adaptation
}

// DefaultConfig matches spec §6's audio defaults translated into framer terms.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:       sampleRate,
		KStart:           3,
		KEnd:             8,
		MinUtteranceMs:   200,
		PhraseTimeLimit:  5 * time.Second,
		Timeout:          3 * time.Second,
		InitialThreshold: 50,
		EmaAlpha:         0.05,
	}
}

// Framer groups PcmFrames into Utterances per Config.
type Framer struct {
	cfg    Config
	log    *zap.Logger
	thresh float64

	aboveCount int
	belowCount int
	speaking   bool
	start      time.Time
	buf        []types.PcmFrame
}

// New creates a Framer, seeding the adaptive threshold from a calibration
// pass (the caller performs the 1s ambient-noise sampling and passes the
// resulting energy estimate, or zero to use Config.InitialThreshold).
func New(cfg Config, calibratedThreshold float64, log *zap.Logger) *Framer {
	thresh := cfg.InitialThreshold
	if calibratedThreshold > 0 {
		thresh = calibratedThreshold
	}
	return &Framer{cfg: cfg, log: log, thresh: thresh}
}

// frameEnergy computes the mean absolute amplitude of a frame, the same
// cheap energy proxy the ambient calibration pass uses.
func frameEnergy(f types.PcmFrame) float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(f.Samples))
}

// Run consumes frames from in and emits Utterances on the returned channel
// until ctx is cancelled or in is closed. On the first-start timeout it
// sends a CaptureTimeoutError on errs and keeps running (the FSM decides
// whether to keep listening or end the session).
func (f *Framer) Run(ctx context.Context, in <-chan types.PcmFrame) (<-chan types.Utterance, <-chan error) {
	out := make(chan types.Utterance, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		timeoutTimer := time.NewTimer(f.cfg.Timeout)
		defer timeoutTimer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timeoutTimer.C:
				if !f.speaking {
					select {
					case errs <- &errkind.CaptureTimeoutError{TimeoutMs: f.cfg.Timeout.Milliseconds()}:
					default:
					}
					timeoutTimer.Reset(f.cfg.Timeout)
				}
			case frame, ok := <-in:
				if !ok {
					return
				}
				if utt, done := f.accept(frame); done {
					if !timeoutTimer.Stop() {
						select {
						case <-timeoutTimer.C:
						default:
						}
					}
					timeoutTimer.Reset(f.cfg.Timeout)
					if utt != nil {
						select {
						case out <- *utt:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()

	return out, errs
}

// accept feeds one frame through the start/end state machine. Returns
// (utterance, true) when an utterance completes (utterance may be nil if
// it was discarded for being too short).
func (f *Framer) accept(frame types.PcmFrame) (*types.Utterance, bool) {
	energy := frameEnergy(frame)
	above := energy >= f.thresh

	if !above {
		// adapt threshold toward ambient noise only while not speaking
		if !f.speaking {
			f.thresh = f.thresh*(1-f.cfg.EmaAlpha) + energy*f.cfg.EmaAlpha
		}
	}

	if !f.speaking {
		if above {
			f.aboveCount++
			f.buf = append(f.buf, frame)
			if f.aboveCount >= f.cfg.KStart {
				f.speaking = true
				f.start = f.buf[0].CapturedAt
				f.belowCount = 0
			}
		} else {
			f.aboveCount = 0
			f.buf = nil
		}
		return nil, false
	}

	// currently speaking
	f.buf = append(f.buf, frame)
	if above {
		f.belowCount = 0
	} else {
		f.belowCount++
	}

	elapsed := frame.CapturedAt.Sub(f.start)
	endBySilence := f.belowCount >= f.cfg.KEnd
	endByLimit := elapsed >= f.cfg.PhraseTimeLimit

	if endBySilence || endByLimit {
		return f.finish(frame.CapturedAt), true
	}
	return nil, false
}

func (f *Framer) finish(end time.Time) *types.Utterance {
	frames := f.buf
	f.buf = nil
	f.speaking = false
	f.aboveCount = 0
	f.belowCount = 0

	if len(frames) == 0 {
		return nil
	}
	durationMs := end.Sub(f.start).Milliseconds()
	if durationMs < f.cfg.MinUtteranceMs {
		if f.log != nil {
			f.log.Debug("discarding sub-minimum utterance", zap.Int64("duration_ms", durationMs))
		}
		return nil
	}
	return &types.Utterance{Frames: frames, Start: f.start, End: end}
}

// Reset clears in-flight speech state, used by the FSM when re-arming the
// command listener after a response.
func (f *Framer) Reset() {
	f.buf = nil
	f.speaking = false
	f.aboveCount = 0
	f.belowCount = 0
}
