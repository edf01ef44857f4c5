// Package fsm implements C15 ConversationFSM: the top-level state machine
// coordinating wake-word detection, command capture, classification,
// instant/agent response generation, and spoken playback, grounded on the
// original's ConversationManager (conversation.py) state enum and retry/
// timeout handling, adapted from the teacher's goroutine/channel wiring in
// cmd/assistant/main.go into a single orchestrating loop.
package fsm

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agalue/voice-assistant/internal/agent"
	"github.com/agalue/voice-assistant/internal/asr"
	"github.com/agalue/voice-assistant/internal/classifier"
	"github.com/agalue/voice-assistant/internal/confidence"
	"github.com/agalue/voice-assistant/internal/instant"
	"github.com/agalue/voice-assistant/internal/tts"
	"github.com/agalue/voice-assistant/internal/types"
	"github.com/agalue/voice-assistant/internal/vad"
	"github.com/agalue/voice-assistant/internal/wake"
	"go.uber.org/zap"
)

// errLowConfidence marks a handleCommand failure that already spoke its own
// clarification prompt, so the Run loop's generic retry prompt is skipped.
var errLowConfidence = errors.New("low-confidence transcript, asked for clarification")

// State is one of the seven conversation states.
type State string

const (
	StateIdle                 State = "idle"
	StateListeningForWakeWord State = "listening_for_wake_word"
	StateWakeWordDetected     State = "wake_word_detected"
	StateListeningForCommand  State = "listening_for_command"
	StateProcessingCommand    State = "processing_command"
	StateResponding           State = "responding"
	StateError                State = "error"
)

// Player is the narrow playback contract the FSM needs from C14 AudioPlayer.
type Player interface {
	PlayFrame(frame types.PcmFrame) error
}

// Capturer is the narrow capture contract the FSM needs from C1 AudioCapture,
// used to pause/resume the microphone around TTS playback (feedback
// suppression, grounded on the original's `_tts_active` flag).
type Capturer interface {
	Pause()
	Resume()
}

// Config holds the tunables the original ConversationManager exposed.
type Config struct {
	ConversationTimeout time.Duration
	MaxRetries          int
	WakeAckText         string
	PostPlaybackDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConversationTimeout <= 0 {
		c.ConversationTimeout = 15 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.WakeAckText == "" {
		c.WakeAckText = "Yes?"
	}
	return c
}

// Machine wires every pipeline component into the seven-state loop.
type Machine struct {
	cfg Config
	log *zap.Logger

	wakeDetector *wake.Detector
	framer       *vad.Framer
	asrEngine    asr.Engine
	scorer       *confidence.Scorer
	classifier   *classifier.Classifier
	instantH     *instant.Handler
	invoker      *agent.Invoker
	ttsEngine    tts.Engine
	player       Player
	capturer     Capturer
	listTools    instant.ToolLister

	state   atomic.Value // State
	speaking atomic.Bool // true while TTS is playing (feedback suppression)
}

// New wires a Machine from its already-constructed component dependencies.
func New(cfg Config, log *zap.Logger, wakeDetector *wake.Detector, framer *vad.Framer, asrEngine asr.Engine, scorer *confidence.Scorer, cls *classifier.Classifier, instantH *instant.Handler, invoker *agent.Invoker, ttsEngine tts.Engine, player Player, capturer Capturer, listTools instant.ToolLister) *Machine {
	m := &Machine{
		cfg: cfg.withDefaults(), log: log,
		wakeDetector: wakeDetector, framer: framer, asrEngine: asrEngine,
		scorer: scorer, classifier: cls, instantH: instantH, invoker: invoker,
		ttsEngine: ttsEngine, player: player, capturer: capturer, listTools: listTools,
	}
	m.state.Store(StateIdle)
	return m
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state.Load().(State)
}

func (m *Machine) setState(s State) {
	m.state.Store(s)
	m.log.Debug("fsm: state transition", zap.String("state", string(s)))
}

// Run drives the conversation loop over frames until ctx is cancelled or the
// frame channel closes. Each detected utterance is transcribed and routed
// through wake detection or command processing depending on the state.
func (m *Machine) Run(ctx context.Context, frames <-chan types.PcmFrame) error {
	m.setState(StateListeningForWakeWord)
	retries := 0
	lastActivity := time.Now()

	utterances, errs := m.framer.Run(ctx, frames)

	for {
		select {
		case <-ctx.Done():
			m.setState(StateIdle)
			return ctx.Err()

		case err, ok := <-errs:
			if ok && err != nil {
				m.log.Warn("fsm: framer error", zap.Error(err))
			}

		case utt, ok := <-utterances:
			if !ok {
				m.setState(StateIdle)
				return nil
			}

			// Audio captured while we're speaking is our own TTS output
			// leaking back through the microphone; drop it rather than
			// processing it as a command (feedback suppression).
			if m.speaking.Load() {
				continue
			}

			transcript, err := m.asrEngine.Transcribe(ctx, utt, asr.Hints{})
			if err != nil {
				m.log.Warn("fsm: transcription failed", zap.Error(err))
				continue
			}
			text := strings.TrimSpace(transcript.Text)
			if text == "" {
				continue
			}

			switch m.State() {
			case StateListeningForWakeWord:
				lastActivity = time.Now()
				m.handleWakeWordCandidate(ctx, text)

			case StateListeningForCommand:
				lastActivity = time.Now()
				if err := m.handleCommand(ctx, text); err != nil {
					retries++
					if retries >= m.cfg.MaxRetries {
						m.log.Warn("fsm: max retries reached, returning to wake word listening")
						m.setState(StateListeningForWakeWord)
						retries = 0
					} else if !errors.Is(err, errLowConfidence) {
						// errLowConfidence already spoke its own
						// clarification; anything else still gets the
						// generic retry prompt.
						m.speak(ctx, "I didn't catch that. Could you please repeat?")
						m.setState(StateListeningForCommand)
					}
				} else {
					retries = 0
				}

			default:
				// In WakeWordDetected/ProcessingCommand/Responding/Error,
				// new transcripts are ignored until the state machine
				// returns to a listening state.
			}

		case <-time.After(500 * time.Millisecond):
			if m.State() == StateListeningForCommand && time.Since(lastActivity) > m.cfg.ConversationTimeout {
				m.log.Info("fsm: conversation timed out, returning to wake word listening")
				m.setState(StateListeningForWakeWord)
				retries = 0
			}
		}
	}
}

func (m *Machine) handleWakeWordCandidate(ctx context.Context, text string) {
	detection := m.wakeDetector.DetectInText(text)
	if !detection.Detected {
		return
	}
	m.setState(StateWakeWordDetected)
	m.speak(ctx, m.cfg.WakeAckText)
	m.setState(StateListeningForCommand)
}

// handleCommand runs one full command-processing cycle: confidence scoring,
// classification, instant short-circuit or full agent invocation, then
// speaks the result.
func (m *Machine) handleCommand(ctx context.Context, command string) error {
	m.setState(StateProcessingCommand)

	// Only the text reaches this point, so the engine confidence is unknown.
	report := m.scorer.Score(types.Transcript{Text: command, EngineConfidence: -1}, nil)
	if len(report.Suggestions) > 0 {
		m.log.Debug("fsm: low-confidence transcript", zap.Float64("confidence", report.Overall))
	}

	if confidence.ShouldAskForClarification(report) {
		m.speak(ctx, confidence.FormatClarificationRequest(report))
		m.setState(StateListeningForCommand)
		return errLowConfidence
	}

	classification := m.classifier.Classify(command)

	var response string
	if classification.Complexity == types.ComplexityInstant {
		if r := m.instantH.Handle(command, instant.Context{}, m.listTools); r != nil {
			response = r.Text
		}
	}

	if response == "" {
		result, err := m.invoker.Invoke(ctx, command, classification)
		if err != nil {
			m.setState(StateError)
			return errors.New("agent invocation failed: " + err.Error())
		}
		response = result.Response
	}

	m.speak(ctx, response)
	m.setState(StateListeningForCommand)
	return nil
}

// speak synthesizes and plays text, pausing capture for the duration to
// suppress the assistant's own voice being re-ingested as a command.
func (m *Machine) speak(ctx context.Context, text string) {
	m.setState(StateResponding)
	m.speaking.Store(true)
	if m.capturer != nil {
		m.capturer.Pause()
	}
	defer func() {
		m.speaking.Store(false)
		if m.capturer != nil {
			time.Sleep(m.cfg.PostPlaybackDelay)
			m.capturer.Resume()
		}
	}()

	audio, err := m.ttsEngine.Synthesize(text)
	if err != nil {
		m.log.Warn("fsm: tts synthesis failed", zap.Error(err))
		return
	}
	if err := m.player.PlayFrame(audio.ToPcmFrame()); err != nil {
		m.log.Warn("fsm: playback failed", zap.Error(err))
	}
}
