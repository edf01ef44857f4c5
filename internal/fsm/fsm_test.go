package fsm

import (
	"context"
	"testing"

	"github.com/agalue/voice-assistant/internal/agent"
	"github.com/agalue/voice-assistant/internal/asr"
	"github.com/agalue/voice-assistant/internal/cache"
	"github.com/agalue/voice-assistant/internal/classifier"
	"github.com/agalue/voice-assistant/internal/confidence"
	"github.com/agalue/voice-assistant/internal/ctxwindow"
	"github.com/agalue/voice-assistant/internal/instant"
	"github.com/agalue/voice-assistant/internal/llm"
	"github.com/agalue/voice-assistant/internal/memory"
	"github.com/agalue/voice-assistant/internal/rag"
	"github.com/agalue/voice-assistant/internal/tools"
	"github.com/agalue/voice-assistant/internal/tts"
	"github.com/agalue/voice-assistant/internal/types"
	"github.com/agalue/voice-assistant/internal/wake"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChatClient struct {
	content string
}

func (f *fakeChatClient) ChatWithTools(ctx context.Context, messages []api.Message, toolSpecs []llm.ToolSpec) (llm.ChatResult, error) {
	return llm.ChatResult{Content: f.content}, nil
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(text string) (*tts.AudioOutput, error) {
	return &tts.AudioOutput{Samples: []float32{0, 0.1, -0.1}, SampleRate: 16000}, nil
}
func (fakeTTS) SampleRate() int { return 16000 }

type fakePlayer struct {
	played []types.PcmFrame
}

func (p *fakePlayer) PlayFrame(frame types.PcmFrame) error {
	p.played = append(p.played, frame)
	return nil
}

type fakeCapturer struct {
	paused, resumed int
}

func (c *fakeCapturer) Pause()  { c.paused++ }
func (c *fakeCapturer) Resume() { c.resumed++ }

func newTestMachine(t *testing.T, chatContent string) (*Machine, *fakePlayer, *fakeCapturer) {
	t.Helper()

	reg := tools.NewRegistry()
	mem := memory.NewScriptedService()
	respCache, err := cache.New(cache.Config{MaxEntries: 50, MaxMemoryMB: 5}, zap.NewNop())
	require.NoError(t, err)
	window := ctxwindow.New(ctxwindow.DefaultConfig())
	gate := rag.New(nil)
	invoker := agent.New(&fakeChatClient{content: chatContent}, reg, gate, mem, respCache, window, zap.NewNop())

	player := &fakePlayer{}
	capturer := &fakeCapturer{}

	m := New(
		Config{PostPlaybackDelay: 0},
		zap.NewNop(),
		wake.New([]string{"computer"}, 0.8),
		nil, // framer: unused by the pure-method tests below
		asr.NewScripted(),
		confidence.New(),
		classifier.New(),
		instant.New(),
		invoker,
		fakeTTS{},
		player,
		capturer,
		func() []types.ToolDescriptor { return reg.Descriptors() },
	)
	return m, player, capturer
}

func TestHandleWakeWordCandidateDetectedTransitionsToListeningForCommand(t *testing.T) {
	m, player, capturer := newTestMachine(t, "")
	m.setState(StateListeningForWakeWord)

	m.handleWakeWordCandidate(context.Background(), "hey computer")

	require.Equal(t, StateListeningForCommand, m.State())
	require.Len(t, player.played, 1, "wake ack should be spoken")
	require.Equal(t, 1, capturer.paused)
	require.Equal(t, 1, capturer.resumed)
}

func TestHandleWakeWordCandidateNotDetectedStaysListeningForWakeWord(t *testing.T) {
	m, player, _ := newTestMachine(t, "")
	m.setState(StateListeningForWakeWord)

	m.handleWakeWordCandidate(context.Background(), "what a nice day today")

	require.Equal(t, StateListeningForWakeWord, m.State())
	require.Empty(t, player.played)
}

func TestHandleCommandInstantGreetingBypassesAgent(t *testing.T) {
	m, player, _ := newTestMachine(t, "should not be used")

	err := m.handleCommand(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, StateListeningForCommand, m.State())
	require.Len(t, player.played, 1)
}

func TestHandleCommandFallsThroughToAgentForComplexQuery(t *testing.T) {
	m, player, _ := newTestMachine(t, "Here is my answer.")

	err := m.handleCommand(context.Background(), "compare the weather in paris and tokyo and summarize the difference")
	require.NoError(t, err)
	require.Equal(t, StateListeningForCommand, m.State())
	require.Len(t, player.played, 1)
}

func TestSpeakSuppressesCaptureDuringPlayback(t *testing.T) {
	m, player, capturer := newTestMachine(t, "")

	m.speak(context.Background(), "hello there")

	require.False(t, m.speaking.Load())
	require.Equal(t, 1, capturer.paused)
	require.Equal(t, 1, capturer.resumed)
	require.Len(t, player.played, 1)
}
