package vad

import (
	"context"
	"testing"
	"time"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func frame(t time.Time, amplitude int16, n int) types.PcmFrame {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return types.PcmFrame{Samples: samples, SampleRate: 16000, Channels: 1, CapturedAt: t}
}

func TestFramerEmitsUtteranceOnSilence(t *testing.T) {
	cfg := DefaultConfig(16000)
	cfg.Timeout = time.Hour
	f := New(cfg, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan types.PcmFrame, 32)
	out, errs := f.Run(ctx, in)

	base := time.Now()
	step := 20 * time.Millisecond
	ts := base
	// 3 loud frames to start speech, then 8 quiet frames to end it.
	for i := 0; i < 3; i++ {
		in <- frame(ts, 1000, 320)
		ts = ts.Add(step)
	}
	for i := 0; i < cfg.KEnd; i++ {
		in <- frame(ts, 1, 320)
		ts = ts.Add(step)
	}

	select {
	case utt := <-out:
		require.NotEmpty(t, utt.Frames)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for utterance")
	}
}

func TestFramerDiscardsSubMinimumUtterance(t *testing.T) {
	cfg := DefaultConfig(16000)
	cfg.Timeout = time.Hour
	cfg.MinUtteranceMs = 10_000 // effectively unreachable for this short burst
	f := New(cfg, 10, nil)

	ts := time.Now()
	f.accept(frame(ts, 1000, 320))
	ts = ts.Add(20 * time.Millisecond)
	f.accept(frame(ts, 1000, 320))
	ts = ts.Add(20 * time.Millisecond)
	_, done := f.accept(frame(ts, 1000, 320))
	require.False(t, done)

	for i := 0; i < cfg.KEnd; i++ {
		ts = ts.Add(20 * time.Millisecond)
		utt, d := f.accept(frame(ts, 1, 320))
		if d {
			require.Nil(t, utt, "short utterance must be discarded silently")
			return
		}
	}
	t.Fatal("framer never completed the utterance")
}

func TestFramerEndsByPhraseTimeLimit(t *testing.T) {
	cfg := DefaultConfig(16000)
	cfg.Timeout = time.Hour
	cfg.PhraseTimeLimit = 60 * time.Millisecond
	cfg.MinUtteranceMs = 0
	f := New(cfg, 10, nil)

	ts := time.Now()
	for i := 0; i < cfg.KStart; i++ {
		f.accept(frame(ts, 1000, 320))
		ts = ts.Add(20 * time.Millisecond)
	}
	// keep speaking past the phrase limit without silence
	var utt *types.Utterance
	var done bool
	for i := 0; i < 10; i++ {
		utt, done = f.accept(frame(ts, 1000, 320))
		ts = ts.Add(20 * time.Millisecond)
		if done {
			break
		}
	}
	require.True(t, done)
	require.NotNil(t, utt)
}
