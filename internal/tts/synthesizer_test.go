package tts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAudioOutputToPcmFrameClampsAndScales(t *testing.T) {
	out := &AudioOutput{Samples: []float32{0, 0.5, -0.5, 1.5, -1.5}, SampleRate: 24000}
	frame := out.ToPcmFrame()

	require.Equal(t, 24000, frame.SampleRate)
	require.Equal(t, 1, frame.Channels)
	require.Len(t, frame.Samples, 5)
	require.Equal(t, int16(0), frame.Samples[0])
	require.Equal(t, int16(32767), frame.Samples[3], "out-of-range positive sample clamps to max")
	require.Equal(t, int16(-32767), frame.Samples[4], "out-of-range negative sample clamps to min")
}

func TestSplitSentencesHandlesMultipleTerminators(t *testing.T) {
	sentences := SplitSentences("Hello there. How are you? I'm fine!")
	require.Equal(t, []string{"Hello there.", "How are you?", "I'm fine!"}, sentences)
}

func TestSplitSentencesKeepsTrailingFragment(t *testing.T) {
	sentences := SplitSentences("No terminator here")
	require.Equal(t, []string{"No terminator here"}, sentences)
}
