package wake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExactWordMatchScoresOne(t *testing.T) {
	d := New([]string{"jarvis"}, 0.8)
	got := d.DetectInText("hey jarvis what time is it")
	require.True(t, got.Detected)
	require.InDelta(t, 1.0, got.Score, 1e-9)
}

func TestSubstringMatchScoresPointEight(t *testing.T) {
	d := New([]string{"jarvis"}, 0.8)
	got := d.DetectInText("jarvisx turn on the lights")
	require.True(t, got.Detected)
	require.InDelta(t, 0.8, got.Score, 1e-9)
}

func TestNoMatchIsNotDetected(t *testing.T) {
	d := New([]string{"jarvis"}, 0.8)
	got := d.DetectInText("what is the weather today")
	require.False(t, got.Detected)
}

func TestEmptyTextIsNotDetected(t *testing.T) {
	d := New([]string{"jarvis"}, 0.8)
	got := d.DetectInText("")
	require.False(t, got.Detected)
	require.Zero(t, got.Score)
}
