package asr

import (
	"context"
	"testing"

	"github.com/agalue/voice-assistant/internal/errkind"
	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func TestScriptedEngineReturnsQueuedTranscripts(t *testing.T) {
	e := NewScripted()
	e.QueueText("what time is it", 0.9)

	tr, err := e.Transcribe(context.Background(), types.Utterance{}, Hints{})
	require.NoError(t, err)
	require.Equal(t, "what time is it", tr.Text)
	require.InDelta(t, 0.9, tr.EngineConfidence, 1e-9)
}

func TestScriptedEngineEmptyQueueIsNoSpeech(t *testing.T) {
	e := NewScripted()
	_, err := e.Transcribe(context.Background(), types.Utterance{}, Hints{})
	require.Error(t, err)
	var asrErr *errkind.AsrError
	require.ErrorAs(t, err, &asrErr)
	require.Equal(t, errkind.AsrNoSpeech, asrErr.Kind)
}

func TestScriptedEngineQueuedErrorPropagates(t *testing.T) {
	e := NewScripted()
	e.QueueError(&errkind.AsrError{Kind: errkind.AsrDecoder})
	_, err := e.Transcribe(context.Background(), types.Utterance{}, Hints{})
	var asrErr *errkind.AsrError
	require.ErrorAs(t, err, &asrErr)
	require.Equal(t, errkind.AsrDecoder, asrErr.Kind)
}
