package confidence

import (
	"testing"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func TestScoreIsWithinUnitInterval(t *testing.T) {
	s := New()
	report := s.Score(types.Transcript{Text: "what time is it"}, nil)
	require.GreaterOrEqual(t, report.Overall, 0.0)
	require.LessOrEqual(t, report.Overall, 1.0)
}

func TestEmptyTextIsVeryLow(t *testing.T) {
	s := New()
	report := s.Score(types.Transcript{Text: "   "}, nil)
	require.Equal(t, types.ConfidenceVeryLow, report.Level)
	require.Equal(t, 0.0, report.Overall)
}

func TestFillerHeavyTextScoresLow(t *testing.T) {
	s := New()
	report := s.Score(types.Transcript{Text: "um uh the the hello"}, nil)
	require.Contains(t, []types.ConfidenceLevel{types.ConfidenceLow, types.ConfidenceVeryLow}, report.Level)
	require.True(t, ShouldAskForClarification(report))
	require.LessOrEqual(t, len(report.Suggestions), 3)
}

func TestFormatClarificationRequestPicksFixedTemplate(t *testing.T) {
	veryLow := types.ConfidenceReport{Level: types.ConfidenceVeryLow}
	require.Equal(t, "I didn't catch that. Could you please repeat your request?", FormatClarificationRequest(veryLow))

	low := types.ConfidenceReport{Level: types.ConfidenceLow, Text: "foo"}
	require.Contains(t, FormatClarificationRequest(low), "foo")
}

func TestDidYouMeanHintAppendedForLowConfidenceWithStrongToolMatch(t *testing.T) {
	s := New()
	report := s.Score(types.Transcript{Text: "um uh"}, &ToolHint{ToolID: "get_time", Score: 0.9})
	found := false
	for _, sug := range report.Suggestions {
		if sug == "did you mean: get_time?" {
			found = true
		}
	}
	require.True(t, found)
}
