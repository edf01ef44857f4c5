// Package confidence implements the ConfidenceScorer component (C5): a
// weighted six-factor scorer over recognized text, ported factor-for-factor
// from the reference implementation's confidence analysis.
package confidence

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agalue/voice-assistant/internal/types"
)

var uncertaintyWords = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "ah": {}, "hmm": {}, "well": {}, "like": {},
	"you know": {}, "i think": {}, "maybe": {}, "perhaps": {}, "possibly": {}, "probably": {},
}

var clarityPhrases = []string{
	"please", "can you", "i want", "i need", "show me", "tell me",
	"what is", "how do", "when is", "where is", "why is",
}

var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`what.*time`),
	regexp.MustCompile(`tell me.*about`),
	regexp.MustCompile(`show me`),
	regexp.MustCompile(`play.*video`),
	regexp.MustCompile(`set.*timer`),
	regexp.MustCompile(`remind me`),
	regexp.MustCompile(`search for`),
	regexp.MustCompile(`open.*app`),
}

var questionWords = []string{"what", "when", "where", "why", "how", "who"}
var actionWords = []string{"play", "show", "tell", "open", "close", "start", "stop"}

const (
	weightEngineConfidence = 0.30
	weightTextLength       = 0.15
	weightWordClarity      = 0.25
	weightCommandPattern   = 0.15
	weightGrammarStructure = 0.10
	weightRepetition       = 0.05
)

// ToolHint, if non-empty, names a tool whose match score exceeds 0.7 so the
// clarification prompt can offer a "did you mean" suggestion (§9 Open
// Question resolution).
type ToolHint struct {
	ToolID string
	Score  float64
}

// Scorer computes ConfidenceReport values from Transcripts.
type Scorer struct{}

// New creates a Scorer. Stateless; safe for concurrent use.
func New() *Scorer { return &Scorer{} }

// Score analyzes a transcript, optionally informed by a tool-match hint
// used only to enrich the clarification message.
func (s *Scorer) Score(t types.Transcript, hint *ToolHint) types.ConfidenceReport {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return types.ConfidenceReport{
			Text:        "",
			Overall:     0,
			Factors:     map[string]float64{"empty_text": 0},
			Level:       types.ConfidenceVeryLow,
			Suggestions: []string{"Please speak clearly and try again"},
		}
	}

	factors := map[string]float64{}
	if t.HasEngineConfidence() {
		factors["engine_confidence"] = t.EngineConfidence
	} else {
		factors["engine_confidence"] = 0.5
	}
	factors["text_length"] = analyzeTextLength(text)
	factors["word_clarity"] = analyzeWordClarity(text)
	factors["command_pattern"] = analyzeCommandPattern(text)
	factors["grammar_structure"] = analyzeGrammar(text)
	factors["repetition"] = analyzeRepetition(text)

	overall := overallConfidence(factors)
	level := types.LevelForScore(overall)
	suggestions := generateSuggestions(factors, level)

	if hint != nil && hint.Score >= 0.7 && (level == types.ConfidenceLow || level == types.ConfidenceVeryLow) {
		suggestions = append(suggestions, fmt.Sprintf("did you mean: %s?", hint.ToolID))
	}

	return types.ConfidenceReport{
		Text:        text,
		Overall:     overall,
		Factors:     factors,
		Level:       level,
		Suggestions: suggestions,
	}
}

func analyzeTextLength(text string) float64 {
	words := strings.Fields(text)
	n := len(words)
	switch {
	case n == 0:
		return 0
	case n == 1:
		return 0.3
	case n >= 2 && n <= 20:
		return 0.9
	case n >= 21 && n <= 50:
		return 0.7
	default:
		return 0.4
	}
}

func analyzeWordClarity(text string) float64 {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return 0
	}

	uncertain := 0
	for _, w := range words {
		if _, ok := uncertaintyWords[w]; ok {
			uncertain++
		}
	}
	uncertaintyRatio := float64(uncertain) / float64(len(words))

	clarityCount := 0
	for _, phrase := range clarityPhrases {
		if strings.Contains(lower, phrase) {
			clarityCount++
		}
	}
	clarityBonus := min(float64(clarityCount)*0.2, 0.4)

	score := 0.8 - uncertaintyRatio*0.5 + clarityBonus
	return clamp01(score)
}

func analyzeCommandPattern(text string) float64 {
	lower := strings.ToLower(text)
	for _, p := range commandPatterns {
		if p.MatchString(lower) {
			return 0.9
		}
	}
	for _, w := range questionWords {
		if strings.Contains(lower, w) {
			return 0.7
		}
	}
	for _, w := range actionWords {
		if strings.Contains(lower, w) {
			return 0.6
		}
	}
	return 0.4
}

func analyzeGrammar(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	score := 0.5
	hasCapital := strings.ToUpper(text) != strings.ToLower(text) && strings.IndexFunc(text, func(r rune) bool {
		return r >= 'A' && r <= 'Z'
	}) >= 0
	if hasCapital {
		score += 0.1
	}
	if strings.ContainsAny(text, ".!?") {
		score += 0.1
	}
	if len(words) < 2 {
		score -= 0.2
	}

	repeated := 0
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if runes[i] == runes[i+1] && isAlpha(runes[i]) {
			repeated++
		}
	}
	if float64(repeated) > float64(len(runes))*0.1 {
		score -= 0.3
	}

	return clamp01(score)
}

func analyzeRepetition(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 2 {
		return 0.8
	}

	repeated := 0
	for i := 0; i < len(words)-1; i++ {
		if words[i] == words[i+1] {
			repeated++
		}
	}
	ratio := float64(repeated) / float64(len(words))

	switch {
	case ratio > 0.3:
		return 0.2
	case ratio > 0.1:
		return 0.6
	default:
		return 0.9
	}
}

func overallConfidence(factors map[string]float64) float64 {
	weights := map[string]float64{
		"engine_confidence": weightEngineConfidence,
		"text_length":       weightTextLength,
		"word_clarity":      weightWordClarity,
		"command_pattern":   weightCommandPattern,
		"grammar_structure": weightGrammarStructure,
		"repetition":        weightRepetition,
	}

	var weightedSum, totalWeight float64
	for name, value := range factors {
		if w, ok := weights[name]; ok {
			weightedSum += value * w
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

func generateSuggestions(factors map[string]float64, level types.ConfidenceLevel) []string {
	if level != types.ConfidenceLow && level != types.ConfidenceVeryLow {
		return nil
	}

	var suggestions []string
	if v, ok := factors["text_length"]; ok && v < 0.5 {
		suggestions = append(suggestions, "Try speaking in complete sentences")
	}
	if v, ok := factors["word_clarity"]; ok && v < 0.5 {
		suggestions = append(suggestions, "Speak more clearly and avoid filler words")
	}
	if v, ok := factors["command_pattern"]; ok && v < 0.5 {
		suggestions = append(suggestions, "Try using clear commands like 'What time is it?' or 'Show me...'")
	}
	if v, ok := factors["repetition"]; ok && v < 0.5 {
		suggestions = append(suggestions, "Avoid repeating words")
	}
	suggestions = append(suggestions,
		"Speak closer to the microphone",
		"Reduce background noise",
		"Speak at a normal pace",
	)

	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

// ShouldAskForClarification reports whether the FSM should interrupt the
// happy path to ask the user to repeat or clarify.
func ShouldAskForClarification(r types.ConfidenceReport) bool {
	return r.Level == types.ConfidenceLow || r.Level == types.ConfidenceVeryLow
}

// FormatClarificationRequest picks one of the three fixed clarification
// message templates, matching the reference implementation exactly.
func FormatClarificationRequest(r types.ConfidenceReport) string {
	switch r.Level {
	case types.ConfidenceVeryLow:
		return "I didn't catch that. Could you please repeat your request?"
	case types.ConfidenceLow:
		return fmt.Sprintf("I heard '%s' but I'm not sure. Could you clarify what you meant?", r.Text)
	default:
		return fmt.Sprintf("Did you say '%s'?", r.Text)
	}
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
